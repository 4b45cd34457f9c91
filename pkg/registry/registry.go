// Package registry implements the instance registry: persistent metadata
// for every managed server instance, backed by pkg/storage.
package registry

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/mcserverd/mcserverd/pkg/errs"
	"github.com/mcserverd/mcserverd/pkg/events"
	"github.com/mcserverd/mcserverd/pkg/log"
	"github.com/mcserverd/mcserverd/pkg/storage"
	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LifecycleEventKind enumerates the registry events broadcast on its
// events.Broker.
type LifecycleEventKind string

const (
	EventInstanceCreated LifecycleEventKind = "instance.created"
	EventInstanceDeleted LifecycleEventKind = "instance.deleted"
	EventInstanceUpdated LifecycleEventKind = "instance.updated"
)

// LifecycleEvent is published whenever an instance is created, updated, or
// deleted.
type LifecycleEvent struct {
	Kind       LifecycleEventKind
	InstanceID string
	Timestamp  time.Time
}

// Registry manages the persisted fleet of instances.
type Registry struct {
	store      storage.Store
	instancesDir string
	logger     zerolog.Logger
	events     *events.Broker[LifecycleEvent]
}

// New creates a Registry backed by store, rooted at instancesDir for each
// instance's own directory.
func New(store storage.Store, instancesDir string) *Registry {
	r := &Registry{
		store:        store,
		instancesDir: instancesDir,
		logger:       log.WithComponent("registry"),
		events:       events.NewBroker[LifecycleEvent](100),
	}
	r.events.Start()
	return r
}

// Subscribe returns a channel of lifecycle events.
func (r *Registry) Subscribe() events.Subscriber[LifecycleEvent] {
	return r.events.Subscribe()
}

func (r *Registry) publish(kind LifecycleEventKind, id string) {
	r.events.Publish(LifecycleEvent{Kind: kind, InstanceID: id, Timestamp: time.Now()})
}

// Create allocates a new instance with a fresh UUID and directory. The
// registry does not enforce name uniqueness — callers that care should
// check GetByName first.
func (r *Registry) Create(name, mcVersion string, loader types.LoaderKind, loaderVersion string) (*types.Instance, error) {
	id := uuid.NewString()
	path := filepath.Join(r.instancesDir, id)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating instance directory: %w", err)
	}

	inst := &types.Instance{
		ID:            id,
		Name:          name,
		MCVersion:     mcVersion,
		Loader:        loader,
		LoaderVersion: loaderVersion,
		Path:          path,
		Settings:      types.DefaultInstanceSettings(),
		CreatedAt:     time.Now(),
	}

	if err := r.store.CreateInstance(inst); err != nil {
		os.RemoveAll(path)
		return nil, fmt.Errorf("persisting instance: %w", err)
	}

	r.logger.Info().Str("instance_id", id).Str("name", name).Msg("instance created")
	r.publish(EventInstanceCreated, id)
	return inst, nil
}

// ModpackProgress reports install progress while unpacking a modpack.
type ModpackProgress func(stage string, percent int)

// CreateFromModpack creates an instance and populates it from a modpack
// version's overlay archive: the caller resolves the version via
// pkg/provider and passes it in along with a Downloader, keeping the
// registry itself free of any catalogue-client dependency.
func (r *Registry) CreateFromModpack(ctx context.Context, name string, version types.ProjectVersion, mcVersion string, loader types.LoaderKind, loaderVersion string, downloader *download.Downloader, progress ModpackProgress) (*types.Instance, error) {
	inst, err := r.Create(name, mcVersion, loader, loaderVersion)
	if err != nil {
		return nil, err
	}

	var primary *types.ProjectFile
	for i := range version.Files {
		if version.Files[i].Primary {
			primary = &version.Files[i]
			break
		}
	}
	if primary == nil && len(version.Files) > 0 {
		primary = &version.Files[0]
	}
	if primary == nil {
		return nil, fmt.Errorf("modpack version %s has no files", version.ID)
	}

	if progress != nil {
		progress("downloading", 10)
	}

	archivePath := filepath.Join(inst.Path, ".modpack.zip")
	if err := downloader.Fetch(ctx, download.Request{URL: primary.URL, TargetPath: archivePath}); err != nil {
		return nil, fmt.Errorf("downloading modpack: %w", err)
	}
	defer os.Remove(archivePath)

	if progress != nil {
		progress("extracting", 60)
	}
	if err := extractModpackOverlay(archivePath, inst.Path); err != nil {
		return nil, fmt.Errorf("extracting modpack overlay: %w", err)
	}

	if progress != nil {
		progress("done", 100)
	}
	return inst, nil
}

// extractModpackOverlay unpacks server-overrides/ and overrides/ entries
// from a modpack zip into dest, applying them in zip entry order so later
// entries win on conflicting paths.
func extractModpackOverlay(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer zr.Close()

	prefixes := []string{"server-overrides/", "overrides/"}

	for _, f := range zr.File {
		var rel string
		for _, prefix := range prefixes {
			if strings.HasPrefix(f.Name, prefix) {
				rel = strings.TrimPrefix(f.Name, prefix)
				break
			}
		}
		if rel == "" {
			continue
		}
		if f.FileInfo().IsDir() {
			continue
		}

		target := filepath.Join(dest, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

// zipRootRegex normalizes a caller-supplied zip root prefix so "foo" and
// "foo/" behave identically.
var zipRootRegex = regexp.MustCompile(`/+$`)

// Import creates an instance from an existing directory or archive,
// optionally stripping zipRoot, and best-effort detects the MC version by
// inspecting jarName inside the imported tree.
func (r *Registry) Import(name, sourcePath, jarName string, loader types.LoaderKind, zipRoot string) (*types.Instance, error) {
	id := uuid.NewString()
	destPath := filepath.Join(r.instancesDir, id)

	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("stat import source: %w", err)
	}

	if info.IsDir() {
		if err := copyDir(sourcePath, destPath); err != nil {
			return nil, err
		}
	} else {
		root := zipRootRegex.ReplaceAllString(zipRoot, "") + "/"
		if zipRoot == "" {
			root = ""
		}
		if err := extractZip(sourcePath, destPath, root); err != nil {
			return nil, err
		}
	}

	mcVersion := detectVersion(destPath, jarName)

	inst := &types.Instance{
		ID:        id,
		Name:      name,
		MCVersion: mcVersion,
		Loader:    loader,
		Path:      destPath,
		Settings:  types.DefaultInstanceSettings(),
		CreatedAt: time.Now(),
	}

	if err := r.store.CreateInstance(inst); err != nil {
		os.RemoveAll(destPath)
		return nil, err
	}

	r.publish(EventInstanceCreated, id)
	return inst, nil
}

var mcVersionPattern = regexp.MustCompile(`1\.\d+(\.\d+)?`)

func detectVersion(instancePath, jarName string) string {
	if jarName != "" {
		if v := versionFromJar(filepath.Join(instancePath, jarName)); v != "" {
			return v
		}
		if m := mcVersionPattern.FindString(jarName); m != "" {
			return m
		}
	}
	return "Imported"
}

// versionFromJar peeks inside a server JAR for version.json / fabric.mod.json
// / quilt.mod.json to best-effort recover the targeted Minecraft version.
func versionFromJar(jarPath string) string {
	zr, err := zip.OpenReader(jarPath)
	if err != nil {
		return ""
	}
	defer zr.Close()

	for _, name := range []string{"version.json", "fabric.mod.json", "quilt.mod.json"} {
		for _, f := range zr.File {
			if f.Name != name {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				continue
			}
			data, _ := io.ReadAll(rc)
			rc.Close()
			if m := mcVersionPattern.Find(data); m != nil {
				return string(m)
			}
		}
	}
	return ""
}

// List returns every instance in registry order.
func (r *Registry) List() ([]*types.Instance, error) {
	return r.store.ListInstances()
}

// Get returns a single instance by ID.
func (r *Registry) Get(id string) (*types.Instance, error) {
	return r.store.GetInstance(id)
}

// GetByName returns a single instance by name, or errs.ErrNotFound.
func (r *Registry) GetByName(name string) (*types.Instance, error) {
	return r.store.GetInstanceByName(name)
}

// CheckNameExists is an advisory uniqueness check for callers that want to
// enforce unique names; Create itself never checks this.
func (r *Registry) CheckNameExists(name string) bool {
	_, err := r.store.GetInstanceByName(name)
	return err == nil
}

// Delete removes an instance's directory and its persisted row.
func (r *Registry) Delete(id string) error {
	inst, err := r.store.GetInstance(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(inst.Path); err != nil {
		return fmt.Errorf("removing instance directory: %w", err)
	}
	if err := r.store.DeleteInstance(id); err != nil {
		return err
	}
	r.publish(EventInstanceDeleted, id)
	return nil
}

// Clone duplicates an instance's directory tree and settings under a new
// name.
func (r *Registry) Clone(id, newName string) (*types.Instance, error) {
	src, err := r.store.GetInstance(id)
	if err != nil {
		return nil, err
	}

	newID := uuid.NewString()
	destPath := filepath.Join(r.instancesDir, newID)
	if err := copyDir(src.Path, destPath); err != nil {
		return nil, err
	}

	clonedSettings := *src.Settings
	inst := &types.Instance{
		ID:            newID,
		Name:          newName,
		MCVersion:     src.MCVersion,
		Loader:        src.Loader,
		LoaderVersion: src.LoaderVersion,
		Path:          destPath,
		Settings:      &clonedSettings,
		CreatedAt:     time.Now(),
	}

	if err := r.store.CreateInstance(inst); err != nil {
		os.RemoveAll(destPath)
		return nil, err
	}

	r.publish(EventInstanceCreated, newID)
	return inst, nil
}

// UpdateSettings persists a new name (if non-empty) and settings for an
// instance.
func (r *Registry) UpdateSettings(id string, name string, settings *types.InstanceSettings) error {
	inst, err := r.store.GetInstance(id)
	if err != nil {
		return err
	}
	if name != "" {
		inst.Name = name
	}
	inst.Settings = settings
	if err := r.store.UpdateInstance(inst); err != nil {
		return err
	}
	r.publish(EventInstanceUpdated, id)
	return nil
}

// UpdateLastRun stamps LastRunAt to now.
func (r *Registry) UpdateLastRun(id string) error {
	inst, err := r.store.GetInstance(id)
	if err != nil {
		return err
	}
	inst.LastRunAt = time.Now()
	return r.store.UpdateInstance(inst)
}

// Schedule CRUD

func (r *Registry) CreateSchedule(instanceID string, cronExpr string, taskType types.ScheduleType) (*types.ScheduledTask, error) {
	if _, err := r.store.GetInstance(instanceID); err != nil {
		return nil, err
	}
	task := &types.ScheduledTask{
		ID:         uuid.NewString(),
		InstanceID: instanceID,
		CronExpr:   cronExpr,
		Type:       taskType,
		Enabled:    true,
	}
	if err := r.store.CreateSchedule(task); err != nil {
		return nil, err
	}
	return task, nil
}

func (r *Registry) ListSchedules(instanceID string) ([]*types.ScheduledTask, error) {
	return r.store.ListSchedulesByInstance(instanceID)
}

func (r *Registry) UpdateSchedule(task *types.ScheduledTask) error {
	return r.store.UpdateSchedule(task)
}

func (r *Registry) DeleteSchedule(id string) error {
	return r.store.DeleteSchedule(id)
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFileMode(path, target, info.Mode())
	})
}

func copyFileMode(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func extractZip(archivePath, dest, stripPrefix string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		name := f.Name
		if stripPrefix != "" {
			if !strings.HasPrefix(name, stripPrefix) {
				continue
			}
			name = strings.TrimPrefix(name, stripPrefix)
		}
		if name == "" {
			continue
		}
		if strings.Contains(name, "..") {
			return fmt.Errorf("zip entry escapes destination: %s: %w", name, errs.ErrInvalidPath)
		}

		target := filepath.Join(dest, name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}
