package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mcserverd/mcserverd/pkg/artifact"
	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/mcserverd/mcserverd/pkg/loader"
	"github.com/mcserverd/mcserverd/pkg/log"
	"github.com/mcserverd/mcserverd/pkg/provider"
	"github.com/mcserverd/mcserverd/pkg/registry"
	"github.com/mcserverd/mcserverd/pkg/supervisor"
	"github.com/mcserverd/mcserverd/pkg/types"
)

// binaryCandidates is the fixed set of filenames PrepareServer checks for
// before dispatching to the mod-loader layer. They are checked in this
// order, so a run script wins over a server JAR left in the same directory.
var binaryCandidates = []string{
	"run.sh", "run.bat", "server.jar", "fabric-server.jar",
	"bedrock_server", "bedrock_server.exe",
}

// Orchestrator composes the registry, loader dispatcher, artifact store,
// content installers, and the live set of per-instance supervisors.
type Orchestrator struct {
	registry   *registry.Registry
	dispatcher *loader.Dispatcher
	store      *artifact.Store
	downloader *download.Downloader
	providers  map[types.ProviderName]provider.ModProvider

	mu          sync.RWMutex
	supervisors map[string]*supervisor.Supervisor
}

// New builds an Orchestrator over an already-constructed registry, loader
// dispatcher, artifact store, downloader, and provider set.
func New(reg *registry.Registry, dispatcher *loader.Dispatcher, store *artifact.Store, downloader *download.Downloader, providers map[types.ProviderName]provider.ModProvider) *Orchestrator {
	return &Orchestrator{
		registry:    reg,
		dispatcher:  dispatcher,
		store:       store,
		downloader:  downloader,
		providers:   providers,
		supervisors: make(map[string]*supervisor.Supervisor),
	}
}

// findExistingBinary returns the first known launch artifact present in
// instanceDir, if any.
func findExistingBinary(instanceDir string) (string, bool) {
	for _, name := range binaryCandidates {
		path := filepath.Join(instanceDir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func javaPathFor(inst *types.Instance) string {
	if inst.Settings != nil && inst.Settings.JavaPath != "" {
		return inst.Settings.JavaPath
	}
	return "java"
}

// deriveServerConfig builds a ServerConfig from an instance's current
// settings and a resolved binary path (a run script, a jar, or a native
// executable).
func deriveServerConfig(inst *types.Instance, binPath string) types.ServerConfig {
	settings := inst.Settings
	if settings == nil {
		settings = types.DefaultInstanceSettings()
	}

	memory := fmt.Sprintf("%d%s", settings.MemoryValue, settings.MemoryUnit)
	cfg := types.ServerConfig{
		Name:          inst.Name,
		WorkingDir:    inst.Path,
		MinMemory:     memory,
		MaxMemory:     memory,
		JavaPath:      javaPathFor(inst),
		CrashHandling: settings.CrashHandling,
		StopTimeout:   time.Duration(settings.StopTimeoutSecs) * time.Second,
	}

	switch {
	case strings.HasSuffix(binPath, "run.sh"), strings.HasSuffix(binPath, "run.bat"):
		cfg.RunScript = binPath
	case strings.HasSuffix(binPath, ".jar"):
		cfg.JarPath = binPath
		cfg.Args = []string{"nogui"}
	default:
		cfg.JarPath = binPath
	}
	return cfg
}

// writeEula writes the autowritten eula.txt Java server binaries expect,
// skipped for Bedrock instances.
func writeEula(instanceDir string) error {
	return os.WriteFile(filepath.Join(instanceDir, "eula.txt"), []byte("eula=true\n"), 0o644)
}

// GetOrCreateServer returns the shared supervisor handle for id, creating
// one from the instance's current settings if this is the first reference.
func (o *Orchestrator) GetOrCreateServer(id string) (*supervisor.Supervisor, error) {
	o.mu.RLock()
	sup, ok := o.supervisors[id]
	o.mu.RUnlock()
	if ok {
		return sup, nil
	}

	inst, err := o.registry.Get(id)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if sup, ok := o.supervisors[id]; ok {
		return sup, nil
	}

	var cfg types.ServerConfig
	if binPath, ok := findExistingBinary(inst.Path); ok {
		cfg = deriveServerConfig(inst, binPath)
	} else {
		cfg = deriveServerConfig(inst, "")
	}
	sup = supervisor.New(id, cfg)
	o.supervisors[id] = sup
	return sup, nil
}

// prepareFunc materializes inst's binary via the mod-loader dispatcher and
// updates the supervisor's config with the freshly resolved binary path.
// It is handed to supervisor.Start so the install phase runs through the
// FSM's Installing state and its progress/log lines reach the same
// broadcast as server-phase output.
func (o *Orchestrator) prepareFunc(inst *types.Instance) supervisor.PrepareFunc {
	return func(ctx context.Context, logFn supervisor.LogFunc, progress supervisor.ProgressFunc) error {
		impl, err := o.dispatcher.For(inst.Loader)
		if err != nil {
			return err
		}

		progress("resolving", 0)
		binPath, err := impl.Materialize(ctx, loader.MaterializeRequest{
			MCVersion:     inst.MCVersion,
			LoaderVersion: inst.LoaderVersion,
			DestDir:       inst.Path,
			JavaPath:      javaPathFor(inst),
			Log:           loader.LogFunc(logFn),
		})
		if err != nil {
			return err
		}
		progress("materialized", 100)

		if inst.Loader != types.LoaderBedrock {
			if err := writeEula(inst.Path); err != nil {
				return err
			}
		}

		sup, err := o.GetOrCreateServer(inst.ID)
		if err != nil {
			return err
		}
		sup.UpdateConfig(deriveServerConfig(inst, binPath))
		return nil
	}
}

// PrepareServer ensures inst's binary exists, dispatching to the
// mod-loader layer if it does not, and refreshes the supervisor's config
// either way. Install progress and log lines from this path are discarded,
// not published to the supervisor's broadcasts; only an install that
// StartServer triggers publishes them.
func (o *Orchestrator) PrepareServer(ctx context.Context, id string) (*types.Instance, error) {
	inst, err := o.registry.Get(id)
	if err != nil {
		return nil, err
	}

	sup, err := o.GetOrCreateServer(id)
	if err != nil {
		return nil, err
	}

	if binPath, ok := findExistingBinary(inst.Path); ok {
		sup.UpdateConfig(deriveServerConfig(inst, binPath))
		return inst, nil
	}

	prepare := o.prepareFunc(inst)
	if err := prepare(ctx, func(string) {}, func(string, int) {}); err != nil {
		return nil, fmt.Errorf("preparing instance %s: %w", id, err)
	}
	return inst, nil
}

// StartServer prepares inst (if needed) then starts its supervisor,
// recording the attempt as the instance's last run.
func (o *Orchestrator) StartServer(ctx context.Context, id string) error {
	inst, err := o.registry.Get(id)
	if err != nil {
		return err
	}
	sup, err := o.GetOrCreateServer(id)
	if err != nil {
		return err
	}

	binaryExists := func() bool {
		_, ok := findExistingBinary(inst.Path)
		return ok
	}
	if err := sup.Start(ctx, binaryExists, o.prepareFunc(inst)); err != nil {
		return fmt.Errorf("starting instance %s: %w", id, err)
	}

	return o.registry.UpdateLastRun(id)
}

// StopServer forwards to the instance's supervisor.
func (o *Orchestrator) StopServer(ctx context.Context, id string) error {
	sup, err := o.GetOrCreateServer(id)
	if err != nil {
		return err
	}
	return sup.Stop(ctx)
}

// SendCommand writes a console command to a running instance.
func (o *Orchestrator) SendCommand(id, line string) error {
	sup, err := o.GetOrCreateServer(id)
	if err != nil {
		return err
	}
	return sup.SendCommand(line)
}

// SubscribeLogs returns the live log-line subscription channel for id.
func (o *Orchestrator) SubscribeLogs(id string) (chan supervisor.LogLine, error) {
	sup, err := o.GetOrCreateServer(id)
	if err != nil {
		return nil, err
	}
	return sup.SubscribeLogs(), nil
}

// SubscribeProgress returns the live install-progress subscription channel
// for id.
func (o *Orchestrator) SubscribeProgress(id string) (chan supervisor.ProgressEvent, error) {
	sup, err := o.GetOrCreateServer(id)
	if err != nil {
		return nil, err
	}
	return sup.SubscribeProgress(), nil
}

// Status satisfies metrics.StatusSampler: the current lifecycle state, or
// Stopped if no supervisor has been created yet.
func (o *Orchestrator) Status(instanceID string) types.ServerStatus {
	o.mu.RLock()
	sup, ok := o.supervisors[instanceID]
	o.mu.RUnlock()
	if !ok {
		return types.StatusStopped
	}
	return sup.Status()
}

// Usage satisfies metrics.StatusSampler.
func (o *Orchestrator) Usage(instanceID string) (*types.ResourceUsage, bool) {
	o.mu.RLock()
	sup, ok := o.supervisors[instanceID]
	o.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return sup.Usage()
}

// OnlinePlayerCount satisfies metrics.StatusSampler.
func (o *Orchestrator) OnlinePlayerCount(instanceID string) int {
	o.mu.RLock()
	sup, ok := o.supervisors[instanceID]
	o.mu.RUnlock()
	if !ok {
		return 0
	}
	return sup.OnlinePlayerCount()
}

// GetStatus is the Control API's name for Status.
func (o *Orchestrator) GetStatus(id string) types.ServerStatus { return o.Status(id) }

// GetUsage is the Control API's name for Usage.
func (o *Orchestrator) GetUsage(id string) (*types.ResourceUsage, bool) { return o.Usage(id) }

// GetOnlinePlayers returns the online player names for id.
func (o *Orchestrator) GetOnlinePlayers(id string) []string {
	o.mu.RLock()
	sup, ok := o.supervisors[id]
	o.mu.RUnlock()
	if !ok {
		return nil
	}
	return sup.OnlinePlayers()
}

// CheckInstanceNameExists is an advisory uniqueness check for callers; the
// registry itself never enforces name uniqueness.
func (o *Orchestrator) CheckInstanceNameExists(name string) bool {
	return o.registry.CheckNameExists(name)
}

// ListInstances passes through to the registry.
func (o *Orchestrator) ListInstances() ([]*types.Instance, error) {
	return o.registry.List()
}

// CreateInstanceFull creates a fresh instance directory without installing
// a binary; PrepareServer/StartServer materialize it lazily.
func (o *Orchestrator) CreateInstanceFull(name, mcVersion string, loaderKind types.LoaderKind, loaderVersion string) (*types.Instance, error) {
	return o.registry.Create(name, mcVersion, loaderKind, loaderVersion)
}

// CreateInstanceFromModpack creates an instance and unpacks a resolved
// modpack version's overlay into it.
func (o *Orchestrator) CreateInstanceFromModpack(ctx context.Context, name string, version types.ProjectVersion, mcVersion string, loaderKind types.LoaderKind, loaderVersion string, progress registry.ModpackProgress) (*types.Instance, error) {
	return o.registry.CreateFromModpack(ctx, name, version, mcVersion, loaderKind, loaderVersion, o.downloader, progress)
}

// ImportInstance adopts an existing directory or zip archive as a new
// instance.
func (o *Orchestrator) ImportInstance(name, sourcePath, jarName string, loaderKind types.LoaderKind, zipRoot string) (*types.Instance, error) {
	return o.registry.Import(name, sourcePath, jarName, loaderKind, zipRoot)
}

// DeleteInstance stops any live supervisor for id, then removes the
// instance.
func (o *Orchestrator) DeleteInstance(ctx context.Context, id string) error {
	o.mu.Lock()
	sup, ok := o.supervisors[id]
	delete(o.supervisors, id)
	o.mu.Unlock()

	if ok {
		if err := sup.Stop(ctx); err != nil {
			log.WithComponent("orchestrator").Warn().Err(err).Str("instance_id", id).Msg("stop before delete failed")
		}
	}
	return o.registry.Delete(id)
}

// CloneInstance passes through to the registry.
func (o *Orchestrator) CloneInstance(id, newName string) (*types.Instance, error) {
	return o.registry.Clone(id, newName)
}

// UpdateSettings persists new settings and, if a supervisor already
// exists for id, refreshes its config to match.
func (o *Orchestrator) UpdateSettings(id, name string, settings *types.InstanceSettings) error {
	if err := o.registry.UpdateSettings(id, name, settings); err != nil {
		return err
	}

	o.mu.RLock()
	sup, ok := o.supervisors[id]
	o.mu.RUnlock()
	if !ok {
		return nil
	}

	inst, err := o.registry.Get(id)
	if err != nil {
		return err
	}
	binPath, _ := findExistingBinary(inst.Path)
	sup.UpdateConfig(deriveServerConfig(inst, binPath))
	return nil
}
