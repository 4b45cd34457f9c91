package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/mcserverd/mcserverd/pkg/errs"
	"github.com/mcserverd/mcserverd/pkg/provider"
	"github.com/mcserverd/mcserverd/pkg/types"
)

// Install resolves version (by its ID against versions, or the first entry
// if versionID is empty) and downloads its primary file into the content
// directory, recording provenance in the sidecar.
func (i *Installer) Install(ctx context.Context, downloader *download.Downloader, projectID, versionID string, versions []types.ProjectVersion, providerName types.ProviderName) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var target *types.ProjectVersion
	for idx := range versions {
		if versionID == "" || versions[idx].ID == versionID {
			target = &versions[idx]
			break
		}
	}
	if target == nil {
		return "", fmt.Errorf("version %q for project %q: %w", versionID, projectID, errs.ErrNotFound)
	}

	var primary *types.ProjectFile
	for idx := range target.Files {
		if target.Files[idx].Primary {
			primary = &target.Files[idx]
			break
		}
	}
	if primary == nil && len(target.Files) > 0 {
		primary = &target.Files[0]
	}
	if primary == nil {
		return "", fmt.Errorf("version %q has no files: %w", target.ID, errs.ErrNotFound)
	}

	if err := os.MkdirAll(i.contentDir, 0o755); err != nil {
		return "", err
	}

	filename := filepath.Base(primary.Filename)
	targetPath := filepath.Join(i.contentDir, filename)
	if err := downloader.Fetch(ctx, download.Request{URL: primary.URL, TargetPath: targetPath, ExpectedSize: primary.Size}); err != nil {
		return "", err
	}

	sc, err := i.load()
	if err != nil {
		return "", err
	}
	sc.Sources[filename] = sourceEntry{ProjectID: projectID, Provider: providerName, CurrentVersionID: target.ID}
	if err := i.save(sc); err != nil {
		return "", err
	}

	return filename, nil
}

// validateFilename rejects path traversal and directory separators, since
// filenames ultimately come from user/API input.
func validateFilename(filename string) error {
	if filename == "" || strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("filename %q: %w", filename, errs.ErrInvalidPath)
	}
	return nil
}

// Enable removes the ".disabled" suffix from filename, if present.
func (i *Installer) Enable(filename string) error {
	if err := validateFilename(strings.TrimSuffix(filename, ".disabled")); err != nil {
		return err
	}
	disabledPath := filepath.Join(i.contentDir, filename+".disabled")
	if _, err := os.Stat(disabledPath); err == nil {
		return os.Rename(disabledPath, filepath.Join(i.contentDir, filename))
	}
	return nil
}

// Disable appends the ".disabled" suffix to filename, if not already present.
func (i *Installer) Disable(filename string) error {
	if err := validateFilename(filename); err != nil {
		return err
	}
	activePath := filepath.Join(i.contentDir, filename)
	if _, err := os.Stat(activePath); err != nil {
		return nil
	}
	return os.Rename(activePath, filepath.Join(i.contentDir, filename+".disabled"))
}

// Uninstall removes filename (and its ".disabled" twin, whichever exists)
// plus its sidecar entries, and optionally its config directory.
func (i *Installer) Uninstall(filename string, deleteConfig bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := validateFilename(filename); err != nil {
		return err
	}

	for _, candidate := range []string{filename, filename + ".disabled"} {
		path := filepath.Join(i.contentDir, candidate)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	sc, err := i.load()
	if err != nil {
		return err
	}
	delete(sc.Sources, filename)
	delete(sc.Entries, filename)
	if err := i.save(sc); err != nil {
		return err
	}

	if deleteConfig {
		configDir := configDirFor(filename)
		if configDir != "" {
			os.RemoveAll(filepath.Join(filepath.Dir(i.contentDir), "config", configDir))
		}
	}
	return nil
}

// configDirFor derives a plausible config-directory name from a mod/plugin
// filename by stripping the extension and any trailing version suffix.
func configDirFor(filename string) string {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if idx := strings.IndexAny(name, "-_"); idx > 0 {
		name = name[:idx]
	}
	return name
}

// Update performs the transactional update sequence: backup, install new
// version, transfer the disabled suffix, remove the old file, clean up the
// backup. On any failure after the backup is taken, the original file is
// restored.
func (i *Installer) Update(ctx context.Context, downloader *download.Downloader, oldFilename, projectID, versionID string, versions []types.ProjectVersion, providerName types.ProviderName) (string, error) {
	wasDisabled := strings.HasSuffix(oldFilename, ".disabled")

	oldPath := filepath.Join(i.contentDir, oldFilename)
	backupPath := oldPath + ".bak"

	if _, err := os.Stat(oldPath); err == nil {
		if err := copyFile(oldPath, backupPath); err != nil {
			return "", fmt.Errorf("backing up %s: %w", oldFilename, err)
		}
	}

	restore := func(installErr error) (string, error) {
		if _, statErr := os.Stat(backupPath); statErr == nil {
			os.Rename(backupPath, oldPath)
		}
		return "", installErr
	}

	newFilename, err := i.Install(ctx, downloader, projectID, versionID, versions, providerName)
	if err != nil {
		return restore(err)
	}

	if wasDisabled {
		if err := i.Disable(newFilename); err != nil {
			return restore(err)
		}
		newFilename += ".disabled"
	}

	if newFilename != oldFilename {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return restore(err)
		}
	}

	os.Remove(backupPath)
	return newFilename, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// UpdateCandidate is one installed file whose recorded version differs
// from the provider's newest matching version.
type UpdateCandidate struct {
	Filename         string
	ProjectID        string
	CurrentVersionID string
	LatestVersionID  string
}

// CheckForUpdates compares every sidecar source's recorded version against
// the provider's newest version for the instance's (mcVersion, loader).
func (i *Installer) CheckForUpdates(ctx context.Context, providers map[types.ProviderName]provider.ModProvider, mcVersion, loader string) ([]UpdateCandidate, error) {
	sc, err := i.load()
	if err != nil {
		return nil, err
	}

	var out []UpdateCandidate
	for filename, src := range sc.Sources {
		p, ok := providers[src.Provider]
		if !ok {
			continue
		}
		versions, err := p.GetVersions(ctx, src.ProjectID, mcVersion, loader)
		if err != nil || len(versions) == 0 {
			continue
		}
		latest := versions[0].ID
		if latest != src.CurrentVersionID {
			out = append(out, UpdateCandidate{
				Filename: filename, ProjectID: src.ProjectID,
				CurrentVersionID: src.CurrentVersionID, LatestVersionID: latest,
			})
		}
	}
	return out, nil
}
