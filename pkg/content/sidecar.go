// Package content implements the mod/plugin installer: Install, Enable,
// Disable, Uninstall, Update, CheckForUpdates, and the JAR metadata
// extraction behind ListInstalled.
package content

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/mcserverd/mcserverd/pkg/types"
)

const (
	modSidecarName    = ".mod_metadata_cache.json"
	pluginSidecarName = ".plugin_metadata_cache.json"
)

// sourceEntry is the persisted provenance of a single installed file.
type sourceEntry struct {
	ProjectID        string            `json:"project_id"`
	Provider         types.ProviderName `json:"provider"`
	CurrentVersionID string            `json:"current_version_id"`
}

// cacheEntry memoizes extracted JAR metadata by mtime so ListInstalled
// doesn't re-open every JAR on every call.
type cacheEntry struct {
	LastModified int64             `json:"last_modified"`
	Metadata     types.InstalledMod `json:"metadata"`
}

// sidecar is the on-disk JSON format living next to mods/ or plugins/.
type sidecar struct {
	Sources map[string]sourceEntry `json:"sources"`
	Entries map[string]cacheEntry  `json:"entries"`
}

// Kind distinguishes the mods/ directory from the plugins/ directory; each
// gets its own sidecar filename and installer instance.
type Kind int

const (
	KindMod Kind = iota
	KindPlugin
)

func (k Kind) dirName() string {
	if k == KindPlugin {
		return "plugins"
	}
	return "mods"
}

func (k Kind) sidecarName() string {
	if k == KindPlugin {
		return pluginSidecarName
	}
	return modSidecarName
}

// Installer manages one of an instance's mods/ or plugins/ directories.
type Installer struct {
	kind        Kind
	contentDir  string
	sidecarPath string
	mu          sync.Mutex
}

// New returns an Installer rooted at instanceDir/mods or instanceDir/plugins.
func New(instanceDir string, kind Kind) *Installer {
	dir := filepath.Join(instanceDir, kind.dirName())
	return &Installer{
		kind:        kind,
		contentDir:  dir,
		sidecarPath: filepath.Join(dir, kind.sidecarName()),
	}
}

func (i *Installer) load() (*sidecar, error) {
	data, err := os.ReadFile(i.sidecarPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &sidecar{Sources: map[string]sourceEntry{}, Entries: map[string]cacheEntry{}}, nil
		}
		return nil, err
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return &sidecar{Sources: map[string]sourceEntry{}, Entries: map[string]cacheEntry{}}, nil
	}
	if sc.Sources == nil {
		sc.Sources = map[string]sourceEntry{}
	}
	if sc.Entries == nil {
		sc.Entries = map[string]cacheEntry{}
	}
	return &sc, nil
}

func (i *Installer) save(sc *sidecar) error {
	if err := os.MkdirAll(i.contentDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(i.sidecarPath, data, 0o644)
}
