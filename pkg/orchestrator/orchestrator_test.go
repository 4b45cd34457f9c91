package orchestrator

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcserverd/mcserverd/pkg/artifact"
	"github.com/mcserverd/mcserverd/pkg/cache"
	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/mcserverd/mcserverd/pkg/loader"
	"github.com/mcserverd/mcserverd/pkg/provider"
	"github.com/mcserverd/mcserverd/pkg/registry"
	"github.com/mcserverd/mcserverd/pkg/storage"
	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *registry.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := registry.New(store, filepath.Join(dir, "instances"))
	artifactStore := artifact.NewStore(filepath.Join(dir, "artifacts"))
	downloader := download.New(http.DefaultClient)
	cacheMgr := cache.NewManager(filepath.Join(dir, "cache"))
	dispatcher := loader.New(cacheMgr, downloader, artifactStore, http.DefaultClient)
	providers := map[types.ProviderName]provider.ModProvider{}

	return New(reg, dispatcher, artifactStore, downloader, providers), reg, dir
}

func writeRunScript(t *testing.T, instanceDir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(instanceDir, "run.sh"), []byte(body), 0o755))
}

func waitForOrchStatus(t *testing.T, o *Orchestrator, id string, want types.ServerStatus, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if o.Status(id) == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("status for %s never reached %q, last was %q", id, want, o.Status(id))
}

func TestStartServerWithExistingBinary(t *testing.T) {
	o, reg, _ := newTestOrchestrator(t)

	inst, err := reg.Create("vanilla-box", "1.20.4", types.LoaderVanilla, "")
	require.NoError(t, err)
	writeRunScript(t, inst.Path, `#!/bin/sh
echo 'Done (1.0s)! For help, type "help"'
while IFS= read -r line; do
  [ "$line" = "stop" ] && exit 0
done
`)

	require.NoError(t, o.StartServer(context.Background(), inst.ID))
	waitForOrchStatus(t, o, inst.ID, types.StatusRunning, 2*time.Second)

	require.NoError(t, o.StopServer(context.Background(), inst.ID))
	require.Equal(t, types.StatusStopped, o.Status(inst.ID))
}

func TestGetOrCreateServerIsStable(t *testing.T) {
	o, reg, _ := newTestOrchestrator(t)
	inst, err := reg.Create("stable", "1.20.4", types.LoaderVanilla, "")
	require.NoError(t, err)

	first, err := o.GetOrCreateServer(inst.ID)
	require.NoError(t, err)
	second, err := o.GetOrCreateServer(inst.ID)
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestDeleteInstanceStopsLiveSupervisor(t *testing.T) {
	o, reg, _ := newTestOrchestrator(t)
	inst, err := reg.Create("ephemeral", "1.20.4", types.LoaderVanilla, "")
	require.NoError(t, err)
	writeRunScript(t, inst.Path, `#!/bin/sh
echo 'Done (1.0s)! For help, type "help"'
while IFS= read -r line; do
  [ "$line" = "stop" ] && exit 0
done
`)

	require.NoError(t, o.StartServer(context.Background(), inst.ID))
	waitForOrchStatus(t, o, inst.ID, types.StatusRunning, 2*time.Second)

	require.NoError(t, o.DeleteInstance(context.Background(), inst.ID))
	require.NoDirExists(t, inst.Path)

	_, err = reg.Get(inst.ID)
	require.Error(t, err)
}

func TestUpdateSettingsPersistsWithLiveSupervisor(t *testing.T) {
	o, reg, _ := newTestOrchestrator(t)
	inst, err := reg.Create("tunable", "1.20.4", types.LoaderVanilla, "")
	require.NoError(t, err)
	writeRunScript(t, inst.Path, "#!/bin/sh\nexit 0\n")

	_, err = o.GetOrCreateServer(inst.ID)
	require.NoError(t, err)

	settings := types.DefaultInstanceSettings()
	settings.MemoryValue = 6
	settings.MemoryUnit = types.MemoryUnitGigabytes
	require.NoError(t, o.UpdateSettings(inst.ID, inst.Name, settings))

	got, err := reg.Get(inst.ID)
	require.NoError(t, err)
	require.Equal(t, 6, got.Settings.MemoryValue)
}

func TestCheckInstanceNameExists(t *testing.T) {
	o, reg, _ := newTestOrchestrator(t)
	_, err := reg.Create("taken", "1.20.4", types.LoaderVanilla, "")
	require.NoError(t, err)

	require.True(t, o.CheckInstanceNameExists("taken"))
	require.False(t, o.CheckInstanceNameExists("free"))
}

func TestPerformMaintenancePrunesUnreferencedArtifacts(t *testing.T) {
	o, reg, dir := newTestOrchestrator(t)
	inst, err := reg.Create("withmods", "1.20.4", types.LoaderFabric, "0.15.0")
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(inst.Path, "mods"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(inst.Path, "mods", "example.jar"), []byte("jar-bytes"), 0o644))

	report, err := o.PerformMaintenance()
	require.NoError(t, err)
	require.Equal(t, 1, report.Scanned)
	require.Equal(t, 1, report.Added)
	require.Equal(t, 0, report.Pruned)

	// A blob in the store that no instance references is pruned on the next pass.
	stray := filepath.Join(dir, "stray.jar")
	require.NoError(t, os.WriteFile(stray, []byte("unreferenced"), 0o644))
	digest, err := artifact.CalculateHash(stray, types.ArtifactSHA1)
	require.NoError(t, err)
	_, err = o.store.Add(stray, digest, types.ArtifactSHA1)
	require.NoError(t, err)

	report, err = o.PerformMaintenance()
	require.NoError(t, err)
	require.Equal(t, 1, report.Pruned)
}
