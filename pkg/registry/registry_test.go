package registry

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcserverd/mcserverd/pkg/storage"
	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, filepath.Join(dir, "instances"))
}

func TestCreateAndGet(t *testing.T) {
	r := newTestRegistry(t)

	inst, err := r.Create("survival", "1.20.4", types.LoaderPaper, "123")
	require.NoError(t, err)
	require.DirExists(t, inst.Path)

	got, err := r.Get(inst.ID)
	require.NoError(t, err)
	require.Equal(t, "survival", got.Name)

	byName, err := r.GetByName("survival")
	require.NoError(t, err)
	require.Equal(t, inst.ID, byName.ID)
}

func TestDeleteRemovesDirectory(t *testing.T) {
	r := newTestRegistry(t)

	inst, err := r.Create("temp", "1.20.4", types.LoaderVanilla, "")
	require.NoError(t, err)

	require.NoError(t, r.Delete(inst.ID))
	require.NoDirExists(t, inst.Path)

	_, err = r.Get(inst.ID)
	require.Error(t, err)
}

func TestClonePreservesSettingsNotIdentity(t *testing.T) {
	r := newTestRegistry(t)

	inst, err := r.Create("original", "1.20.4", types.LoaderFabric, "0.15.0")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(inst.Path, "marker.txt"), []byte("x"), 0o644))

	clone, err := r.Clone(inst.ID, "copy")
	require.NoError(t, err)
	require.NotEqual(t, inst.ID, clone.ID)
	require.Equal(t, inst.MCVersion, clone.MCVersion)
	require.FileExists(t, filepath.Join(clone.Path, "marker.txt"))

	clone.Settings.MemoryValue = 9999
	require.NoError(t, r.UpdateSettings(clone.ID, "", clone.Settings))

	original, err := r.Get(inst.ID)
	require.NoError(t, err)
	require.NotEqual(t, 9999, original.Settings.MemoryValue)
}

func TestScheduleCRUD(t *testing.T) {
	r := newTestRegistry(t)

	inst, err := r.Create("scheduled", "1.20.4", types.LoaderVanilla, "")
	require.NoError(t, err)

	task, err := r.CreateSchedule(inst.ID, "0 4 * * *", types.ScheduleRestart)
	require.NoError(t, err)

	list, err := r.ListSchedules(inst.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, task.ID, list[0].ID)

	task.Enabled = false
	require.NoError(t, r.UpdateSchedule(task))

	require.NoError(t, r.DeleteSchedule(task.ID))
	list, err = r.ListSchedules(inst.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestImportDirectory(t *testing.T) {
	r := newTestRegistry(t)

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "server.jar"), []byte("jarbytes"), 0o644))

	inst, err := r.Import("imported-dir", src, "", types.LoaderVanilla, "")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(inst.Path, "server.jar"))
}

func TestImportZipStripsRoot(t *testing.T) {
	r := newTestRegistry(t)

	zipPath := filepath.Join(t.TempDir(), "pack.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("modpack/server.jar")
	require.NoError(t, err)
	_, err = w.Write([]byte("jarbytes"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	inst, err := r.Import("imported-zip", zipPath, "server.jar", types.LoaderVanilla, "modpack/")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(inst.Path, "server.jar"))
}
