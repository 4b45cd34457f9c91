package content

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/stretchr/testify/require"
)

func writeJar(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestInstallerInstallAndList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-jar-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	inst := New(dir, KindMod)

	versions := []types.ProjectVersion{
		{ID: "v1", Files: []types.ProjectFile{{URL: srv.URL, Filename: "sodium-1.0.0.jar", Primary: true, Size: 14}}},
	}

	filename, err := inst.Install(context.Background(), download.New(srv.Client()), "sodium", "", versions, types.ProviderModrinth)
	require.NoError(t, err)
	require.Equal(t, "sodium-1.0.0.jar", filename)

	mods, err := inst.ListInstalled()
	require.NoError(t, err)
	require.Len(t, mods, 1)
	require.Equal(t, "sodium-1.0.0.jar", mods[0].Filename)
	require.True(t, mods[0].Enabled)
	require.NotNil(t, mods[0].Source)
	require.Equal(t, types.ProviderModrinth, mods[0].Source.Provider)
}

func TestInstallerEnableDisable(t *testing.T) {
	dir := t.TempDir()
	inst := New(dir, KindPlugin)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "plugins"), 0o755))
	path := filepath.Join(dir, "plugins", "essentials.jar")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, inst.Disable("essentials.jar"))
	_, err := os.Stat(filepath.Join(dir, "plugins", "essentials.jar.disabled"))
	require.NoError(t, err)

	require.NoError(t, inst.Enable("essentials.jar"))
	_, err = os.Stat(filepath.Join(dir, "plugins", "essentials.jar"))
	require.NoError(t, err)
}

func TestInstallerUpdateKeepsDisabledWhenFilenameUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-jar-bytes-v2"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	inst := New(dir, KindPlugin)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "plugins"), 0o755))
	oldFilename := "essentials.jar.disabled"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugins", oldFilename), []byte("old"), 0o644))

	versions := []types.ProjectVersion{
		{ID: "v2", Files: []types.ProjectFile{{URL: srv.URL, Filename: "essentials.jar", Primary: true, Size: 18}}},
	}

	newFilename, err := inst.Update(context.Background(), download.New(srv.Client()), oldFilename, "essentials", "v2", versions, types.ProviderModrinth)
	require.NoError(t, err)
	require.Equal(t, "essentials.jar.disabled", newFilename, "updating a same-named file that was disabled must stay disabled")

	_, err = os.Stat(filepath.Join(dir, "plugins", "essentials.jar.disabled"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "plugins", "essentials.jar"))
	require.True(t, os.IsNotExist(err))
}

func TestInstallerUninstall(t *testing.T) {
	dir := t.TempDir()
	inst := New(dir, KindMod)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mods"), 0o755))
	path := filepath.Join(dir, "mods", "fabricapi.jar")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, inst.Uninstall("fabricapi.jar", false))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestValidateFilenameRejectsTraversal(t *testing.T) {
	require.Error(t, validateFilename("../../etc/passwd"))
	require.Error(t, validateFilename("sub/dir.jar"))
	require.NoError(t, validateFilename("ok.jar"))
}

func TestExtractMetadataFabric(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "mymod.jar")
	writeJar(t, jarPath, map[string]string{
		"fabric.mod.json": `{"id":"mymod","name":"My Mod","version":"2.1.0","description":"does things","authors":["Alice",{"name":"Bob"}]}`,
	})

	mod := extractMetadata(jarPath)
	require.Equal(t, "My Mod", mod.Name)
	require.Equal(t, "2.1.0", mod.Version)
	require.Equal(t, []string{"Alice", "Bob"}, mod.Authors)
}

func TestExtractMetadataModsToml(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "forgemod.jar")
	writeJar(t, jarPath, map[string]string{
		"META-INF/mods.toml": "[[mods]]\nmodId=\"forgemod\"\ndisplayName=\"Forge Mod\"\nversion=\"3.0.0\"\nauthors=\"Carol, Dave\"\n",
	})

	mod := extractMetadata(jarPath)
	require.Equal(t, "Forge Mod", mod.Name)
	require.Equal(t, "3.0.0", mod.Version)
	require.Equal(t, []string{"Carol", "Dave"}, mod.Authors)
}

func TestExtractMetadataLegacyMcmodInfo(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "legacy.jar")
	writeJar(t, jarPath, map[string]string{
		"mcmod.info": `[{"modid": "legacy", "name": "Legacy Mod", "version": "1.0", "description": "an old mod"}]`,
	})

	mod := extractMetadata(jarPath)
	require.Equal(t, "Legacy Mod", mod.Name)
	require.Equal(t, "1.0", mod.Version)
}

func TestExtractMetadataUnknownFormatReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "plain.jar")
	writeJar(t, jarPath, map[string]string{"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\n"})

	mod := extractMetadata(jarPath)
	require.Empty(t, mod.Name)
}
