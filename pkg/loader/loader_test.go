package loader

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcserverd/mcserverd/pkg/artifact"
	"github.com/mcserverd/mcserverd/pkg/cache"
	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("marker.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestVerifyZipSignatureAcceptsRealZip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.jar")
	writeZip(t, path)

	ok, err := verifyZipSignature(path)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyZipSignatureRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.jar")
	require.NoError(t, os.WriteFile(path, []byte("<html>not a jar</html>"), 0o644))

	ok, err := verifyZipSignature(path)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVanillaMaterializeRejectsNonZipJar(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/jar", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not actually a zip"))
	})
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	work := t.TempDir()
	cacheMgr := cache.NewManager("")
	downloader := download.New(nil)
	store := artifact.NewStore(filepath.Join(work, "artifacts"))

	l := &vanillaLoader{deps: loaderDeps{cache: cacheMgr, downloader: downloader, store: store, http: srv.Client()}}

	// Pre-seed the resolved manifest so Materialize never has to reach the
	// real Mojang endpoint: it reads the cached manifest for the detail URL,
	// then fetches the detail doc itself, which we do hit for real here.
	seeded := mojangManifest{Versions: []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		URL  string `json:"url"`
	}{{ID: "1.20.4", Type: "release", URL: srv.URL + "/detail.json"}}}
	require.NoError(t, cacheMgr.Set("vanilla:manifest", seeded, resolveTTL, false))

	mux.HandleFunc("/detail.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"downloads":{"server":{"url":"` + srv.URL + `/jar","sha1":"","size":18}}}`))
	})

	destDir := filepath.Join(work, "instance")
	require.NoError(t, os.MkdirAll(destDir, 0o755))

	_, err := l.Materialize(context.Background(), MaterializeRequest{
		MCVersion: "1.20.4",
		DestDir:   destDir,
	})
	require.Error(t, err) // not a valid zip, so requireValidJar must reject it
}

func TestDispatcherForUnknownLoader(t *testing.T) {
	d := New(cache.NewManager(""), download.New(nil), artifact.NewStore(t.TempDir()), nil)
	_, err := d.For("nonexistent")
	require.Error(t, err)
}
