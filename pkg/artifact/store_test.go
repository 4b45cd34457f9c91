package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAddAndProvisionRoundTrip(t *testing.T) {
	work := t.TempDir()
	store := NewStore(filepath.Join(work, "store"))

	src := writeTemp(t, work, "server.jar", "hello world")
	digest, err := CalculateHash(src, types.ArtifactSHA1)
	require.NoError(t, err)

	path, err := store.Add(src, digest, types.ArtifactSHA1)
	require.NoError(t, err)
	require.True(t, store.Exists(types.ArtifactSHA1, digest))

	target := filepath.Join(work, "instance", "server.jar")
	require.NoError(t, store.Provision(types.ArtifactSHA1, digest, target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
	require.NotEqual(t, target, path)
}

func TestAddIsIdempotent(t *testing.T) {
	work := t.TempDir()
	store := NewStore(filepath.Join(work, "store"))

	src := writeTemp(t, work, "a.jar", "content")
	digest, _ := CalculateHash(src, types.ArtifactSHA256)

	p1, err := store.Add(src, digest, types.ArtifactSHA256)
	require.NoError(t, err)
	p2, err := store.Add(src, digest, types.ArtifactSHA256)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}

func TestAddRejectsHashMismatch(t *testing.T) {
	work := t.TempDir()
	store := NewStore(filepath.Join(work, "store"))

	src := writeTemp(t, work, "a.jar", "content")
	_, err := store.Add(src, "deadbeef", types.ArtifactSHA1)
	require.Error(t, err)
}

func TestPruneRemovesUnreferenced(t *testing.T) {
	work := t.TempDir()
	store := NewStore(filepath.Join(work, "store"))

	keep := writeTemp(t, work, "keep.jar", "keep me")
	drop := writeTemp(t, work, "drop.jar", "drop me")

	keepDigest, _ := CalculateHash(keep, types.ArtifactSHA1)
	dropDigest, _ := CalculateHash(drop, types.ArtifactSHA1)

	_, err := store.Add(keep, keepDigest, types.ArtifactSHA1)
	require.NoError(t, err)
	_, err = store.Add(drop, dropDigest, types.ArtifactSHA1)
	require.NoError(t, err)

	removed, err := store.Prune(types.ArtifactSHA1, map[string]bool{keepDigest: true})
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	require.True(t, store.Exists(types.ArtifactSHA1, keepDigest))
	require.False(t, store.Exists(types.ArtifactSHA1, dropDigest))
}
