// Package artifact implements the content-addressed blob store: immutable
// files named by their hash, published atomically via a temp-file-then-
// rename so no partial file is ever visible under its final path.
package artifact

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mcserverd/mcserverd/pkg/errs"
	"github.com/mcserverd/mcserverd/pkg/log"
	"github.com/mcserverd/mcserverd/pkg/metrics"
	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/google/uuid"
)

// Store is a content-addressed blob store rooted at a directory.
type Store struct {
	root     string
	pruneMus map[types.ArtifactAlgo]*sync.Mutex
	muGuard  sync.Mutex
}

// NewStore creates a Store rooted at root. The directory is created lazily
// on first Add.
func NewStore(root string) *Store {
	return &Store{
		root:     root,
		pruneMus: make(map[types.ArtifactAlgo]*sync.Mutex),
	}
}

func hasherFor(algo types.ArtifactAlgo) (hash.Hash, error) {
	switch algo {
	case types.ArtifactSHA1:
		return sha1.New(), nil
	case types.ArtifactSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported artifact algorithm: %s", algo)
	}
}

// CalculateHash streams path through algo's hash function in 8 KiB blocks
// and returns the lowercase hex digest.
func CalculateHash(path string, algo types.ArtifactAlgo) (string, error) {
	h, err := hasherFor(algo)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 8*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// Path returns the final on-disk path an artifact with the given algo and
// digest would live at, whether or not it currently exists.
func (s *Store) Path(algo types.ArtifactAlgo, digest string) string {
	return filepath.Join(s.root, string(algo), digest[0:2], digest[2:4], digest)
}

// Exists reports whether the artifact is present on disk.
func (s *Store) Exists(algo types.ArtifactAlgo, digest string) bool {
	_, err := os.Stat(s.Path(algo, digest))
	return err == nil
}

// Add publishes sourcePath into the store under (algo, expectedDigest).
// Idempotent: if the artifact already exists, it returns the existing path
// without re-verifying sourcePath.
func (s *Store) Add(sourcePath string, expectedDigest string, algo types.ArtifactAlgo) (string, error) {
	dest := s.Path(algo, expectedDigest)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	actual, err := CalculateHash(sourcePath, algo)
	if err != nil {
		return "", err
	}
	if actual != expectedDigest {
		return "", &errs.HashMismatch{Algo: string(algo), Expected: expectedDigest, Actual: actual}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}

	tmp := dest + "." + uuid.NewString() + ".tmp"
	if err := copyFile(sourcePath, tmp); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("staging artifact: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		if _, statErr := os.Stat(dest); statErr == nil {
			// another worker published it first; ours is redundant
			return dest, nil
		}
		return "", fmt.Errorf("publishing artifact: %w", err)
	}

	return dest, nil
}

// Provision copies the artifact identified by (algo, digest) to
// targetPath, again via temp-then-rename so targetPath only ever shows a
// complete file.
func (s *Store) Provision(algo types.ArtifactAlgo, digest, targetPath string) error {
	src := s.Path(algo, digest)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("artifact %s/%s: %w", algo, digest, errs.ErrNotFound)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return err
	}

	tmp := targetPath + "." + uuid.NewString() + ".tmp"
	if err := copyFile(src, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, targetPath)
}

// Prune removes every file under root/algo whose name is not present in
// active, returning the number of files deleted. Files ending in ".tmp"
// (Add's staging copies) are never removed, so Prune is safe to run
// concurrently with Add; concurrent Prune calls for the same algo are
// serialized by a per-algo mutex.
func (s *Store) Prune(algo types.ArtifactAlgo, active map[string]bool) (int, error) {
	mu := s.pruneMutex(algo)
	mu.Lock()
	defer mu.Unlock()

	logger := log.WithComponent("artifact")
	algoRoot := filepath.Join(s.root, string(algo))

	var removed int
	err := filepath.Walk(algoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		if filepath.Ext(name) == ".tmp" {
			return nil
		}
		if active[name] {
			return nil
		}
		if err := os.Remove(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to prune artifact")
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}

	removeEmptyDirs(algoRoot)

	metrics.ArtifactPrunedTotal.Add(float64(removed))
	if size, sizeErr := dirSize(algoRoot); sizeErr == nil {
		metrics.ArtifactStoreBytes.WithLabelValues(string(algo)).Set(float64(size))
	}

	return removed, nil
}

func (s *Store) pruneMutex(algo types.ArtifactAlgo) *sync.Mutex {
	s.muGuard.Lock()
	defer s.muGuard.Unlock()
	mu, ok := s.pruneMus[algo]
	if !ok {
		mu = &sync.Mutex{}
		s.pruneMus[algo] = mu
	}
	return mu
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func removeEmptyDirs(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(root, e.Name())
		removeEmptyDirs(sub)
		if inner, err := os.ReadDir(sub); err == nil && len(inner) == 0 {
			os.Remove(sub)
		}
	}
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
