// Package loader implements the mod-loader dispatcher: one Loader per
// server implementation, each knowing how to resolve a version list from
// its upstream and how to materialize a runnable server into an instance
// directory.
package loader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/mcserverd/mcserverd/pkg/artifact"
	"github.com/mcserverd/mcserverd/pkg/cache"
	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/mcserverd/mcserverd/pkg/errs"
	"github.com/mcserverd/mcserverd/pkg/log"
	"github.com/mcserverd/mcserverd/pkg/types"
)

// resolveTTL is how long a resolved version list is trusted before the
// cache manager triggers a background revalidation.
const resolveTTL = time.Hour

// VersionOption is one entry in a loader's available-version list.
type VersionOption struct {
	ID     string `json:"id"`
	Stable bool   `json:"stable"`
}

// LogFunc receives installer/extraction progress lines for forwarding to
// an instance's log broadcast.
type LogFunc func(line string)

// MaterializeRequest carries everything a Loader needs to produce a
// runnable server in DestDir.
type MaterializeRequest struct {
	MCVersion     string
	LoaderVersion string
	DestDir       string
	JavaPath      string
	Log           LogFunc
}

// Loader resolves upstream versions and materializes a server binary.
type Loader interface {
	ResolveVersions(ctx context.Context, mcVersion string) ([]VersionOption, error)
	Materialize(ctx context.Context, req MaterializeRequest) (string, error)
}

// Dispatcher fans out to the Loader registered for each types.LoaderKind.
type Dispatcher struct {
	loaders map[types.LoaderKind]Loader
}

// New builds a Dispatcher with every built-in loader wired to the shared
// cache, downloader, and artifact store.
func New(cacheMgr *cache.Manager, downloader *download.Downloader, store *artifact.Store, httpClient *http.Client) *Dispatcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	deps := loaderDeps{cache: cacheMgr, downloader: downloader, store: store, http: httpClient}

	return &Dispatcher{loaders: map[types.LoaderKind]Loader{
		types.LoaderVanilla:    &vanillaLoader{deps},
		types.LoaderPaper:      &paperLoader{deps: deps, project: "paper"},
		types.LoaderPurpur:     &purpurLoader{deps},
		types.LoaderFabric:     &fabricLoader{deps},
		types.LoaderForge:      &forgeLoader{deps},
		types.LoaderNeoForge:   &neoforgeLoader{deps},
		types.LoaderVelocity:   &paperLoader{deps: deps, project: "velocity"},
		types.LoaderBungeeCord: &bungeeCordLoader{deps},
		types.LoaderBedrock:    &bedrockLoader{deps},
	}}
}

// For returns the Loader registered for kind, or errs.ErrNotFound.
func (d *Dispatcher) For(kind types.LoaderKind) (Loader, error) {
	l, ok := d.loaders[kind]
	if !ok {
		return nil, fmt.Errorf("loader %q: %w", kind, errs.ErrNotFound)
	}
	return l, nil
}

type loaderDeps struct {
	cache      *cache.Manager
	downloader *download.Downloader
	store      *artifact.Store
	http       *http.Client
}

var zipMagics = [][]byte{
	{0x50, 0x4B, 0x03, 0x04},
	{0x50, 0x4B, 0x05, 0x06},
	{0x50, 0x4B, 0x07, 0x08},
}

// verifyZipSignature checks the leading 4 bytes of path against the three
// valid ZIP local/central-directory magic sequences. A server JAR that
// fails this check is corrupt or an HTML error page saved by mistake.
func verifyZipSignature(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil {
		return false, nil
	}
	for _, magic := range zipMagics {
		if bytes.Equal(head, magic) {
			return true, nil
		}
	}
	return false, nil
}

// requireValidJar verifies path's ZIP signature and removes it, returning
// errs.ErrInvalidArtifact, if the check fails.
func requireValidJar(path string) error {
	ok, err := verifyZipSignature(path)
	if err != nil {
		return err
	}
	if !ok {
		os.Remove(path)
		return fmt.Errorf("materialized jar at %s: %w", path, errs.ErrInvalidArtifact)
	}
	return nil
}

// runInstaller executes an installer JAR, forwarding combined stdout/stderr
// lines to logFn as they arrive. On a non-zero exit the captured output is
// returned in InstallerFailed.Log.
func runInstaller(ctx context.Context, javaPath string, args []string, workDir string, logFn LogFunc) error {
	if javaPath == "" {
		javaPath = "java"
	}
	logger := log.WithComponent("loader")
	cmd := exec.CommandContext(ctx, javaPath, args...)
	cmd.Dir = workDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting installer: %w", err)
	}

	var captured bytes.Buffer
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		captured.WriteString(line)
		captured.WriteByte('\n')
		logger.Debug().Str("line", line).Msg("installer output")
		if logFn != nil {
			logFn(line)
		}
	}

	if err := cmd.Wait(); err != nil {
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return &errs.InstallerFailed{Loader: filepath.Base(javaPath), Exit: exitCode, Log: captured.String()}
	}
	return nil
}

// findFirstMatch returns the first entry in dir whose name matches pattern
// (via filepath.Match), useful for locating installer output whose exact
// filename embeds a version string.
func findFirstMatch(dir, pattern string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); ok {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no file matching %q in %s: %w", pattern, dir, errs.ErrNotFound)
}
