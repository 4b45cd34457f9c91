package loader

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/mcserverd/mcserverd/pkg/errs"
)

type neoforgeLoader struct {
	deps loaderDeps
}

type mavenMetadata struct {
	Versioning struct {
		Versions struct {
			Version []string `xml:"version"`
		} `xml:"versions"`
	} `xml:"versioning"`
}

const neoforgeMetadataURL = "https://maven.neoforged.net/releases/net/neoforged/neoforge/maven-metadata.xml"

// mcVersionToNeoForgePrefix maps "1.20.4" to NeoForge's versioning scheme,
// which drops the leading "1." ("20.4.x").
func mcVersionToNeoForgePrefix(mcVersion string) string {
	return strings.TrimPrefix(mcVersion, "1.")
}

func (l *neoforgeLoader) fetchMetadata(ctx context.Context) (mavenMetadata, error) {
	var meta mavenMetadata
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, neoforgeMetadataURL, nil)
	if err != nil {
		return meta, err
	}
	resp, err := l.deps.http.Do(req)
	if err != nil {
		return meta, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return meta, &errs.ProviderError{Provider: "neoforge", Status: resp.StatusCode, Body: string(body)}
	}
	if err := xml.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return meta, err
	}
	return meta, nil
}

func (l *neoforgeLoader) ResolveVersions(ctx context.Context, mcVersion string) ([]VersionOption, error) {
	key := "neoforge:metadata"
	var meta mavenMetadata
	err := l.deps.cache.FetchWithOptions(ctx, key, resolveTTL, true, &meta, func(ctx context.Context) (any, error) {
		return l.fetchMetadata(ctx)
	})
	if err != nil {
		return nil, err
	}

	prefix := mcVersionToNeoForgePrefix(mcVersion)
	var opts []VersionOption
	for _, v := range meta.Versioning.Versions.Version {
		if strings.HasPrefix(v, prefix) {
			opts = append(opts, VersionOption{ID: v, Stable: !strings.Contains(v, "beta")})
		}
	}
	return opts, nil
}

func (l *neoforgeLoader) Materialize(ctx context.Context, req MaterializeRequest) (string, error) {
	loaderVersion := req.LoaderVersion
	if loaderVersion == "" {
		opts, err := l.ResolveVersions(ctx, req.MCVersion)
		if err != nil {
			return "", err
		}
		if len(opts) == 0 {
			return "", fmt.Errorf("no neoforge build for %s: %w", req.MCVersion, errs.ErrNotFound)
		}
		loaderVersion = opts[len(opts)-1].ID
	}

	installerURL := fmt.Sprintf(
		"https://maven.neoforged.net/releases/net/neoforged/neoforge/%s/neoforge-%s-installer.jar",
		loaderVersion, loaderVersion,
	)
	installerPath := filepath.Join(req.DestDir, "neoforge-installer.jar")
	if err := l.deps.downloader.Fetch(ctx, download.Request{URL: installerURL, TargetPath: installerPath}); err != nil {
		return "", err
	}
	defer os.Remove(installerPath)

	if err := requireValidJar(installerPath); err != nil {
		return "", err
	}

	if err := runInstaller(ctx, req.JavaPath, []string{"-jar", installerPath, "--installServer"}, req.DestDir, req.Log); err != nil {
		return "", err
	}

	scriptName := "run.sh"
	if runtime.GOOS == "windows" {
		scriptName = "run.bat"
	}
	runScript := filepath.Join(req.DestDir, scriptName)
	if _, err := os.Stat(runScript); err != nil {
		return "", fmt.Errorf("neoforge installer did not produce %s: %w", scriptName, errs.ErrInvalidArtifact)
	}
	return runScript, nil
}
