package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/mcserverd/mcserverd/pkg/errs"
	"github.com/mcserverd/mcserverd/pkg/types"
)

const mojangManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

type vanillaLoader struct {
	deps loaderDeps
}

type mojangManifest struct {
	Versions []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"versions"`
}

type mojangVersionDetail struct {
	Downloads struct {
		Server struct {
			URL  string `json:"url"`
			SHA1 string `json:"sha1"`
			Size int64  `json:"size"`
		} `json:"server"`
	} `json:"downloads"`
}

func (l *vanillaLoader) ResolveVersions(ctx context.Context, mcVersion string) ([]VersionOption, error) {
	var manifest mojangManifest
	err := l.deps.cache.FetchWithOptions(ctx, "vanilla:manifest", resolveTTL, true, &manifest, func(ctx context.Context) (any, error) {
		return fetchJSON[mojangManifest](ctx, l.deps.http, mojangManifestURL)
	})
	if err != nil {
		return nil, err
	}

	opts := make([]VersionOption, 0, len(manifest.Versions))
	for _, v := range manifest.Versions {
		opts = append(opts, VersionOption{ID: v.ID, Stable: v.Type == "release"})
	}
	return opts, nil
}

func (l *vanillaLoader) Materialize(ctx context.Context, req MaterializeRequest) (string, error) {
	var manifest mojangManifest
	hit, err := l.deps.cache.Get("vanilla:manifest", &manifest)
	if !hit || err != nil {
		manifest, err = fetchJSON[mojangManifest](ctx, l.deps.http, mojangManifestURL)
		if err != nil {
			return "", err
		}
	}

	var detailURL string
	for _, v := range manifest.Versions {
		if v.ID == req.MCVersion {
			detailURL = v.URL
			break
		}
	}
	if detailURL == "" {
		return "", fmt.Errorf("minecraft version %q: %w", req.MCVersion, errs.ErrNotFound)
	}

	detail, err := fetchJSON[mojangVersionDetail](ctx, l.deps.http, detailURL)
	if err != nil {
		return "", err
	}
	if detail.Downloads.Server.URL == "" {
		return "", fmt.Errorf("version %q publishes no server jar: %w", req.MCVersion, errs.ErrNotFound)
	}

	target := filepath.Join(req.DestDir, "server.jar")
	err = l.deps.downloader.Fetch(ctx, download.Request{
		URL:          detail.Downloads.Server.URL,
		TargetPath:   target,
		ExpectedHash: detail.Downloads.Server.SHA1,
		ExpectedAlgo: types.ArtifactSHA1,
		ExpectedSize: detail.Downloads.Server.Size,
	})
	if err != nil {
		return "", err
	}

	if err := requireValidJar(target); err != nil {
		return "", err
	}
	return target, nil
}

// fetchJSON performs a plain GET and decodes the JSON body into T.
func fetchJSON[T any](ctx context.Context, client *http.Client, url string) (T, error) {
	var zero T
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return zero, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return zero, &errs.ProviderError{Provider: "mojang", Status: resp.StatusCode, Body: string(body)}
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, err
	}
	return out, nil
}
