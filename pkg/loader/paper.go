package loader

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/mcserverd/mcserverd/pkg/errs"
	"github.com/mcserverd/mcserverd/pkg/types"
)

// paperLoader drives the PaperMC API v2, shared by the "paper" and
// "velocity" projects (Velocity is distributed through the same build
// infrastructure).
type paperLoader struct {
	deps    loaderDeps
	project string
}

type paperBuildsResponse struct {
	Builds []struct {
		Build      int    `json:"build"`
		Channel    string `json:"channel"`
		Downloads  map[string]paperDownload `json:"downloads"`
	} `json:"builds"`
}

type paperDownload struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
}

func (l *paperLoader) ResolveVersions(ctx context.Context, mcVersion string) ([]VersionOption, error) {
	url := fmt.Sprintf("https://api.papermc.io/v2/projects/%s/versions/%s/builds", l.project, mcVersion)
	key := fmt.Sprintf("%s:builds:%s", l.project, mcVersion)

	var resp paperBuildsResponse
	err := l.deps.cache.FetchWithOptions(ctx, key, resolveTTL, true, &resp, func(ctx context.Context) (any, error) {
		return fetchJSON[paperBuildsResponse](ctx, l.deps.http, url)
	})
	if err != nil {
		return nil, err
	}

	opts := make([]VersionOption, 0, len(resp.Builds))
	for _, b := range resp.Builds {
		opts = append(opts, VersionOption{ID: fmt.Sprint(b.Build), Stable: b.Channel == "default"})
	}
	return opts, nil
}

func (l *paperLoader) Materialize(ctx context.Context, req MaterializeRequest) (string, error) {
	url := fmt.Sprintf("https://api.papermc.io/v2/projects/%s/versions/%s/builds", l.project, req.MCVersion)
	resp, err := fetchJSON[paperBuildsResponse](ctx, l.deps.http, url)
	if err != nil {
		return "", err
	}

	build := req.LoaderVersion
	var selected *paperDownload
	var selectedBuild int
	for _, b := range resp.Builds {
		if build != "" && fmt.Sprint(b.Build) != build {
			continue
		}
		dl, ok := b.Downloads["application"]
		if !ok {
			continue
		}
		selected = &dl
		selectedBuild = b.Build
		if build == "" {
			continue // keep scanning, last entry is the newest
		}
		break
	}
	if selected == nil {
		return "", fmt.Errorf("%s build %q for %s: %w", l.project, build, req.MCVersion, errs.ErrNotFound)
	}

	downloadURL := fmt.Sprintf("https://api.papermc.io/v2/projects/%s/versions/%s/builds/%d/downloads/%s",
		l.project, req.MCVersion, selectedBuild, selected.Name)

	target := filepath.Join(req.DestDir, "server.jar")
	fetchReq := download.Request{URL: downloadURL, TargetPath: target}
	if selected.SHA256 != "" {
		fetchReq.ExpectedHash = selected.SHA256
		fetchReq.ExpectedAlgo = types.ArtifactSHA256
	}
	if err := l.deps.downloader.Fetch(ctx, fetchReq); err != nil {
		return "", err
	}

	if err := requireValidJar(target); err != nil {
		return "", err
	}
	return target, nil
}

// purpurLoader drives the PurpurMC build API, which mirrors Paper's shape
// closely enough to share the download plumbing but exposes builds under a
// single endpoint instead of a per-version list call.
type purpurLoader struct {
	deps loaderDeps
}

type purpurVersionResponse struct {
	Builds struct {
		Latest string   `json:"latest"`
		All    []string `json:"all"`
	} `json:"builds"`
}

func (l *purpurLoader) ResolveVersions(ctx context.Context, mcVersion string) ([]VersionOption, error) {
	url := fmt.Sprintf("https://api.purpurmc.org/v2/purpur/%s", mcVersion)
	key := fmt.Sprintf("purpur:builds:%s", mcVersion)

	var resp purpurVersionResponse
	err := l.deps.cache.FetchWithOptions(ctx, key, resolveTTL, true, &resp, func(ctx context.Context) (any, error) {
		return fetchJSON[purpurVersionResponse](ctx, l.deps.http, url)
	})
	if err != nil {
		return nil, err
	}

	opts := make([]VersionOption, 0, len(resp.Builds.All))
	for _, b := range resp.Builds.All {
		opts = append(opts, VersionOption{ID: b, Stable: b == resp.Builds.Latest})
	}
	return opts, nil
}

func (l *purpurLoader) Materialize(ctx context.Context, req MaterializeRequest) (string, error) {
	build := req.LoaderVersion
	if build == "" {
		resp, err := fetchJSON[purpurVersionResponse](ctx, l.deps.http, fmt.Sprintf("https://api.purpurmc.org/v2/purpur/%s", req.MCVersion))
		if err != nil {
			return "", err
		}
		build = resp.Builds.Latest
	}

	downloadURL := fmt.Sprintf("https://api.purpurmc.org/v2/purpur/%s/%s/download", req.MCVersion, build)
	target := filepath.Join(req.DestDir, "server.jar")
	if err := l.deps.downloader.Fetch(ctx, download.Request{URL: downloadURL, TargetPath: target}); err != nil {
		return "", err
	}

	if err := requireValidJar(target); err != nil {
		return "", err
	}
	return target, nil
}
