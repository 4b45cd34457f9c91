package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/mcserverd/mcserverd/pkg/errs"
)

type fabricLoader struct {
	deps loaderDeps
}

type fabricLoaderMeta struct {
	Loader struct {
		Version string `json:"version"`
		Stable  bool   `json:"stable"`
	} `json:"loader"`
}

type fabricInstallerMeta struct {
	Version string `json:"version"`
	Stable  bool   `json:"stable"`
	URL     string `json:"url"`
}

func (l *fabricLoader) ResolveVersions(ctx context.Context, mcVersion string) ([]VersionOption, error) {
	url := fmt.Sprintf("https://meta.fabricmc.net/v2/versions/loader/%s", mcVersion)
	key := fmt.Sprintf("fabric:loader:%s", mcVersion)

	var metas []fabricLoaderMeta
	err := l.deps.cache.FetchWithOptions(ctx, key, resolveTTL, true, &metas, func(ctx context.Context) (any, error) {
		return fetchJSON[[]fabricLoaderMeta](ctx, l.deps.http, url)
	})
	if err != nil {
		return nil, err
	}

	opts := make([]VersionOption, 0, len(metas))
	for _, m := range metas {
		opts = append(opts, VersionOption{ID: m.Loader.Version, Stable: m.Loader.Stable})
	}
	return opts, nil
}

func (l *fabricLoader) latestInstaller(ctx context.Context) (fabricInstallerMeta, error) {
	installers, err := fetchJSON[[]fabricInstallerMeta](ctx, l.deps.http, "https://meta.fabricmc.net/v2/versions/installer")
	if err != nil {
		return fabricInstallerMeta{}, err
	}
	for _, inst := range installers {
		if inst.Stable {
			return inst, nil
		}
	}
	if len(installers) > 0 {
		return installers[0], nil
	}
	return fabricInstallerMeta{}, fmt.Errorf("no fabric installer published: %w", errs.ErrNotFound)
}

func (l *fabricLoader) Materialize(ctx context.Context, req MaterializeRequest) (string, error) {
	loaderVersion := req.LoaderVersion
	if loaderVersion == "" {
		metas, err := fetchJSON[[]fabricLoaderMeta](ctx, l.deps.http, fmt.Sprintf("https://meta.fabricmc.net/v2/versions/loader/%s", req.MCVersion))
		if err != nil {
			return "", err
		}
		if len(metas) == 0 {
			return "", fmt.Errorf("no fabric loader for %s: %w", req.MCVersion, errs.ErrNotFound)
		}
		loaderVersion = metas[0].Loader.Version
	}

	installer, err := l.latestInstaller(ctx)
	if err != nil {
		return "", err
	}

	installerURL := fmt.Sprintf("https://meta.fabricmc.net/v2/versions/loader/%s/%s/%s/server/jar",
		req.MCVersion, loaderVersion, installer.Version)

	installerPath := filepath.Join(req.DestDir, "fabric-installer.jar")
	if err := l.deps.downloader.Fetch(ctx, download.Request{URL: installerURL, TargetPath: installerPath}); err != nil {
		return "", err
	}
	defer os.Remove(installerPath)

	if err := requireValidJar(installerPath); err != nil {
		return "", err
	}

	// The "server/jar" meta endpoint bundles loader+installer into a single
	// ready-to-run launcher, so no installer subprocess is needed here — we
	// still run it through requireValidJar and place it under the
	// conventional name the supervisor expects.
	target := filepath.Join(req.DestDir, "fabric-server.jar")
	if err := os.Rename(installerPath, target); err != nil {
		return "", err
	}
	if err := requireValidJar(target); err != nil {
		return "", err
	}
	return target, nil
}
