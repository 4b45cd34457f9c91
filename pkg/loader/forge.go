package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/mcserverd/mcserverd/pkg/errs"
)

type forgeLoader struct {
	deps loaderDeps
}

type forgePromotions struct {
	Promos map[string]string `json:"promos"`
}

func (l *forgeLoader) ResolveVersions(ctx context.Context, mcVersion string) ([]VersionOption, error) {
	const url = "https://files.minecraftforge.net/net/minecraftforge/forge/promotions_slim.json"

	var promos forgePromotions
	err := l.deps.cache.FetchWithOptions(ctx, "forge:promotions", resolveTTL, true, &promos, func(ctx context.Context) (any, error) {
		return fetchJSON[forgePromotions](ctx, l.deps.http, url)
	})
	if err != nil {
		return nil, err
	}

	var opts []VersionOption
	for key, version := range promos.Promos {
		if !strings.HasPrefix(key, mcVersion+"-") {
			continue
		}
		opts = append(opts, VersionOption{ID: version, Stable: strings.HasSuffix(key, "-recommended")})
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i].ID < opts[j].ID })
	return opts, nil
}

func (l *forgeLoader) resolveLoaderVersion(ctx context.Context, mcVersion string) (string, error) {
	promos, err := fetchJSON[forgePromotions](ctx, l.deps.http, "https://files.minecraftforge.net/net/minecraftforge/forge/promotions_slim.json")
	if err != nil {
		return "", err
	}
	if v, ok := promos.Promos[mcVersion+"-recommended"]; ok {
		return v, nil
	}
	if v, ok := promos.Promos[mcVersion+"-latest"]; ok {
		return v, nil
	}
	return "", fmt.Errorf("no forge build for %s: %w", mcVersion, errs.ErrNotFound)
}

// isModernForge reports whether mcVersion's minor release is 17 or later,
// where Forge switched from a self-contained server jar to an installer
// that produces run.sh/run.bat launch scripts.
func isModernForge(mcVersion string) bool {
	parts := strings.Split(mcVersion, ".")
	if len(parts) < 2 {
		return false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return minor >= 17
}

func (l *forgeLoader) Materialize(ctx context.Context, req MaterializeRequest) (string, error) {
	loaderVersion := req.LoaderVersion
	if loaderVersion == "" {
		v, err := l.resolveLoaderVersion(ctx, req.MCVersion)
		if err != nil {
			return "", err
		}
		loaderVersion = v
	}

	installerURL := fmt.Sprintf(
		"https://maven.minecraftforge.net/net/minecraftforge/forge/%s-%s/forge-%s-%s-installer.jar",
		req.MCVersion, loaderVersion, req.MCVersion, loaderVersion,
	)
	installerPath := filepath.Join(req.DestDir, "forge-installer.jar")
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

	if isModernForge(req.MCVersion) {
		scriptName := "run.sh"
		if runtime.GOOS == "windows" {
			scriptName = "run.bat"
		}
		runScript := filepath.Join(req.DestDir, scriptName)
		if _, err := os.Stat(runScript); err != nil {
			return "", fmt.Errorf("forge installer did not produce %s: %w", scriptName, errs.ErrInvalidArtifact)
		}
		return runScript, nil
	}

	jarPath, err := findFirstMatch(req.DestDir, fmt.Sprintf("forge-%s-%s*.jar", req.MCVersion, loaderVersion))
	if err != nil {
		return "", err
	}
	target := filepath.Join(req.DestDir, "server.jar")
	if err := os.Rename(jarPath, target); err != nil {
		return "", err
	}
	if err := requireValidJar(target); err != nil {
		return "", err
	}
	return target, nil
}
