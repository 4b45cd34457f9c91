package loader

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/mcserverd/mcserverd/pkg/errs"
)

type bedrockLoader struct {
	deps loaderDeps
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

const bedrockReleasesURL = "https://api.github.com/repos/Bedrock-OSS/BDS-Versions/releases"

var bedrockVersionPattern = regexp.MustCompile(`[\d.]+`)

func (l *bedrockLoader) ResolveVersions(ctx context.Context, mcVersion string) ([]VersionOption, error) {
	var releases []githubRelease
	err := l.deps.cache.FetchWithOptions(ctx, "bedrock:releases", resolveTTL, true, &releases, func(ctx context.Context) (any, error) {
		return fetchJSON[[]githubRelease](ctx, l.deps.http, bedrockReleasesURL)
	})
	if err != nil {
		return nil, err
	}

	opts := make([]VersionOption, 0, len(releases))
	for i, r := range releases {
		opts = append(opts, VersionOption{ID: r.TagName, Stable: i == 0})
	}
	return opts, nil
}

// bedrockAssetSuffix picks the platform-appropriate release asset name
// fragment for the host this process runs on.
func bedrockAssetSuffix() string {
	switch runtime.GOOS {
	case "windows":
		return "win"
	case "darwin", "linux":
		return "linux"
	default:
		return "linux"
	}
}

func (l *bedrockLoader) Materialize(ctx context.Context, req MaterializeRequest) (string, error) {
	releases, err := fetchJSON[[]githubRelease](ctx, l.deps.http, bedrockReleasesURL)
	if err != nil {
		return "", err
	}

	var release *githubRelease
	for i := range releases {
		if req.LoaderVersion == "" || releases[i].TagName == req.LoaderVersion {
			release = &releases[i]
			break
		}
	}
	if release == nil {
		return "", fmt.Errorf("bedrock release %q: %w", req.LoaderVersion, errs.ErrNotFound)
	}

	suffix := bedrockAssetSuffix()
	var assetURL string
	for _, a := range release.Assets {
		if bedrockVersionPattern.MatchString(a.Name) && containsFold(a.Name, suffix) {
			assetURL = a.BrowserDownloadURL
			break
		}
	}
	if assetURL == "" && len(release.Assets) > 0 {
		assetURL = release.Assets[0].BrowserDownloadURL
	}
	if assetURL == "" {
		return "", fmt.Errorf("bedrock release %s has no assets: %w", release.TagName, errs.ErrNotFound)
	}

	zipPath := filepath.Join(req.DestDir, "bedrock-server.zip")
	if err := l.deps.downloader.Fetch(ctx, download.Request{URL: assetURL, TargetPath: zipPath}); err != nil {
		return "", err
	}
	defer os.Remove(zipPath)

	if err := extractZipTo(zipPath, req.DestDir); err != nil {
		return "", err
	}

	binName := "bedrock_server"
	if suffix == "win" {
		binName = "bedrock_server.exe"
	}
	binPath := filepath.Join(req.DestDir, binName)
	if _, err := os.Stat(binPath); err != nil {
		return "", fmt.Errorf("bedrock archive did not contain %s: %w", binName, errs.ErrInvalidArtifact)
	}
	os.Chmod(binPath, 0o755)
	return binPath, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

func extractZipTo(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		target := filepath.Join(dest, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}
