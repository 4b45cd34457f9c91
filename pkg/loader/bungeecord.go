package loader

import (
	"context"
	"path/filepath"

	"github.com/mcserverd/mcserverd/pkg/download"
)

type bungeeCordLoader struct {
	deps loaderDeps
}

const bungeeCordJenkinsURL = "https://ci.md-5.net/job/BungeeCord/lastSuccessfulBuild/artifact/bootstrap/target/BungeeCord.jar"

// BungeeCord ships a single rolling "latest successful build" artifact;
// there is no meaningful version list, just the one Jenkins-built jar.
func (l *bungeeCordLoader) ResolveVersions(ctx context.Context, mcVersion string) ([]VersionOption, error) {
	return []VersionOption{{ID: "latest", Stable: true}}, nil
}

func (l *bungeeCordLoader) Materialize(ctx context.Context, req MaterializeRequest) (string, error) {
	target := filepath.Join(req.DestDir, "server.jar")
	if err := l.deps.downloader.Fetch(ctx, download.Request{URL: bungeeCordJenkinsURL, TargetPath: target}); err != nil {
		return "", err
	}
	if err := requireValidJar(target); err != nil {
		return "", err
	}
	return target, nil
}
