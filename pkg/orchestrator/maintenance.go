package orchestrator

import (
	"fmt"
	"path/filepath"

	"github.com/mcserverd/mcserverd/pkg/artifact"
	"github.com/mcserverd/mcserverd/pkg/log"
	"github.com/mcserverd/mcserverd/pkg/types"
)

// MaintenanceReport summarizes one PerformMaintenance pass.
type MaintenanceReport struct {
	Scanned int
	Added   int
	Pruned  int
}

// PerformMaintenance walks every instance's binary plus mods/*.jar and
// plugins/*.jar, registers each with the content-addressed artifact store,
// and prunes anything the store holds that no instance references anymore.
func (o *Orchestrator) PerformMaintenance() (*MaintenanceReport, error) {
	instances, err := o.registry.List()
	if err != nil {
		return nil, fmt.Errorf("listing instances: %w", err)
	}

	report := &MaintenanceReport{}
	active := make(map[string]bool)

	for _, inst := range instances {
		paths := []string{}
		if binPath, ok := findExistingBinary(inst.Path); ok {
			paths = append(paths, binPath)
		}
		for _, sub := range []string{"mods", "plugins"} {
			matches, _ := filepath.Glob(filepath.Join(inst.Path, sub, "*.jar"))
			paths = append(paths, matches...)
		}

		for _, path := range paths {
			report.Scanned++
			digest, err := artifact.CalculateHash(path, types.ArtifactSHA1)
			if err != nil {
				log.WithComponent("orchestrator").Warn().Err(err).Str("path", path).Msg("hashing artifact failed")
				continue
			}
			if _, err := o.store.Add(path, digest, types.ArtifactSHA1); err != nil {
				log.WithComponent("orchestrator").Warn().Err(err).Str("path", path).Msg("registering artifact failed")
				continue
			}
			report.Added++
			active[digest] = true
		}
	}

	pruned, err := o.store.Prune(types.ArtifactSHA1, active)
	if err != nil {
		return report, fmt.Errorf("pruning artifact store: %w", err)
	}
	report.Pruned = pruned
	return report, nil
}
