/*
Package types defines the core data structures shared across mcserverd.

This package contains every domain type used by the rest of the module:
instances, their launch settings, scheduled tasks, content-addressed
artifacts, provider catalogue entries, and the resource/status snapshots the
supervisor and metrics layers produce. All other packages depend on types,
and types depends on nothing else in the module.

# Core Types

Instance Management:
  - Instance: a single managed Minecraft server installation
  - LoaderKind: vanilla, paper, purpur, fabric, forge, neoforge, velocity, bungeecord, bedrock
  - InstanceSettings: user-editable launch configuration (memory, port, crash handling, autostart)
  - ScheduledTask: a persisted cron-triggered backup or restart against an instance

Runtime State:
  - ServerStatus: stopped, installing, starting, running, stopping, crashed
  - ResourceUsage: the most recent CPU/RAM sample for a running instance
  - ServerConfig: the launch configuration derived from InstanceSettings at prepare/start time

Content & Artifacts:
  - Artifact: a content-addressed blob reference (sha1/sha256 digest + size)
  - CacheEntry: a serialized cache value with expiry and ETag (pkg/cache uses its own internal entry type)
  - Project / ProjectVersion / ProjectFile: provider-agnostic catalogue entries for mods, plugins, and modpacks
  - InstalledMod / ModSource: a tracked mod/plugin JAR and the catalogue entry it was installed from
  - ProviderName: Modrinth, CurseForge, Spiget, Hangar

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants:
	  type ServerStatus string
	  const (
	      StatusStopped ServerStatus = "stopped"
	      StatusRunning ServerStatus = "running"
	  )

Optional Fields:

	Pointers mark optional data:
	  - *InstanceSettings: nil only before DefaultInstanceSettings populates it
	  - *ModSource: nil when a mod/plugin was installed manually, not via a provider

# Integration Points

This package integrates with:

  - pkg/registry: persists and mutates Instance/InstanceSettings records
  - pkg/supervisor: consumes ServerConfig, reports ServerStatus/ResourceUsage
  - pkg/orchestrator: composes registry, supervisor, loader and artifact state around these types
  - pkg/provider: produces Project/ProjectVersion/ProjectFile from upstream catalogues
  - pkg/content: tracks InstalledMod/ModSource in per-instance sidecar metadata
  - pkg/artifact: stores and deduplicates content by Artifact digest
  - pkg/metrics: exports ServerStatus/ResourceUsage as Prometheus gauges

# Thread Safety

Types in this package carry no synchronization of their own: reads are safe
to share across goroutines, but mutation must be synchronized by the caller.
pkg/registry and pkg/supervisor own that synchronization for persisted and
live state respectively.
*/
package types
