/*
Package log provides structured logging for mcserverd using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all mcserverd packages
  - Thread-safe concurrent writes

Configuration:
  - Level: filter messages below threshold (debug/info/warn/error)
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: add a component name to all logs from a subsystem (e.g. "orchestrator", "supervisor")
  - WithInstanceID: add an instance ID to all logs concerning one managed server

# Usage

Initializing the Logger:

	import "github.com/mcserverd/mcserverd/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Component Loggers:

	schedulerLog := log.WithComponent("supervisor")
	schedulerLog.Info().Msg("starting process")

	instLog := log.WithInstanceID(inst.ID)
	instLog.Warn().Err(err).Msg("health check failed")

# Integration Points

This package integrates with:

  - pkg/orchestrator: logs instance lifecycle and maintenance sweeps
  - pkg/supervisor: logs process start/stop/crash events
  - pkg/loader: logs mod/plugin materialization and download activity
  - cmd/mcserverd: logs CLI command and daemon HTTP activity

# Security

Never log secrets or sensitive data (tokens, API keys). Use structured
fields (.Str, .Int, .Err) instead of string concatenation so values can be
redacted or queried reliably.

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
