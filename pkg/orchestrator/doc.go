// Package orchestrator is the thin composition layer that wires the
// instance registry, mod-loader dispatcher, artifact store, content
// installers, and per-instance supervisors together behind a single Go
// API. Its exported methods are the Control API surface a presentation
// layer (cmd/mcserverd's CLI, or any future RPC front end) drives.
package orchestrator
