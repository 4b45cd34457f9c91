// Package registry owns instance metadata and the on-disk directory each
// instance lives in: Create, Import, Clone, settings updates, and the
// scheduled-task table all go through Registry. It depends on pkg/storage
// for persistence and pkg/download only for the modpack-overlay fetch in
// CreateFromModpack — it never imports pkg/provider, so catalogue clients
// stay free to depend on the registry without a cycle.
package registry
