// Package storage provides BoltDB-backed persistence for the instance
// registry: one bucket for Instance rows, one for ScheduledTask rows, both
// JSON-marshaled and keyed by ID. BoltDB gives ACID transactions and ordered
// key enumeration without an external database process — the same
// trade-off an embedded SQLite file would make, chosen here because the
// rest of this tree already depends on it for nothing else.
package storage
