// Package supervisor drives a single instance's child process through its
// lifecycle: Stopped, Installing, Starting, Running, Stopping, Crashed. One
// Supervisor owns one instance; pkg/orchestrator owns the instance_id →
// Supervisor map described in the concurrency model.
//
// Every blocking operation (spawn, stdin write, process wait, sleep) is a
// suspension point; the core state lock is only ever held across a copy-out
// or store-back, never across one of those calls.
package supervisor
