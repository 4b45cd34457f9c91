// Package metrics exposes a Prometheus registry (namespace "mcserver_")
// covering instance counts by status, per-instance CPU/RAM samples, cache
// hit/stale/miss counts, artifact store size and prune counts, download
// attempt outcomes, provider request counts, and crash/restart counters.
//
// Collector polls the instance registry and the supervisor layer on a
// fixed interval and updates the gauges; counters are incremented inline by
// the components that own the events, except the provider request and
// crash/restart counters, which are registered but never incremented by any
// component in this module. health.go adds a small liveness/
// readiness HTTP surface independent of Prometheus, in the same shape
// orchestration tooling expects from a long-running daemon.
package metrics
