// Package cache provides the stale-while-revalidate TTL cache shared by
// every upstream client. See the Manager and FetchWithOptions docs in
// cache.go for the hit/stale/miss contract.
package cache
