// Package cache implements the unified TTL + stale-while-revalidate cache
// manager shared by every upstream client (version manifests, loader
// metadata, catalogue search results). Entries live up to 2x their TTL
// so a stale hit can still be served while a background refresh runs.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/mcserverd/mcserverd/pkg/log"
	"github.com/mcserverd/mcserverd/pkg/metrics"
	"github.com/rs/zerolog"
)

// defaultMaxEntries bounds the in-memory LRU. 1000 matches the retention
// policy's default capacity.
const defaultMaxEntries = 1000

// Status reports whether a Get found a fresh, stale, or absent entry.
type Status int

const (
	Miss Status = iota
	Hit
	Stale
)

type entry struct {
	Body       string        `json:"body"`
	Expiry     time.Time     `json:"expiry"`
	ETag       string        `json:"etag,omitempty"`
	Persistent bool          `json:"-"`
	StoredAt   time.Time     `json:"-"`
	TTL        time.Duration `json:"ttl"`
}

// hardExpired reports whether e is older than 2x its TTL, the point past
// which it must be treated as a Miss rather than served stale.
func (e *entry) hardExpired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.StoredAt.Add(2 * e.TTL))
}

// Manager is a concurrency-safe in-memory cache with an optional disk
// mirror for entries flagged persistent. Entries are held in a bounded LRU
// of at most maxEntries, each good for up to 2x its TTL before it is
// dropped outright rather than served stale.
type Manager struct {
	mu       sync.RWMutex
	lru      *lru.Cache
	dirty    map[string]bool
	cacheDir string
	logger   zerolog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager creates a cache manager. If cacheDir is non-empty, persistent
// entries are mirrored under <cacheDir>/metadata and a background flush
// goroutine runs every 60s.
func NewManager(cacheDir string) *Manager {
	l, err := lru.New(defaultMaxEntries)
	if err != nil {
		// Only size <= 0 returns an error, and defaultMaxEntries is a
		// positive constant, so this path is unreachable.
		panic(err)
	}
	m := &Manager{
		lru:      l,
		dirty:    make(map[string]bool),
		cacheDir: cacheDir,
		logger:   log.WithComponent("cache"),
		stopCh:   make(chan struct{}),
	}
	if cacheDir != "" {
		go m.flushLoop()
	}
	return m
}

// Stop stops the background flush goroutine and performs a final flush.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.flush()
	})
}

// Get returns a fresh or stale value for key, decoded into dst. The bool
// result is true for either Hit or Stale (both count as present).
func (m *Manager) Get(key string, dst any) (bool, error) {
	status, body := m.lookup(key)
	if status == Miss {
		return false, nil
	}
	return true, json.Unmarshal([]byte(body), dst)
}

// GetWithStatus returns the freshness of the cached value without
// collapsing Stale into Hit.
func (m *Manager) GetWithStatus(key string, dst any) (Status, error) {
	status, body := m.lookup(key)
	if status == Miss {
		return Miss, nil
	}
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return status, err
	}
	return status, nil
}

func (m *Manager) lookup(key string) (Status, string) {
	v, ok := m.lru.Get(key)
	var e *entry
	if ok {
		e = v.(*entry)
	} else {
		if m.cacheDir == "" {
			metrics.CacheHitsTotal.WithLabelValues("miss").Inc()
			return Miss, ""
		}
		loaded, err := m.loadFromDisk(key)
		if err != nil || loaded == nil {
			metrics.CacheHitsTotal.WithLabelValues("miss").Inc()
			return Miss, ""
		}
		m.lru.Add(key, loaded)
		e = loaded
	}

	now := time.Now()
	if e.hardExpired(now) {
		m.lru.Remove(key)
		m.mu.Lock()
		delete(m.dirty, key)
		m.mu.Unlock()
		metrics.CacheHitsTotal.WithLabelValues("miss").Inc()
		return Miss, ""
	}
	if now.Before(e.Expiry) {
		metrics.CacheHitsTotal.WithLabelValues("hit").Inc()
		return Hit, e.Body
	}
	metrics.CacheHitsTotal.WithLabelValues("stale").Inc()
	return Stale, e.Body
}

// Set stores value under key with the given ttl. When persistent is true
// the entry is mirrored to disk on the next flush cycle.
func (m *Manager) Set(key string, value any, ttl time.Duration, persistent bool) error {
	return m.SetWithETag(key, value, ttl, persistent, "")
}

// SetWithETag is Set plus an opaque ETag/version marker callers may use for
// conditional upstream requests.
func (m *Manager) SetWithETag(key string, value any, ttl time.Duration, persistent bool, etag string) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache entry %q: %w", key, err)
	}

	e := &entry{
		Body:       string(body),
		Expiry:     time.Now().Add(ttl),
		ETag:       etag,
		Persistent: persistent,
		StoredAt:   time.Now(),
		TTL:        ttl,
	}

	m.lru.Add(key, e)
	if persistent {
		m.mu.Lock()
		m.dirty[key] = true
		m.mu.Unlock()
	}
	return nil
}

// Invalidate drops key from memory and disk.
func (m *Manager) Invalidate(key string) {
	m.lru.Remove(key)
	m.mu.Lock()
	delete(m.dirty, key)
	m.mu.Unlock()

	if m.cacheDir != "" {
		_ = os.Remove(m.diskPath(key))
	}
}

// Clear drops every entry from memory and removes the disk mirrors.
func (m *Manager) Clear() {
	m.lru.Purge()
	m.mu.Lock()
	m.dirty = make(map[string]bool)
	m.mu.Unlock()

	if m.cacheDir != "" {
		_ = os.RemoveAll(filepath.Join(m.cacheDir, "metadata"))
	}
}

// FetchFunc produces a fresh value to store under a cache key.
type FetchFunc func(ctx context.Context) (any, error)

// FetchWithOptions implements the SWR primitive: a Hit returns immediately;
// a Stale value is returned immediately while fetchFn runs in the
// background to refresh it; a Miss awaits fetchFn.
func (m *Manager) FetchWithOptions(ctx context.Context, key string, ttl time.Duration, persistent bool, dst any, fetchFn FetchFunc) error {
	status, body := m.lookup(key)

	switch status {
	case Hit:
		return json.Unmarshal([]byte(body), dst)
	case Stale:
		if err := json.Unmarshal([]byte(body), dst); err != nil {
			return err
		}
		go m.revalidate(key, ttl, persistent, fetchFn)
		return nil
	default: // Miss
		value, err := fetchFn(ctx)
		if err != nil {
			return err
		}
		if err := m.Set(key, value, ttl, persistent); err != nil {
			return err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, dst)
	}
}

func (m *Manager) revalidate(key string, ttl time.Duration, persistent bool, fetchFn FetchFunc) {
	value, err := fetchFn(context.Background())
	if err != nil {
		m.logger.Debug().Err(err).Str("key", key).Msg("background revalidation failed, keeping stale entry")
		return
	}
	if err := m.Set(key, value, ttl, persistent); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("failed to store revalidated entry")
	}
}

func (m *Manager) flushLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.flush()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) flush() {
	if m.cacheDir == "" {
		return
	}

	m.mu.Lock()
	dirty := m.dirty
	m.dirty = make(map[string]bool)
	m.mu.Unlock()

	snapshot := make(map[string]*entry, len(dirty))
	for key := range dirty {
		if v, ok := m.lru.Peek(key); ok {
			snapshot[key] = v.(*entry)
		}
	}

	if err := os.MkdirAll(filepath.Join(m.cacheDir, "metadata"), 0o755); err != nil {
		m.logger.Error().Err(err).Msg("failed to create cache metadata directory")
		return
	}

	for key, e := range snapshot {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		if err := os.WriteFile(m.diskPath(key), data, 0o644); err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("failed to persist cache entry")
		}
	}
}

func (m *Manager) loadFromDisk(key string) (*entry, error) {
	data, err := os.ReadFile(m.diskPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	// StoredAt isn't persisted; Expiry and TTL were both derived from it at
	// Set time (Expiry == StoredAt + TTL), so it can be reconstructed.
	e.StoredAt = e.Expiry.Add(-e.TTL)
	return &e, nil
}

func (m *Manager) diskPath(key string) string {
	return filepath.Join(m.cacheDir, "metadata", url.QueryEscape(key)+".json")
}
