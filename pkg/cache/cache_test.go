package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetGetHit(t *testing.T) {
	m := NewManager("")
	defer m.Stop()

	require.NoError(t, m.Set("k1", map[string]string{"a": "b"}, time.Minute, false))

	var out map[string]string
	found, err := m.Get("k1", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "b", out["a"])
}

func TestGetMiss(t *testing.T) {
	m := NewManager("")
	defer m.Stop()

	var out map[string]string
	found, err := m.Get("nope", &out)
	require.NoError(t, err)
	require.False(t, found)
}

func TestStaleServedWhileRevalidating(t *testing.T) {
	m := NewManager("")
	defer m.Stop()

	require.NoError(t, m.Set("k1", "old", -time.Second, false))

	var out string
	status, err := m.GetWithStatus("k1", &out)
	require.NoError(t, err)
	require.Equal(t, Stale, status)
	require.Equal(t, "old", out)
}

func TestFetchWithOptionsMissAwaitsFetch(t *testing.T) {
	m := NewManager("")
	defer m.Stop()

	var out string
	err := m.FetchWithOptions(context.Background(), "k1", time.Minute, false, &out, func(ctx context.Context) (any, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	require.Equal(t, "fresh", out)
}

func TestFetchWithOptionsStaleReturnsImmediately(t *testing.T) {
	m := NewManager("")
	defer m.Stop()

	require.NoError(t, m.Set("k1", "old", -time.Second, false))

	called := make(chan struct{}, 1)
	var out string
	err := m.FetchWithOptions(context.Background(), "k1", time.Minute, false, &out, func(ctx context.Context) (any, error) {
		called <- struct{}{}
		return "refreshed", nil
	})
	require.NoError(t, err)
	require.Equal(t, "old", out)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("background revalidation never ran")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	require.NoError(t, m.Set("disk-key", "value", time.Minute, true))
	m.flush()
	m.Stop()

	m2 := NewManager(dir)
	defer m2.Stop()

	var out string
	found, err := m2.Get("disk-key", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "value", out)

	require.FileExists(t, filepath.Join(dir, "metadata", "disk-key.json"))
}

func TestHardExpiryBeyondTwiceTTL(t *testing.T) {
	m := NewManager("")
	defer m.Stop()

	// Backdate a 1h-TTL entry by 3h: it went stale 2h ago and passed
	// StoredAt + 2*TTL 1h ago, so it must read back as a Miss, not Stale.
	require.NoError(t, m.Set("k1", "old", time.Hour, false))
	v, ok := m.lru.Peek("k1")
	require.True(t, ok)
	e := v.(*entry)
	e.StoredAt = e.StoredAt.Add(-3 * time.Hour)
	e.Expiry = e.Expiry.Add(-3 * time.Hour)

	var out string
	status, err := m.GetWithStatus("k1", &out)
	require.NoError(t, err)
	require.Equal(t, Miss, status)
}

func TestLRUEvictsOldestBeyondCapacity(t *testing.T) {
	m := NewManager("")
	defer m.Stop()

	for i := 0; i < defaultMaxEntries+10; i++ {
		require.NoError(t, m.Set(fmt.Sprintf("k%d", i), "v", time.Minute, false))
	}

	var out string
	found, err := m.Get("k0", &out)
	require.NoError(t, err)
	require.False(t, found, "oldest entry should have been evicted once the LRU exceeded its capacity")

	found, err = m.Get(fmt.Sprintf("k%d", defaultMaxEntries+9), &out)
	require.NoError(t, err)
	require.True(t, found, "most recently set entry should still be present")
}

func TestInvalidate(t *testing.T) {
	m := NewManager("")
	defer m.Stop()

	require.NoError(t, m.Set("k1", "v", time.Minute, false))
	m.Invalidate("k1")

	var out string
	found, _ := m.Get("k1", &out)
	require.False(t, found)
}
