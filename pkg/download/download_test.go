package download

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestFetchSimple(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")

	d := New(nil)
	err := d.Fetch(context.Background(), Request{URL: srv.URL, TargetPath: target})
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestFetchVerifiesHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")

	// A permanent mismatch is retried up to maxAttempts; bound the test with
	// a short-lived context instead of waiting out the full backoff series.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	d := New(nil)
	err := d.Fetch(ctx, Request{
		URL:          srv.URL,
		TargetPath:   target,
		ExpectedHash: "wrong",
		ExpectedAlgo: types.ArtifactSHA1,
	})
	require.Error(t, err)
}

func TestFetchRetriesWholeAttemptOnHashMismatch(t *testing.T) {
	var requests int32
	good := "hello world v2"
	goodSum := sha1.Sum([]byte(good))
	goodHex := hex.EncodeToString(goodSum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.Write([]byte("corrupted in flight"))
			return
		}
		w.Write([]byte(good))
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")

	d := New(nil)
	err := d.Fetch(context.Background(), Request{
		URL:          srv.URL,
		TargetPath:   target,
		ExpectedHash: goodHex,
		ExpectedAlgo: types.ArtifactSHA1,
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, requests, "a hash mismatch must restart the whole attempt sequence, not just fail once")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, good, string(data))
}

func TestFetchResumesPartial(t *testing.T) {
	full := "0123456789"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rng := r.Header.Get("Range"); rng != "" {
			w.Header().Set("Content-Range", "bytes 5-9/10")
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte(full[5:]))
			return
		}
		w.Write([]byte(full))
	}))
	defer srv.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(target, []byte(full[:5]), 0o644))

	d := New(nil)
	err := d.Fetch(context.Background(), Request{URL: srv.URL, TargetPath: target})
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, full, string(data))
}
