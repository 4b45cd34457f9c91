// Package provider implements the catalogue clients (Modrinth, CurseForge,
// Spiget, Hangar) behind a single ModProvider surface: Search, GetProject,
// GetVersions, and GetDependencies. Every client shares one
// *retryablehttp.Client tuned to the same retry policy as pkg/download, so
// a flaky upstream looks the same in logs regardless of which subsystem hit
// it.
package provider

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mcserverd/mcserverd/pkg/cache"
	"github.com/mcserverd/mcserverd/pkg/errs"
	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/hashicorp/go-retryablehttp"
)

// searchTTL governs how long a Search result set is trusted before being
// treated as stale; search results are never persisted to disk.
const searchTTL = 10 * time.Minute

// ModProvider is the common surface every catalogue client implements.
type ModProvider interface {
	Name() types.ProviderName
	Search(ctx context.Context, opts types.SearchOptions) ([]types.Project, error)
	GetProject(ctx context.Context, id string) (*types.Project, error)
	GetVersions(ctx context.Context, projectID, gameVersion, loader string) ([]types.ProjectVersion, error)
	GetDependencies(ctx context.Context, projectID, gameVersion, loader string) ([]types.ResolvedDependency, error)
}

// NewHTTPClient builds the shared retryablehttp client used by every
// provider implementation, mirroring the downloader's 5-attempt,
// 2s-exponential retry policy.
func NewHTTPClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 4 // retries after the first attempt: 5 attempts in all
	rc.RetryWaitMin = 2 * time.Second
	rc.RetryWaitMax = 32 * time.Second
	rc.Logger = nil
	return rc.StandardClient()
}

// searchCacheKey derives a stable cache key for a SearchOptions value by
// hashing its canonical JSON encoding.
func searchCacheKey(provider types.ProviderName, opts types.SearchOptions) string {
	data, _ := json.Marshal(opts)
	sum := sha1.Sum(data)
	return fmt.Sprintf("provider:%s:search:%s", provider, hex.EncodeToString(sum[:]))
}

// getJSON performs an HTTP GET against url with the given headers and
// decodes the JSON response body into T.
func getJSON[T any](ctx context.Context, client *http.Client, provider types.ProviderName, url string, headers map[string]string) (T, error) {
	var zero T
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return zero, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return zero, fmt.Errorf("%s: %w", provider, errs.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, &errs.ProviderError{Provider: string(provider), Status: resp.StatusCode}
	}

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, fmt.Errorf("decoding %s response: %w", provider, err)
	}
	return out, nil
}

// cachedSearch wraps a provider-specific fetch in the shared Search cache
// contract.
func cachedSearch(ctx context.Context, cacheMgr *cache.Manager, provider types.ProviderName, opts types.SearchOptions, fetch func(ctx context.Context) ([]types.Project, error)) ([]types.Project, error) {
	key := searchCacheKey(provider, opts)
	var results []types.Project
	err := cacheMgr.FetchWithOptions(ctx, key, searchTTL, false, &results, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	return results, err
}
