package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcserverd/mcserverd/pkg/cache"
	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestModrinthSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "sodium", r.URL.Query().Get("query"))
		w.Write([]byte(`{"hits":[{"project_id":"abc","slug":"sodium","title":"Sodium","downloads":1000000}]}`))
	}))
	defer srv.Close()

	client := &ModrinthClient{http: srv.Client(), cache: cache.NewManager(""), baseURL: srv.URL}
	results, err := client.Search(context.Background(), types.SearchOptions{Query: "sodium"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "sodium", results[0].Slug)
	require.Equal(t, types.ProviderModrinth, results[0].Provider)
}

func TestModrinthGetVersions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"v1","project_id":"abc","version_number":"1.0.0","files":[{"url":"http://x/a.jar","filename":"a.jar","primary":true,"size":10}]}]`))
	}))
	defer srv.Close()

	client := &ModrinthClient{http: srv.Client(), cache: cache.NewManager(""), baseURL: srv.URL}
	versions, err := client.GetVersions(context.Background(), "abc", "1.20.4", "fabric")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "v1", versions[0].ID)
	require.True(t, versions[0].Files[0].Primary)
}

func TestModrinthSortMapping(t *testing.T) {
	require.Equal(t, "downloads", modrinthSort(types.SortDownloads))
	require.Equal(t, "relevance", modrinthSort(types.SearchSort("")))
}

func TestFacetsJSON(t *testing.T) {
	out := facetsJSON([][]string{{"versions:1.20.4"}, {"categories:fabric"}})
	require.Equal(t, `[["versions:1.20.4"],["categories:fabric"]]`, out)
}
