package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mcserverd/mcserverd/pkg/cache"
	"github.com/mcserverd/mcserverd/pkg/types"
)

const modrinthBaseURL = "https://api.modrinth.com/v2"

// ModrinthClient implements ModProvider against the Modrinth v2 API.
type ModrinthClient struct {
	http    *http.Client
	cache   *cache.Manager
	baseURL string
}

func NewModrinthClient(httpClient *http.Client, cacheMgr *cache.Manager) *ModrinthClient {
	return &ModrinthClient{http: httpClient, cache: cacheMgr, baseURL: modrinthBaseURL}
}

func (c *ModrinthClient) Name() types.ProviderName { return types.ProviderModrinth }

type modrinthSearchResponse struct {
	Hits []modrinthProject `json:"hits"`
}

type modrinthProject struct {
	ProjectID   string   `json:"project_id"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Downloads   int64    `json:"downloads"`
	IconURL     string   `json:"icon_url"`
	Author      string   `json:"author"`
	Categories  []string `json:"categories"`
}

func modrinthSort(sort types.SearchSort) string {
	switch sort {
	case types.SortDownloads:
		return "downloads"
	case types.SortFollows:
		return "follows"
	case types.SortNewest:
		return "newest"
	case types.SortUpdated:
		return "updated"
	default:
		return "relevance"
	}
}

func (c *ModrinthClient) Search(ctx context.Context, opts types.SearchOptions) ([]types.Project, error) {
	return cachedSearch(ctx, c.cache, types.ProviderModrinth, opts, func(ctx context.Context) ([]types.Project, error) {
		q := url.Values{}
		q.Set("query", opts.Query)
		q.Set("index", modrinthSort(opts.Sort))
		if opts.Limit > 0 {
			q.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			q.Set("offset", strconv.Itoa(opts.Offset))
		}

		var facets [][]string
		if opts.GameVersion != "" {
			facets = append(facets, []string{"versions:" + opts.GameVersion})
		}
		if opts.Loader != "" {
			facets = append(facets, []string{"categories:" + opts.Loader})
		}
		for _, f := range opts.Facets {
			facets = append(facets, []string{f})
		}
		if len(facets) > 0 {
			q.Set("facets", facetsJSON(facets))
		}

		resp, err := getJSON[modrinthSearchResponse](ctx, c.http, types.ProviderModrinth, c.baseURL+"/search?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}

		projects := make([]types.Project, 0, len(resp.Hits))
		for _, h := range resp.Hits {
			projects = append(projects, types.Project{
				ID: h.ProjectID, Slug: h.Slug, Title: h.Title, Description: h.Description,
				Downloads: h.Downloads, IconURL: h.IconURL, Author: h.Author,
				Provider: types.ProviderModrinth, Categories: h.Categories,
			})
		}
		return projects, nil
	})
}

func facetsJSON(facets [][]string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, group := range facets {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		for j, f := range group {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(f))
		}
		b.WriteByte(']')
	}
	b.WriteByte(']')
	return b.String()
}

type modrinthFullProject struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Downloads   int64    `json:"downloads"`
	IconURL     string   `json:"icon_url"`
	Team        string   `json:"team"`
	Categories  []string `json:"categories"`
}

func (c *ModrinthClient) GetProject(ctx context.Context, id string) (*types.Project, error) {
	p, err := getJSON[modrinthFullProject](ctx, c.http, types.ProviderModrinth, c.baseURL+"/project/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return &types.Project{
		ID: p.ID, Slug: p.Slug, Title: p.Title, Description: p.Description,
		Downloads: p.Downloads, IconURL: p.IconURL, Provider: types.ProviderModrinth,
		Categories: p.Categories,
	}, nil
}

type modrinthVersion struct {
	ID            string                 `json:"id"`
	ProjectID     string                 `json:"project_id"`
	VersionNumber string                 `json:"version_number"`
	Loaders       []string               `json:"loaders"`
	GameVersions  []string               `json:"game_versions"`
	Files         []modrinthVersionFile  `json:"files"`
	Dependencies  []modrinthDependency   `json:"dependencies"`
}

type modrinthVersionFile struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Primary  bool   `json:"primary"`
	Size     int64  `json:"size"`
}

type modrinthDependency struct {
	ProjectID      string `json:"project_id"`
	DependencyType string `json:"dependency_type"`
}

func (c *ModrinthClient) GetVersions(ctx context.Context, projectID, gameVersion, loader string) ([]types.ProjectVersion, error) {
	q := url.Values{}
	if gameVersion != "" {
		q.Set("game_versions", `["`+gameVersion+`"]`)
	}
	if loader != "" {
		q.Set("loaders", `["`+loader+`"]`)
	}
	requestURL := c.baseURL + "/project/" + url.PathEscape(projectID) + "/version"
	if len(q) > 0 {
		requestURL += "?" + q.Encode()
	}

	versions, err := getJSON[[]modrinthVersion](ctx, c.http, types.ProviderModrinth, requestURL, nil)
	if err != nil {
		return nil, err
	}

	out := make([]types.ProjectVersion, 0, len(versions))
	for _, v := range versions {
		files := make([]types.ProjectFile, 0, len(v.Files))
		for _, f := range v.Files {
			files = append(files, types.ProjectFile{URL: f.URL, Filename: f.Filename, Primary: f.Primary, Size: f.Size})
		}
		out = append(out, types.ProjectVersion{
			ID: v.ID, ProjectID: v.ProjectID, VersionNumber: v.VersionNumber,
			Files: files, Loaders: v.Loaders, GameVersions: v.GameVersions,
		})
	}
	return out, nil
}

func (c *ModrinthClient) GetDependencies(ctx context.Context, projectID, gameVersion, loader string) ([]types.ResolvedDependency, error) {
	versions, err := c.GetVersions(ctx, projectID, gameVersion, loader)
	if err != nil {
		return nil, err
	}

	var deps []modrinthDependency
	if len(versions) > 0 {
		raw, err := getJSON[modrinthVersion](ctx, c.http, types.ProviderModrinth, c.baseURL+"/version/"+url.PathEscape(versions[0].ID), nil)
		if err == nil {
			deps = raw.Dependencies
		}
	}
	if len(deps) == 0 {
		return nil, nil
	}

	out := make([]types.ResolvedDependency, 0, len(deps))
	for _, d := range deps {
		if d.ProjectID == "" {
			continue
		}
		proj, err := c.GetProject(ctx, d.ProjectID)
		if err != nil {
			continue
		}
		kind := types.DependencyOptional
		if d.DependencyType == "required" {
			kind = types.DependencyRequired
		}
		out = append(out, types.ResolvedDependency{Project: *proj, Kind: kind})
	}
	return out, nil
}
