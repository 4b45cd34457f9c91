package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mcserverd/mcserverd/pkg/cache"
	"github.com/mcserverd/mcserverd/pkg/types"
)

const hangarBaseURL = "https://hangar.papermc.io/api/v1"

// hangarPlatform maps a loader string to one of Hangar's three supported
// platforms.
func hangarPlatform(loader string) string {
	switch loader {
	case "velocity":
		return "VELOCITY"
	case "bungeecord", "waterfall":
		return "WATERFALL"
	default:
		return "PAPER"
	}
}

// HangarClient implements ModProvider against the Hangar API, PaperMC's
// plugin catalogue for Paper/Waterfall/Velocity.
type HangarClient struct {
	http  *http.Client
	cache *cache.Manager
}

func NewHangarClient(httpClient *http.Client, cacheMgr *cache.Manager) *HangarClient {
	return &HangarClient{http: httpClient, cache: cacheMgr}
}

func (c *HangarClient) Name() types.ProviderName { return types.ProviderHangar }

type hangarSearchResponse struct {
	Result []hangarProject `json:"result"`
}

type hangarProject struct {
	Namespace struct {
		Slug  string `json:"slug"`
		Owner string `json:"owner"`
	} `json:"namespace"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Stats       struct {
		Downloads int64 `json:"downloads"`
	} `json:"stats"`
	Avatar string `json:"avatarUrl"`
}

func hangarSortParam(sort types.SearchSort) string {
	switch sort {
	case types.SortDownloads:
		return "-downloads"
	case types.SortNewest:
		return "-newest"
	case types.SortUpdated:
		return "-updated"
	default:
		return "-stars"
	}
}

func (c *HangarClient) projectID(p hangarProject) string {
	return p.Namespace.Owner + "/" + p.Namespace.Slug
}

func (c *HangarClient) Search(ctx context.Context, opts types.SearchOptions) ([]types.Project, error) {
	return cachedSearch(ctx, c.cache, types.ProviderHangar, opts, func(ctx context.Context) ([]types.Project, error) {
		q := url.Values{}
		q.Set("q", opts.Query)
		q.Set("sort", hangarSortParam(opts.Sort))
		q.Set("platform", hangarPlatform(opts.Loader))
		if opts.Limit > 0 {
			q.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			q.Set("offset", strconv.Itoa(opts.Offset))
		}

		resp, err := getJSON[hangarSearchResponse](ctx, c.http, types.ProviderHangar, hangarBaseURL+"/projects?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}

		projects := make([]types.Project, 0, len(resp.Result))
		for _, p := range resp.Result {
			projects = append(projects, types.Project{
				ID: c.projectID(p), Slug: p.Namespace.Slug, Title: p.Name, Description: p.Description,
				Downloads: p.Stats.Downloads, IconURL: p.Avatar, Author: p.Namespace.Owner,
				Provider: types.ProviderHangar,
			})
		}
		return projects, nil
	})
}

func (c *HangarClient) GetProject(ctx context.Context, id string) (*types.Project, error) {
	p, err := getJSON[hangarProject](ctx, c.http, types.ProviderHangar, hangarBaseURL+"/projects/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return &types.Project{
		ID: c.projectID(p), Slug: p.Namespace.Slug, Title: p.Name, Description: p.Description,
		Downloads: p.Stats.Downloads, IconURL: p.Avatar, Author: p.Namespace.Owner,
		Provider: types.ProviderHangar,
	}, nil
}

type hangarVersionsResponse struct {
	Result []hangarVersion `json:"result"`
}

type hangarVersion struct {
	Name        string                         `json:"name"`
	Downloads   map[string]hangarVersionAsset  `json:"downloads"`
	PluginDeps  map[string][]hangarDependency  `json:"pluginDependencies"`
}

type hangarVersionAsset struct {
	FileInfo struct {
		Name       string `json:"name"`
		SizeBytes  int64  `json:"sizeBytes"`
	} `json:"fileInfo"`
	DownloadURL string `json:"downloadUrl"`
}

type hangarDependency struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

func (c *HangarClient) GetVersions(ctx context.Context, projectID, gameVersion, loader string) ([]types.ProjectVersion, error) {
	q := url.Values{}
	q.Set("platform", hangarPlatform(loader))
	requestURL := hangarBaseURL + "/projects/" + url.PathEscape(projectID) + "/versions?" + q.Encode()

	resp, err := getJSON[hangarVersionsResponse](ctx, c.http, types.ProviderHangar, requestURL, nil)
	if err != nil {
		return nil, err
	}

	platform := hangarPlatform(loader)
	out := make([]types.ProjectVersion, 0, len(resp.Result))
	for _, v := range resp.Result {
		asset, ok := v.Downloads[platform]
		if !ok {
			continue
		}
		var deps []types.ResolvedDependency
		for _, d := range v.PluginDeps[platform] {
			kind := types.DependencyOptional
			if d.Required {
				kind = types.DependencyRequired
			}
			deps = append(deps, types.ResolvedDependency{Project: types.Project{Title: d.Name}, Kind: kind})
		}
		out = append(out, types.ProjectVersion{
			ID: v.Name, ProjectID: projectID, VersionNumber: v.Name,
			Files:        []types.ProjectFile{{URL: asset.DownloadURL, Filename: asset.FileInfo.Name, Primary: true, Size: asset.FileInfo.SizeBytes}},
			Dependencies: deps,
		})
	}
	return out, nil
}

func (c *HangarClient) GetDependencies(ctx context.Context, projectID, gameVersion, loader string) ([]types.ResolvedDependency, error) {
	versions, err := c.GetVersions(ctx, projectID, gameVersion, loader)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return versions[0].Dependencies, nil
}
