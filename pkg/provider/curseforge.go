package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mcserverd/mcserverd/pkg/cache"
	"github.com/mcserverd/mcserverd/pkg/errs"
	"github.com/mcserverd/mcserverd/pkg/types"
)

const curseForgeBaseURL = "https://api.curseforge.com/v1"
const curseForgeGameID = 432

// curseForgeClassID maps a loader string to CurseForge's mods (6) vs
// plugins (5) class split; everything not a recognized Bukkit-family
// loader is treated as a mod.
func curseForgeClassID(loader string) int {
	switch loader {
	case "paper", "purpur", "spigot", "bukkit":
		return 5
	default:
		return 6
	}
}

var curseForgeLoaderTypes = map[string]int{
	"forge":    1,
	"fabric":   4,
	"quilt":    5,
	"neoforge": 6,
}

// CurseForgeClient implements ModProvider against the CurseForge v1 API,
// which requires an API key on every request.
type CurseForgeClient struct {
	http   *http.Client
	cache  *cache.Manager
	apiKey string
}

func NewCurseForgeClient(httpClient *http.Client, cacheMgr *cache.Manager, apiKey string) *CurseForgeClient {
	return &CurseForgeClient{http: httpClient, cache: cacheMgr, apiKey: apiKey}
}

func (c *CurseForgeClient) Name() types.ProviderName { return types.ProviderCurseForge }

func (c *CurseForgeClient) headers() map[string]string {
	return map[string]string{"x-api-key": c.apiKey, "Accept": "application/json"}
}

type curseForgeSearchResponse struct {
	Data []curseForgeMod `json:"data"`
}

type curseForgeMod struct {
	ID          int      `json:"id"`
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	Summary     string   `json:"summary"`
	DownloadCnt int64    `json:"downloadCount"`
	Logo        struct {
		ThumbnailURL string `json:"thumbnailUrl"`
	} `json:"logo"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Categories []struct {
		Name string `json:"name"`
	} `json:"categories"`
}

func curseForgeSortField(sort types.SearchSort) int {
	switch sort {
	case types.SortDownloads:
		return 6
	case types.SortNewest:
		return 11
	case types.SortUpdated:
		return 3
	default:
		return 1
	}
}

func (c *CurseForgeClient) Search(ctx context.Context, opts types.SearchOptions) ([]types.Project, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("curseforge: %w", errs.ErrProviderUnconfigured)
	}

	return cachedSearch(ctx, c.cache, types.ProviderCurseForge, opts, func(ctx context.Context) ([]types.Project, error) {
		q := url.Values{}
		q.Set("gameId", strconv.Itoa(curseForgeGameID))
		q.Set("classId", strconv.Itoa(curseForgeClassID(opts.Loader)))
		q.Set("searchFilter", opts.Query)
		q.Set("sortField", strconv.Itoa(curseForgeSortField(opts.Sort)))
		if opts.GameVersion != "" {
			q.Set("gameVersion", opts.GameVersion)
		}
		if lt, ok := curseForgeLoaderTypes[opts.Loader]; ok {
			q.Set("modLoaderType", strconv.Itoa(lt))
		}
		if opts.Limit > 0 {
			q.Set("pageSize", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			q.Set("index", strconv.Itoa(opts.Offset))
		}

		resp, err := getJSON[curseForgeSearchResponse](ctx, c.http, types.ProviderCurseForge, curseForgeBaseURL+"/mods/search?"+q.Encode(), c.headers())
		if err != nil {
			return nil, err
		}
		return toCurseForgeProjects(resp.Data), nil
	})
}

func toCurseForgeProjects(mods []curseForgeMod) []types.Project {
	projects := make([]types.Project, 0, len(mods))
	for _, m := range mods {
		var author string
		if len(m.Authors) > 0 {
			author = m.Authors[0].Name
		}
		categories := make([]string, 0, len(m.Categories))
		for _, cat := range m.Categories {
			categories = append(categories, cat.Name)
		}
		projects = append(projects, types.Project{
			ID: strconv.Itoa(m.ID), Slug: m.Slug, Title: m.Name, Description: m.Summary,
			Downloads: m.DownloadCnt, IconURL: m.Logo.ThumbnailURL, Author: author,
			Provider: types.ProviderCurseForge, Categories: categories,
		})
	}
	return projects
}

type curseForgeModResponse struct {
	Data curseForgeMod `json:"data"`
}

func (c *CurseForgeClient) GetProject(ctx context.Context, id string) (*types.Project, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("curseforge: %w", errs.ErrProviderUnconfigured)
	}
	resp, err := getJSON[curseForgeModResponse](ctx, c.http, types.ProviderCurseForge, curseForgeBaseURL+"/mods/"+url.PathEscape(id), c.headers())
	if err != nil {
		return nil, err
	}
	projects := toCurseForgeProjects([]curseForgeMod{resp.Data})
	return &projects[0], nil
}

type curseForgeFilesResponse struct {
	Data []curseForgeFile `json:"data"`
}

type curseForgeFile struct {
	ID           int      `json:"id"`
	ModID        int      `json:"modId"`
	DisplayName  string   `json:"displayName"`
	FileName     string   `json:"fileName"`
	FileLength   int64    `json:"fileLength"`
	DownloadURL  string   `json:"downloadUrl"`
	GameVersions []string `json:"gameVersions"`
	Dependencies []struct {
		ModID        int `json:"modId"`
		RelationType int `json:"relationType"`
	} `json:"dependencies"`
}

func (c *CurseForgeClient) GetVersions(ctx context.Context, projectID, gameVersion, loader string) ([]types.ProjectVersion, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("curseforge: %w", errs.ErrProviderUnconfigured)
	}

	q := url.Values{}
	if gameVersion != "" {
		q.Set("gameVersion", gameVersion)
	}
	if lt, ok := curseForgeLoaderTypes[loader]; ok {
		q.Set("modLoaderType", strconv.Itoa(lt))
	}
	requestURL := curseForgeBaseURL + "/mods/" + url.PathEscape(projectID) + "/files"
	if len(q) > 0 {
		requestURL += "?" + q.Encode()
	}

	resp, err := getJSON[curseForgeFilesResponse](ctx, c.http, types.ProviderCurseForge, requestURL, c.headers())
	if err != nil {
		return nil, err
	}

	out := make([]types.ProjectVersion, 0, len(resp.Data))
	for _, f := range resp.Data {
		out = append(out, types.ProjectVersion{
			ID: strconv.Itoa(f.ID), ProjectID: projectID, VersionNumber: f.DisplayName,
			Files: []types.ProjectFile{{URL: f.DownloadURL, Filename: f.FileName, Primary: true, Size: f.FileLength}},
			GameVersions: f.GameVersions,
		})
	}
	return out, nil
}

// curseForgeRequiredRelation is relationType==3 ("RequiredDependency") in
// CurseForge's file-relation enum.
const curseForgeRequiredRelation = 3

func (c *CurseForgeClient) GetDependencies(ctx context.Context, projectID, gameVersion, loader string) ([]types.ResolvedDependency, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("curseforge: %w", errs.ErrProviderUnconfigured)
	}

	q := url.Values{}
	if gameVersion != "" {
		q.Set("gameVersion", gameVersion)
	}
	requestURL := curseForgeBaseURL + "/mods/" + url.PathEscape(projectID) + "/files"
	if len(q) > 0 {
		requestURL += "?" + q.Encode()
	}

	resp, err := getJSON[curseForgeFilesResponse](ctx, c.http, types.ProviderCurseForge, requestURL, c.headers())
	if err != nil || len(resp.Data) == 0 {
		return nil, err
	}

	var out []types.ResolvedDependency
	for _, dep := range resp.Data[0].Dependencies {
		proj, err := c.GetProject(ctx, strconv.Itoa(dep.ModID))
		if err != nil {
			continue
		}
		kind := types.DependencyOptional
		if dep.RelationType == curseForgeRequiredRelation {
			kind = types.DependencyRequired
		}
		out = append(out, types.ResolvedDependency{Project: *proj, Kind: kind})
	}
	return out, nil
}
