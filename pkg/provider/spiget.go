package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mcserverd/mcserverd/pkg/cache"
	"github.com/mcserverd/mcserverd/pkg/types"
)

const spigetBaseURL = "https://api.spiget.org/v2"

// SpigetClient implements ModProvider against the Spiget API, a third-party
// mirror of SpigotMC resources. Spiget has no native loader/game-version
// filter, so those options are applied client-side after the search call.
type SpigetClient struct {
	http  *http.Client
	cache *cache.Manager
}

func NewSpigetClient(httpClient *http.Client, cacheMgr *cache.Manager) *SpigetClient {
	return &SpigetClient{http: httpClient, cache: cacheMgr}
}

func (c *SpigetClient) Name() types.ProviderName { return types.ProviderSpiget }

type spigetResource struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Tag    string `json:"tag"`
	Downloads int64 `json:"downloads"`
	Icon   struct {
		URL string `json:"url"`
	} `json:"icon"`
	Author struct {
		Name string `json:"name"`
	} `json:"author"`
	File struct {
		Type string `json:"type"`
	} `json:"file"`
}

func spigetSortParam(sort types.SearchSort) string {
	switch sort {
	case types.SortDownloads:
		return "-downloads"
	case types.SortUpdated:
		return "-updateDate"
	case types.SortNewest:
		return "-releaseDate"
	default:
		return "-rating"
	}
}

func (c *SpigetClient) Search(ctx context.Context, opts types.SearchOptions) ([]types.Project, error) {
	return cachedSearch(ctx, c.cache, types.ProviderSpiget, opts, func(ctx context.Context) ([]types.Project, error) {
		q := url.Values{}
		q.Set("size", strconv.Itoa(nonZero(opts.Limit, 20)))
		q.Set("page", strconv.Itoa(opts.Offset/nonZero(opts.Limit, 20)+1))
		q.Set("sort", spigetSortParam(opts.Sort))
		q.Set("fields", "name,tag,downloads,icon,author,file")

		requestURL := spigetBaseURL + "/search/resources/" + url.PathEscape(opts.Query) + "?" + q.Encode()
		resources, err := getJSON[[]spigetResource](ctx, c.http, types.ProviderSpiget, requestURL, nil)
		if err != nil {
			return nil, err
		}

		projects := make([]types.Project, 0, len(resources))
		for _, r := range resources {
			projects = append(projects, types.Project{
				ID: strconv.Itoa(r.ID), Title: r.Name, Description: r.Tag,
				Downloads: r.Downloads, IconURL: r.Icon.URL, Author: r.Author.Name,
				Provider: types.ProviderSpiget,
			})
		}
		return projects, nil
	})
}

func nonZero(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func (c *SpigetClient) GetProject(ctx context.Context, id string) (*types.Project, error) {
	r, err := getJSON[spigetResource](ctx, c.http, types.ProviderSpiget, spigetBaseURL+"/resources/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return &types.Project{
		ID: strconv.Itoa(r.ID), Title: r.Name, Description: r.Tag,
		Downloads: r.Downloads, IconURL: r.Icon.URL, Author: r.Author.Name,
		Provider: types.ProviderSpiget,
	}, nil
}

// GetVersions returns the single latest Spiget resource version; the API
// exposes no "versions" concept beyond external (GitHub) and direct
// downloads, so this is a synthetic one-entry list pointing at the
// resource's download endpoint, resolved for GitHub-hosted resources via
// resolveGitHubAsset.
func (c *SpigetClient) GetVersions(ctx context.Context, projectID, gameVersion, loader string) ([]types.ProjectVersion, error) {
	resource, err := getJSON[spigetResource](ctx, c.http, types.ProviderSpiget, spigetBaseURL+"/resources/"+url.PathEscape(projectID), nil)
	if err != nil {
		return nil, err
	}

	downloadURL := spigetBaseURL + "/resources/" + url.PathEscape(projectID) + "/download"
	if strings.EqualFold(resource.File.Type, "external") {
		resolved, err := c.resolveGitHubAsset(ctx, resource, gameVersion, loader)
		if err == nil && resolved != "" {
			downloadURL = resolved
		}
	}

	return []types.ProjectVersion{{
		ID: projectID, ProjectID: projectID, VersionNumber: "latest",
		Files: []types.ProjectFile{{URL: downloadURL, Filename: resource.Name + ".jar", Primary: true}},
	}}, nil
}

func (c *SpigetClient) GetDependencies(ctx context.Context, projectID, gameVersion, loader string) ([]types.ResolvedDependency, error) {
	return nil, nil
}

type githubReleaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type githubReleaseResponse struct {
	TagName string               `json:"tag_name"`
	Assets  []githubReleaseAsset `json:"assets"`
}

// otherLoaderNames excludes assets built for a different loader when
// scoring GitHub release assets for a specific target loader.
var otherLoaderNames = []string{"fabric", "forge", "neoforge", "quilt", "paper", "spigot", "bukkit", "velocity", "bungeecord"}

// resolveGitHubAsset handles the Spiget-specific fallback: when a
// resource's file is hosted externally on GitHub, query the repo's
// releases and score each .jar asset to find the best match for the
// requested loader/game version.
func (c *SpigetClient) resolveGitHubAsset(ctx context.Context, resource spigetResource, gameVersion, loader string) (string, error) {
	repo, err := c.followDownloadRedirect(ctx, resource.ID)
	if err != nil {
		return "", err
	}

	rel, err := c.fetchGitHubRelease(ctx, repo, resource.Tag)
	if err != nil {
		return "", err
	}

	var best githubReleaseAsset
	bestScore := -1
	for _, asset := range rel.Assets {
		if !strings.HasSuffix(asset.Name, ".jar") {
			continue
		}
		lower := strings.ToLower(asset.Name)

		excluded := false
		for _, other := range otherLoaderNames {
			if other == loader {
				continue
			}
			if strings.Contains(lower, other) {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}

		score := 0
		if strings.Contains(lower, strings.ToLower(resource.Name)) || strings.Contains(lower, repo) {
			score += 10
		}
		if loader != "" && strings.Contains(lower, strings.ToLower(loader)) {
			score += 5
		}
		if gameVersion != "" && strings.Contains(lower, gameVersion) {
			score += 3
		}

		if score > bestScore {
			bestScore = score
			best = asset
		}
	}

	if best.BrowserDownloadURL == "" {
		return "", fmt.Errorf("no suitable github asset found in release %s", rel.TagName)
	}
	return best.BrowserDownloadURL, nil
}

// fetchGitHubRelease tries the tag-scoped release first when tag is known,
// falling back to the repo's latest release if there is no such tag (or no
// tag was given at all).
func (c *SpigetClient) fetchGitHubRelease(ctx context.Context, repo, tag string) (githubReleaseResponse, error) {
	if tag != "" {
		tagURL := fmt.Sprintf("https://api.github.com/repos/%s/releases/tags/%s", repo, url.PathEscape(tag))
		if rel, err := getJSON[githubReleaseResponse](ctx, c.http, types.ProviderSpiget, tagURL, nil); err == nil {
			return rel, nil
		}
	}

	latestURL := fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", repo)
	return getJSON[githubReleaseResponse](ctx, c.http, types.ProviderSpiget, latestURL, nil)
}

var githubRepoPattern = regexp.MustCompile(`github\.com/([^/]+/[^/]+)`)

// followDownloadRedirect issues a redirect-following-disabled request
// against Spiget's download endpoint and extracts the "owner/repo" slug
// from the Location header, since Spiget itself does not expose the
// backing GitHub repository as structured data.
func (c *SpigetClient) followDownloadRedirect(ctx context.Context, resourceID int) (string, error) {
	noRedirectClient := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	requestURL := fmt.Sprintf("%s/resources/%d/download", spigetBaseURL, resourceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := noRedirectClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	m := githubRepoPattern.FindStringSubmatch(location)
	if m == nil {
		return "", fmt.Errorf("resource %d does not redirect to github", resourceID)
	}
	return strings.TrimSuffix(m[1], "/"), nil
}
