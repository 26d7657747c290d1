package releases

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultGitHubAPIURL is the public GitHub REST API.
const DefaultGitHubAPIURL = "https://api.github.com"

const releasesPerPage = 100

// gitHubRelease is the subset of a GitHub releases API entry we read.
type gitHubRelease struct {
	TagName    string        `json:"tag_name"`
	Draft      bool          `json:"draft"`
	Prerelease bool          `json:"prerelease"`
	Assets     []gitHubAsset `json:"assets"`
}

type gitHubAsset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// GitHubClient reads releases from the GitHub REST API.
type GitHubClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGitHubClient creates a client for the API at baseURL (DefaultGitHubAPIURL
// when empty). A non-empty token is sent as a bearer token; without one the
// API allows 60 requests per hour.
func NewGitHubClient(ctx context.Context, baseURL, token string) *GitHubClient {
	if baseURL == "" {
		baseURL = DefaultGitHubAPIURL
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
		httpClient.Timeout = 30 * time.Second
	}

	return &GitHubClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ListReleases fetches every release of repo, following pagination.
func (c *GitHubClient) ListReleases(ctx context.Context, repo Repo) ([]Release, error) {
	var all []Release
	for page := 1; ; page++ {
		var releases []gitHubRelease
		path := fmt.Sprintf("%s?per_page=%d&page=%d", c.releasesPath(repo), releasesPerPage, page)
		if _, err := c.get(ctx, path, &releases); err != nil {
			return nil, err
		}

		for _, rel := range releases {
			all = append(all, rel.toRelease())
		}

		if len(releases) < releasesPerPage {
			return all, nil
		}
	}
}

// LatestRelease fetches the release GitHub marks as latest, which excludes
// drafts and prereleases.
func (c *GitHubClient) LatestRelease(ctx context.Context, repo Repo) (Release, error) {
	var rel gitHubRelease
	status, err := c.get(ctx, c.releasesPath(repo)+"/latest", &rel)
	if status == http.StatusNotFound {
		return Release{}, fmt.Errorf("%s: %w", repo, ErrNoReleaseFound)
	}
	if err != nil {
		return Release{}, err
	}
	return rel.toRelease(), nil
}

func (c *GitHubClient) releasesPath(repo Repo) string {
	return fmt.Sprintf("/repos/%s/%s/releases", url.PathEscape(repo.Owner), url.PathEscape(repo.Name))
}

// get issues a GET against the API and decodes a 200 response into out.
// The status code is returned whenever a response was received.
func (c *GitHubClient) get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build GitHub API request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req) // #nosec G107 -- base URL is operator configured
	if err != nil {
		return 0, fmt.Errorf("failed to call GitHub releases API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("GitHub API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode GitHub releases response: %w", err)
	}
	return resp.StatusCode, nil
}

func (r gitHubRelease) toRelease() Release {
	assets := make([]ReleaseAsset, 0, len(r.Assets))
	for _, a := range r.Assets {
		assets = append(assets, ReleaseAsset{
			Name:        a.Name,
			Size:        a.Size,
			DownloadURL: a.BrowserDownloadURL,
		})
	}
	return Release{
		TagName:    r.TagName,
		Prerelease: r.Prerelease,
		Draft:      r.Draft,
		Assets:     assets,
	}
}
