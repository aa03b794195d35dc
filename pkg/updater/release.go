package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/cuemby/infractl/pkg/errs"
)

const (
	defaultAPIBase     = "https://api.github.com"
	releaseHTTPTimeout = 15 * time.Second
)

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Release is the subset of the GitHub releases API this package reads.
type Release struct {
	TagName    string  `json:"tag_name"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// ReleaseClient fetches release metadata from a GitHub-compatible releases
// API.
type ReleaseClient struct {
	apiBase    string
	httpClient *http.Client
}

// NewReleaseClient builds a ReleaseClient against the public GitHub API.
func NewReleaseClient() *ReleaseClient {
	return &ReleaseClient{
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: releaseHTTPTimeout},
	}
}

// LatestRelease returns the newest release for repo ("owner/name"). When
// includePrerelease is false it uses the /releases/latest endpoint, which
// GitHub itself excludes pre-releases from; when true it reads the full
// release list and takes the first (newest) entry.
func (c *ReleaseClient) LatestRelease(ctx context.Context, repo string, includePrerelease bool) (*Release, error) {
	if includePrerelease {
		releases, err := c.listReleases(ctx, repo)
		if err != nil {
			return nil, err
		}
		if len(releases) == 0 {
			return nil, errs.New(errs.Update, "updater: repository "+repo+" has no releases")
		}
		return &releases[0], nil
	}

	url := fmt.Sprintf("%s/repos/%s/releases/latest", c.apiBase, repo)
	var release Release
	if err := c.getJSON(ctx, url, &release); err != nil {
		return nil, err
	}
	return &release, nil
}

func (c *ReleaseClient) listReleases(ctx context.Context, repo string) ([]Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases", c.apiBase, repo)
	var releases []Release
	if err := c.getJSON(ctx, url, &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

func (c *ReleaseClient) getJSON(ctx context.Context, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.Wrap(errs.Update, err, "updater: build release request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.Update, err, "updater: fetch release metadata")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.Update, fmt.Sprintf("updater: release API returned %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errs.Wrap(errs.Update, err, "updater: decode release metadata")
	}
	return nil
}

// IsNewer reports whether candidateTag (e.g. "v1.4.0") is a newer semver
// version than currentVersion (e.g. "1.3.2" or "v1.3.2"). Both are
// stripped of a leading "v" before comparison.
func IsNewer(currentVersion, candidateTag string) (bool, error) {
	current, err := semver.NewVersion(strings.TrimPrefix(currentVersion, "v"))
	if err != nil {
		return false, errs.Wrap(errs.Update, err, "updater: parse current version")
	}
	candidate, err := semver.NewVersion(strings.TrimPrefix(candidateTag, "v"))
	if err != nil {
		return false, errs.Wrap(errs.Update, err, "updater: parse candidate version")
	}
	return candidate.GreaterThan(current), nil
}

// FindAssetForPlatform returns the asset whose name contains the given
// platform triple components (e.g. "linux", "amd64").
func FindAssetForPlatform(assets []Asset, goos, goarch string) (Asset, bool) {
	for _, a := range assets {
		lower := strings.ToLower(a.Name)
		if strings.Contains(lower, goos) && strings.Contains(lower, goarch) {
			return a, true
		}
	}
	return Asset{}, false
}

// FindChecksumAsset returns the first asset that looks like a checksum
// sidecar file (SHA256SUMS and common variants).
func FindChecksumAsset(assets []Asset) (Asset, bool) {
	for _, a := range assets {
		upper := strings.ToUpper(a.Name)
		if strings.Contains(upper, "SHA256SUMS") || strings.Contains(upper, "CHECKSUMS") {
			return a, true
		}
	}
	return Asset{}, false
}
