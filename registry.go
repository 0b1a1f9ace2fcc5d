package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/AsaiYusuke/jsonpath"

	"github.com/010DevX101/setup-seal/internal/metaerr"
)

var (
	// ErrRegistryQuery is returned when the registry does not answer a
	// release lookup successfully.
	ErrRegistryQuery = errors.New("failed to retrieve latest release")
	// ErrUnsupportedReleaseAsset is returned when a release has no asset for
	// the host platform and architecture.
	ErrUnsupportedReleaseAsset = errors.New("unsupported release")
)

// Release is a published release and its downloadable assets.
type Release struct {
	TagName string
	Assets  []Asset
}

// Asset is a single file attached to a release.
type Asset struct {
	Name               string
	BrowserDownloadURL string
}

// Registry looks up releases of a repository.
type Registry interface {
	LatestRelease(ctx context.Context, owner string, repo string) (Release, error)
}

// GitHubRegistry queries a GitHub-style REST API. The fields of the release
// document are selected with the JSONPath expressions of Spec.
type GitHubRegistry struct {
	Client *http.Client
	Spec   RegistrySpec
}

// LatestRelease returns the most recent release of owner/repo.
func (g *GitHubRegistry) LatestRelease(ctx context.Context, owner string, repo string) (Release, error) {
	url, err := renderTemplate(g.Spec.LatestURL, tplData{Owner: owner, Repo: repo})
	if err != nil {
		return Release{}, metaerr.WithMetadata(fmt.Errorf("render latest release url: %w", err), "template", g.Spec.LatestURL)
	}

	src, err := g.get(ctx, url)
	if err != nil {
		return Release{}, metaerr.WithMetadata(err, "url", url)
	}

	release, err := parseRelease(src, g.Spec)
	if err != nil {
		return Release{}, metaerr.WithMetadata(err, "url", url)
	}

	slog.Debug("retrieved latest release", "tag", release.TagName, "assets", len(release.Assets))
	return release, nil
}

func (g *GitHubRegistry) get(ctx context.Context, url string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryQuery, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, metaerr.WithMetadata(
			fmt.Errorf("%w: %d - %s", ErrRegistryQuery, resp.StatusCode, http.StatusText(resp.StatusCode)),
			"body", string(body),
		)
	}

	var src any
	if err := json.Unmarshal(body, &src); err != nil {
		return nil, fmt.Errorf("unmarshal response body: %w", err)
	}
	return src, nil
}

func parseRelease(src any, spec RegistrySpec) (Release, error) {
	tags, err := retrieveStrings(src, spec.TagJSONPath)
	if err != nil {
		return Release{}, err
	}
	if len(tags) == 0 || tags[0] == "" {
		return Release{}, fmt.Errorf("release has no tag: %s", spec.TagJSONPath)
	}

	names, err := retrieveStrings(src, spec.AssetNameJSONPath)
	if err != nil {
		return Release{}, err
	}
	urls, err := retrieveStrings(src, spec.AssetURLJSONPath)
	if err != nil {
		return Release{}, err
	}
	if len(names) != len(urls) {
		return Release{}, fmt.Errorf("asset names and urls differ in length: %d != %d", len(names), len(urls))
	}

	release := Release{TagName: tags[0]}
	for i := range names {
		release.Assets = append(release.Assets, Asset{
			Name:               names[i],
			BrowserDownloadURL: urls[i],
		})
	}
	return release, nil
}

// retrieveStrings evaluates path against src and returns the string
// results. A path that matches nothing yields no results; an invalid path
// is an error.
func retrieveStrings(src any, path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	eval, err := jsonpath.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse json path %q: %w", path, err)
	}

	results, err := eval(src)
	if err != nil {
		slog.Debug("json path matched nothing", "path", path, "error", err)
		return nil, nil
	}

	values := make([]string, 0, len(results))
	for _, result := range results {
		s, ok := result.(string)
		if !ok {
			return nil, fmt.Errorf("json path %q: unexpected %T value", path, result)
		}
		values = append(values, s)
	}
	return values, nil
}

// findAsset returns the first asset built for platform and arch.
func findAsset(release Release, platform Platform, arch string) (Asset, error) {
	pattern := fmt.Sprintf("%s-%s", platform, arch)
	for _, asset := range release.Assets {
		if strings.Contains(asset.Name, pattern) {
			return asset, nil
		}
	}
	return Asset{}, fmt.Errorf("%w for platform %s with architecture %s", ErrUnsupportedReleaseAsset, platform, arch)
}
