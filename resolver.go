package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/010DevX101/setup-seal/internal/metaerr"
)

// LatestVersion is the version request that selects the most recent release.
const LatestVersion = "latest"

// ResolvedRelease is a concrete release artifact for the host.
type ResolvedRelease struct {
	Version     string   `yaml:"version"`
	DownloadURL string   `yaml:"downloadUrl"`
	FileName    string   `yaml:"fileName"`
	Platform    Platform `yaml:"platform"`
	Arch        string   `yaml:"arch"`
}

// Resolver turns version requests into downloadable release artifacts for
// one platform and architecture.
type Resolver struct {
	Tool     ToolSpec
	Spec     RegistrySpec
	Registry Registry
	Platform Platform
	Arch     string
}

// versionResolution is a request resolved to a concrete version whose
// download location has not been determined yet.
type versionResolution struct {
	Version string

	// release is set when the version came from the registry.
	release *Release
}

// Resolve resolves request to a release artifact.
func (r *Resolver) Resolve(ctx context.Context, request string) (ResolvedRelease, error) {
	res, err := r.ResolveVersion(ctx, request)
	if err != nil {
		return ResolvedRelease{}, err
	}
	return r.Locate(res)
}

// ResolveVersion determines the concrete version for request. Only "latest"
// queries the registry; any other request is taken as the version itself.
func (r *Resolver) ResolveVersion(ctx context.Context, request string) (versionResolution, error) {
	if request != LatestVersion {
		return versionResolution{Version: request}, nil
	}

	slog.Info("retrieving latest release", "owner", r.Tool.Owner, "repo", r.Tool.Repo)
	release, err := r.Registry.LatestRelease(ctx, r.Tool.Owner, r.Tool.Repo)
	if err != nil {
		return versionResolution{}, metaerr.WithMetadata(err, "owner", r.Tool.Owner, "repo", r.Tool.Repo)
	}
	slog.Info("retrieved latest release", "tag", release.TagName)

	return versionResolution{Version: release.TagName, release: &release}, nil
}

// Locate determines where the artifact of a resolved version is downloaded
// from: the matching registry asset for registry releases, the download URL
// template otherwise.
func (r *Resolver) Locate(res versionResolution) (ResolvedRelease, error) {
	rel := ResolvedRelease{
		Version:  res.Version,
		FileName: r.FileName(res.Version),
		Platform: r.Platform,
		Arch:     r.Arch,
	}

	if res.release != nil {
		asset, err := findAsset(*res.release, r.Platform, r.Arch)
		if err != nil {
			return ResolvedRelease{}, metaerr.WithMetadata(err, "version", res.Version)
		}
		rel.DownloadURL = asset.BrowserDownloadURL
		return rel, nil
	}

	url, err := renderTemplate(r.Spec.DownloadURL, tplData{
		Tool:     r.Tool.Name,
		Owner:    r.Tool.Owner,
		Repo:     r.Tool.Repo,
		Version:  res.Version,
		FileName: rel.FileName,
		Platform: r.Platform,
		Arch:     r.Arch,
	})
	if err != nil {
		return ResolvedRelease{}, metaerr.WithMetadata(fmt.Errorf("render download url: %w", err), "template", r.Spec.DownloadURL)
	}
	rel.DownloadURL = url
	return rel, nil
}

// FileName returns the release asset name of version for the host:
// <tool>-<version>-<platform>-<arch>.<ext>.
func (r *Resolver) FileName(version string) string {
	return fmt.Sprintf("%s-%s-%s-%s.%s", r.Tool.Name, version, r.Platform, r.Arch, r.Platform.ArchiveFormat())
}
