package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/010DevX101/setup-seal/internal/metaerr"
	"github.com/010DevX101/setup-seal/internal/toolcache"
)

// ToolCache stores installed tool directories across runs.
type ToolCache interface {
	Find(tool string, version string, arch string) (string, bool)
	CacheDir(src string, m toolcache.Manifest) (string, error)
}

// Reporter publishes progress and results to the invoking workflow.
type Reporter interface {
	Infof(format string, args ...any)
	SetOutput(name string, value string)
	AddPath(dir string) error
}

// InstallResult is the outcome of a successful run.
type InstallResult struct {
	Path     string
	Version  string
	CacheHit bool
}

// Installer resolves, downloads and installs the tool onto PATH.
type Installer struct {
	Resolver *Resolver
	Cache    ToolCache
	Client   *http.Client
	Reporter Reporter

	// TempDir is where archives are downloaded and extracted.
	TempDir string
	// EnableCache stores fresh installs in Cache.
	EnableCache bool
}

// Run installs the requested version. Outputs are only set when it succeeds.
func (in *Installer) Run(ctx context.Context, request string) (InstallResult, error) {
	res, err := in.install(ctx, request)
	if err != nil {
		return InstallResult{}, err
	}

	in.Reporter.SetOutput("cache-hit", strconv.FormatBool(res.CacheHit))
	in.Reporter.SetOutput("path", res.Path)
	in.Reporter.SetOutput("version", res.Version)
	return res, nil
}

func (in *Installer) install(ctx context.Context, request string) (InstallResult, error) {
	tool := in.Resolver.Tool.Name

	resolution, err := in.Resolver.ResolveVersion(ctx, request)
	if err != nil {
		return InstallResult{}, err
	}

	if dir, ok := in.findCached(resolution.Version); ok {
		if err := in.activate(dir); err != nil {
			return InstallResult{}, err
		}
		return InstallResult{Path: dir, Version: resolution.Version, CacheHit: true}, nil
	}

	rel, err := in.Resolver.Locate(resolution)
	if err != nil {
		return InstallResult{}, err
	}

	in.Reporter.Infof("Downloading %s from %s", tool, rel.DownloadURL)
	dir, digest, err := in.fetch(ctx, rel)
	if err != nil {
		return InstallResult{}, metaerr.WithMetadata(err, "url", rel.DownloadURL, "version", rel.Version)
	}
	in.Reporter.Infof("Extracted %s: %s", tool, dir)

	dir = adjustPath(rel.Version, dir, rel.FileName)
	if err := makeExecutable(dir, rel.Platform, tool); err != nil {
		return InstallResult{}, err
	}

	if in.EnableCache && in.Cache != nil {
		_, err := in.Cache.CacheDir(dir, toolcache.Manifest{
			Tool:    tool,
			Version: rel.Version,
			Arch:    rel.Arch,
			Source:  rel.DownloadURL,
			Digest:  digest,
		})
		if err != nil {
			return InstallResult{}, fmt.Errorf("cache %s: %w", tool, err)
		}
		in.Reporter.Infof("Cached %s for future workflows", tool)
	}

	if err := in.addPath(dir); err != nil {
		return InstallResult{}, err
	}
	in.Reporter.Infof("Successfully installed %s!", tool)

	return InstallResult{Path: dir, Version: rel.Version}, nil
}

func (in *Installer) findCached(version string) (string, bool) {
	if in.Cache == nil {
		return "", false
	}
	return in.Cache.Find(in.Resolver.Tool.Name, version, in.Resolver.Arch)
}

// activate puts a cached installation onto PATH.
func (in *Installer) activate(dir string) error {
	slog.Debug("using cached installation", "dir", dir)
	if err := makeExecutable(dir, in.Resolver.Platform, in.Resolver.Tool.Name); err != nil {
		return err
	}
	return in.addPath(dir)
}

func (in *Installer) addPath(dir string) error {
	if err := in.Reporter.AddPath(dir); err != nil {
		return err
	}
	in.Reporter.Infof("Added %s to PATH", in.Resolver.Tool.Name)
	return nil
}

// fetch downloads and extracts the release archive. It returns the
// extraction directory and the archive digest. Nothing is left behind in
// TempDir when it fails.
func (in *Installer) fetch(ctx context.Context, rel ResolvedRelease) (dir string, sum string, err error) {
	workDir, err := os.MkdirTemp(in.TempDir, "setup-seal-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			slog.Warn("failed to remove work directory", "dir", workDir, "error", rmErr)
		}
	}()

	downloadDir := filepath.Join(workDir, "download")
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return "", "", err
	}
	defer func() {
		if err := os.RemoveAll(downloadDir); err != nil {
			slog.Warn("failed to remove download directory", "dir", downloadDir, "error", err)
		}
	}()

	archive, err := Download(ctx, in.Client, rel.DownloadURL, downloadDir)
	if err != nil {
		return "", "", fmt.Errorf("download release asset: %w", err)
	}
	in.Reporter.Infof("Successfully downloaded %s", in.Resolver.Tool.Name)

	sum, err = fileDigest(archive)
	if err != nil {
		return "", "", fmt.Errorf("digest release asset: %w", err)
	}
	slog.Debug("downloaded release asset", "file", archive, "digest", sum)

	dir, err = Extract(archive, filepath.Join(workDir, "extract"), rel.Platform.ArchiveFormat())
	if err != nil {
		return "", "", fmt.Errorf("extract release asset: %w", err)
	}
	return dir, sum, nil
}

// pathAdjustment corrects the install directory of releases whose archive
// layout differs from the usual one.
type pathAdjustment struct {
	// match is a substring of the affected versions.
	match  string
	adjust func(dir string, fileName string) string
}

var pathAdjustments = []pathAdjustment{
	{
		// v0.0.5 nests its payload in a directory named like the archive
		match: "v0.0.5",
		adjust: func(dir string, fileName string) string {
			return filepath.Join(dir, fileName)
		},
	},
}

func adjustPath(version string, dir string, fileName string) string {
	for _, a := range pathAdjustments {
		if strings.Contains(version, a.match) {
			return a.adjust(dir, fileName)
		}
	}
	return dir
}

// makeExecutable sets rwxr-xr-x on the tool binary in dir. Windows has no
// executable bit.
func makeExecutable(dir string, platform Platform, tool string) error {
	if platform == PlatformWindows {
		return nil
	}
	name := filepath.Join(dir, platform.Executable(tool))
	if err := os.Chmod(name, 0o755); err != nil {
		return fmt.Errorf("make executable: %w", err)
	}
	return nil
}
