// Package toolcache stores installed tool directories across runs, using the
// layout of the hosted runner tool cache:
//
//	<root>/<tool>/<version>/<arch>/...
//	<root>/<tool>/<version>/<arch>.complete
//
// An entry only counts as present once its ".complete" marker exists. The
// marker holds a YAML manifest describing where the entry came from.
package toolcache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-yaml"
)

const markerSuffix = ".complete"

// Manifest describes a cache entry.
type Manifest struct {
	Tool    string    `yaml:"tool"`
	Version string    `yaml:"version"`
	Arch    string    `yaml:"arch"`
	Source  string    `yaml:"source,omitempty"`
	Digest  string    `yaml:"digest,omitempty"`
	Cached  time.Time `yaml:"cached"`
}

// Store is a tool cache rooted at a directory.
type Store struct {
	Root string

	now func() time.Time
}

// New returns a store rooted at root.
func New(root string) *Store {
	return &Store{
		Root: root,
		now:  time.Now,
	}
}

// DefaultRoot returns RUNNER_TOOL_CACHE if set, otherwise a directory below
// the user cache dir.
func DefaultRoot() (string, error) {
	if root := os.Getenv("RUNNER_TOOL_CACHE"); root != "" {
		return root, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("determine cache root: %w", err)
	}
	return filepath.Join(dir, "setup-seal", "toolcache"), nil
}

// Find returns the cached directory for (tool, versionSpec, arch).
// versionSpec is either an explicit version, a semver constraint matched
// against the cached versions, or any other tag used verbatim.
func (s *Store) Find(tool string, versionSpec string, arch string) (string, bool) {
	if tool == "" || versionSpec == "" || arch == "" {
		return "", false
	}

	version := versionSpec
	if !isExplicitVersion(versionSpec) {
		if match, ok := s.evaluate(tool, versionSpec, arch); ok {
			version = match
		}
	}

	dir := s.dir(tool, version, arch)
	if !fileExists(dir + markerSuffix) {
		slog.Debug("tool cache miss", "tool", tool, "version", version, "arch", arch)
		return "", false
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", false
	}

	slog.Debug("tool cache hit", "tool", tool, "version", version, "arch", arch, "dir", dir)
	return dir, true
}

// Versions lists the versions of tool that are completely cached for arch.
func (s *Store) Versions(tool string, arch string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.Root, tool))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var versions []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if fileExists(filepath.Join(s.Root, tool, e.Name(), arch+markerSuffix)) {
			versions = append(versions, e.Name())
		}
	}
	return versions, nil
}

// CacheDir copies the contents of src into the cache under the manifest's
// (tool, version, arch) and returns the cached directory. An existing entry
// is replaced.
func (s *Store) CacheDir(src string, m Manifest) (string, error) {
	if m.Tool == "" || m.Version == "" || m.Arch == "" {
		return "", fmt.Errorf("incomplete cache key: tool=%q version=%q arch=%q", m.Tool, m.Version, m.Arch)
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("source is not a directory: %s", src)
	}

	dst := s.dir(m.Tool, m.Version, m.Arch)
	marker := dst + markerSuffix

	_ = os.Remove(marker)
	if err := os.RemoveAll(dst); err != nil {
		return "", fmt.Errorf("remove stale entry: %w", err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	if err := copyTree(src, dst); err != nil {
		return "", fmt.Errorf("copy into cache: %w", err)
	}

	if m.Cached.IsZero() {
		m.Cached = s.now().UTC()
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(marker, data, 0o644); err != nil {
		return "", fmt.Errorf("write cache marker: %w", err)
	}

	slog.Debug("cached tool", "tool", m.Tool, "version", m.Version, "arch", m.Arch, "dir", dst)
	return dst, nil
}

// Manifest reads the manifest of a cached entry.
func (s *Store) Manifest(tool string, version string, arch string) (Manifest, error) {
	data, err := os.ReadFile(s.dir(tool, version, arch) + markerSuffix)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse cache marker: %w", err)
	}
	return m, nil
}

func (s *Store) dir(tool string, version string, arch string) string {
	return filepath.Join(s.Root, tool, cleanVersion(version), arch)
}

func (s *Store) evaluate(tool string, versionSpec string, arch string) (string, bool) {
	constraints, err := semver.NewConstraint(versionSpec)
	if err != nil {
		return "", false
	}

	versions, err := s.Versions(tool, arch)
	if err != nil {
		return "", false
	}

	vs := make([]*semver.Version, 0, len(versions))
	for _, raw := range versions {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		if constraints.Check(v) {
			vs = append(vs, v)
		}
	}
	if len(vs) == 0 {
		return "", false
	}

	sort.Sort(sort.Reverse(semver.Collection(vs)))
	return vs[0].Original(), true
}

// cleanVersion drops a leading "v" from strict semantic versions; anything
// else is kept as-is.
func cleanVersion(version string) string {
	v, err := semver.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(version), "v"))
	if err != nil {
		return version
	}
	return v.String()
}

func isExplicitVersion(version string) bool {
	_, err := semver.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(version), "v"))
	return err == nil
}

func fileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}
