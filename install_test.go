package main

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/010DevX101/setup-seal/internal/toolcache"
)

type fakeReporter struct {
	outputs map[string]string
	paths   []string
	lines   []string
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{outputs: map[string]string{}}
}

func (r *fakeReporter) Infof(format string, args ...any) {
	r.lines = append(r.lines, format)
}

func (r *fakeReporter) SetOutput(name string, value string) {
	r.outputs[name] = value
}

func (r *fakeReporter) AddPath(dir string) error {
	r.paths = append(r.paths, dir)
	return nil
}

func makeTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, content := range files {
		hdr := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type releaseServer struct {
	srv       *httptest.Server
	mux       *http.ServeMux
	downloads atomic.Int32
	lookups   atomic.Int32
}

func newReleaseServer(t *testing.T) *releaseServer {
	mux, srv := setupServer(t)
	return &releaseServer{srv: srv, mux: mux}
}

func (s *releaseServer) serveAsset(path string, data []byte) {
	s.mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		s.downloads.Add(1)
		_, _ = w.Write(data)
	})
}

func (s *releaseServer) serveLatest(tag string, assets ...string) {
	s.mux.HandleFunc("GET /repos/seal-runtime/seal/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		s.lookups.Add(1)
		list := make([]map[string]string, 0, len(assets))
		for _, name := range assets {
			list = append(list, map[string]string{
				"name":                 name,
				"browser_download_url": s.srv.URL + "/assets/" + name,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"tag_name": tag, "assets": list})
	})
}

func newTestInstaller(t *testing.T, s *releaseServer, platform Platform, arch string) (*Installer, *fakeReporter, *toolcache.Store) {
	t.Helper()
	cfg := DefaultConfig()
	spec := testRegistrySpec(s.srv)
	reporter := newFakeReporter()
	store := toolcache.New(t.TempDir())

	return &Installer{
		Resolver: &Resolver{
			Tool:     cfg.Tool,
			Spec:     spec,
			Registry: &GitHubRegistry{Client: s.srv.Client(), Spec: spec},
			Platform: platform,
			Arch:     arch,
		},
		Cache:       store,
		Client:      s.srv.Client(),
		Reporter:    reporter,
		TempDir:     t.TempDir(),
		EnableCache: true,
	}, reporter, store
}

func seedCache(t *testing.T, store *toolcache.Store, version string, arch string) string {
	t.Helper()
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "seal"), []byte("cached"), 0o644); err != nil {
		t.Fatal(err)
	}
	dir, err := store.CacheDir(src, toolcache.Manifest{Tool: "seal", Version: version, Arch: arch})
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func assertMode(t *testing.T, name string, want os.FileMode) {
	t.Helper()
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(name)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != want {
		t.Errorf("mode of %s = %v, want %v", name, got, want)
	}
}

func TestInstallerExplicitVersion(t *testing.T) {
	s := newReleaseServer(t)
	s.serveAsset(
		"/seal-runtime/seal/releases/download/v1.2.0/seal-v1.2.0-linux-x64.tar.gz",
		makeTarGz(t, map[string]string{"seal": "#!/bin/sh\n"}),
	)
	in, reporter, store := newTestInstaller(t, s, PlatformLinux, "x64")

	got, err := in.Run(context.Background(), "v1.2.0")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if got.CacheHit || got.Version != "v1.2.0" {
		t.Errorf("Run() = %+v", got)
	}
	data, err := os.ReadFile(filepath.Join(got.Path, "seal"))
	if err != nil || string(data) != "#!/bin/sh\n" {
		t.Errorf("installed binary = %q, %v", data, err)
	}
	assertMode(t, filepath.Join(got.Path, "seal"), 0o755)

	wantOutputs := map[string]string{
		"cache-hit": "false",
		"path":      got.Path,
		"version":   "v1.2.0",
	}
	if d := cmp.Diff(wantOutputs, reporter.outputs); d != "" {
		t.Errorf("outputs mismatch (-want/+got): %v", d)
	}
	if d := cmp.Diff([]string{got.Path}, reporter.paths); d != "" {
		t.Errorf("PATH mismatch (-want/+got): %v", d)
	}
	if s.lookups.Load() != 0 {
		t.Errorf("registry queried %d times, want 0", s.lookups.Load())
	}

	cached, ok := store.Find("seal", "v1.2.0", "x64")
	if !ok {
		t.Fatal("release was not cached")
	}
	m, err := store.Manifest("seal", "v1.2.0", "x64")
	if err != nil {
		t.Fatal(err)
	}
	if m.Source == "" || m.Digest == "" {
		t.Errorf("Manifest() = %+v, want source and digest", m)
	}
	assertMode(t, filepath.Join(cached, "seal"), 0o755)
}

func TestInstallerExplicitVersionCacheHit(t *testing.T) {
	s := newReleaseServer(t)
	s.serveAsset(
		"/seal-runtime/seal/releases/download/v1.2.0/seal-v1.2.0-linux-x64.tar.gz",
		makeTarGz(t, map[string]string{"seal": "fresh"}),
	)
	in, reporter, store := newTestInstaller(t, s, PlatformLinux, "x64")
	cached := seedCache(t, store, "v1.2.0", "x64")

	got, err := in.Run(context.Background(), "v1.2.0")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	want := InstallResult{Path: cached, Version: "v1.2.0", CacheHit: true}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("Run() mismatch (-want/+got): %v", d)
	}
	if reporter.outputs["cache-hit"] != "true" || reporter.outputs["path"] != cached {
		t.Errorf("outputs = %v", reporter.outputs)
	}
	if d := cmp.Diff([]string{cached}, reporter.paths); d != "" {
		t.Errorf("PATH mismatch (-want/+got): %v", d)
	}
	if n := s.downloads.Load(); n != 0 {
		t.Errorf("downloaded %d times, want 0", n)
	}
	assertMode(t, filepath.Join(cached, "seal"), 0o755)
}

func TestInstallerLatest(t *testing.T) {
	s := newReleaseServer(t)
	s.serveLatest("v0.3.1", "seal-v0.3.1-linux-arm64.tar.gz", "seal-v0.3.1-linux-x64.tar.gz")
	s.serveAsset("/assets/seal-v0.3.1-linux-x64.tar.gz", makeTarGz(t, map[string]string{"seal": "x64"}))
	s.serveAsset("/assets/seal-v0.3.1-linux-arm64.tar.gz", makeTarGz(t, map[string]string{"seal": "arm64"}))
	in, reporter, _ := newTestInstaller(t, s, PlatformLinux, "x64")

	got, err := in.Run(context.Background(), LatestVersion)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if got.Version != "v0.3.1" || got.CacheHit {
		t.Errorf("Run() = %+v", got)
	}
	data, _ := os.ReadFile(filepath.Join(got.Path, "seal"))
	if string(data) != "x64" {
		t.Errorf("installed binary = %q, want x64 build", data)
	}
	if reporter.outputs["version"] != "v0.3.1" {
		t.Errorf("version output = %q", reporter.outputs["version"])
	}
}

func TestInstallerLatestCacheHit(t *testing.T) {
	s := newReleaseServer(t)
	s.serveLatest("v0.3.1", "seal-v0.3.1-linux-x64.tar.gz")
	s.serveAsset("/assets/seal-v0.3.1-linux-x64.tar.gz", makeTarGz(t, map[string]string{"seal": "x64"}))
	in, reporter, store := newTestInstaller(t, s, PlatformLinux, "x64")
	cached := seedCache(t, store, "v0.3.1", "x64")

	got, err := in.Run(context.Background(), LatestVersion)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	want := InstallResult{Path: cached, Version: "v0.3.1", CacheHit: true}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("Run() mismatch (-want/+got): %v", d)
	}
	if s.lookups.Load() != 1 {
		t.Errorf("registry queried %d times, want 1", s.lookups.Load())
	}
	if s.downloads.Load() != 0 {
		t.Errorf("downloaded %d times, want 0", s.downloads.Load())
	}
	if reporter.outputs["cache-hit"] != "true" {
		t.Errorf("outputs = %v", reporter.outputs)
	}
}

func TestInstallerLatestCacheHitOtherPlatformAssets(t *testing.T) {
	// the cache is consulted before assets are matched
	s := newReleaseServer(t)
	s.serveLatest("v0.3.1", "seal-v0.3.1-windows-x64.zip")
	in, _, store := newTestInstaller(t, s, PlatformLinux, "x64")
	cached := seedCache(t, store, "v0.3.1", "x64")

	got, err := in.Run(context.Background(), LatestVersion)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got.Path != cached || !got.CacheHit {
		t.Errorf("Run() = %+v", got)
	}
}

func TestInstallerFailures(t *testing.T) {
	tests := []struct {
		testName string
		setup    func(s *releaseServer)
		version  string
		wantKind error

		// the extracted tree is kept once fetching succeeded
		wantTempEmpty bool
	}{
		{
			testName: "no matching asset",
			setup: func(s *releaseServer) {
				s.serveLatest("v0.3.1", "seal-v0.3.1-windows-x64.zip")
			},
			version:       LatestVersion,
			wantKind:      ErrUnsupportedReleaseAsset,
			wantTempEmpty: true,
		},
		{
			testName: "registry failure",
			setup: func(s *releaseServer) {
				s.mux.HandleFunc("GET /repos/seal-runtime/seal/releases/latest", func(w http.ResponseWriter, r *http.Request) {
					http.Error(w, "boom", http.StatusInternalServerError)
				})
			},
			version:       LatestVersion,
			wantKind:      ErrRegistryQuery,
			wantTempEmpty: true,
		},
		{
			testName:      "missing asset",
			setup:         func(s *releaseServer) {},
			version:       "v9.9.9",
			wantTempEmpty: true,
		},
		{
			testName: "corrupt archive",
			setup: func(s *releaseServer) {
				s.serveAsset("/seal-runtime/seal/releases/download/v1.0.0/seal-v1.0.0-linux-x64.tar.gz", []byte("not gzip"))
			},
			version:       "v1.0.0",
			wantTempEmpty: true,
		},
		{
			testName: "binary missing from archive",
			setup: func(s *releaseServer) {
				s.serveAsset(
					"/seal-runtime/seal/releases/download/v1.0.0/seal-v1.0.0-linux-x64.tar.gz",
					makeTarGz(t, map[string]string{"README.md": "no binary"}),
				)
			},
			version: "v1.0.0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			s := newReleaseServer(t)
			tt.setup(s)
			in, reporter, store := newTestInstaller(t, s, PlatformLinux, "x64")

			_, gotErr := in.Run(context.Background(), tt.version)
			if gotErr == nil {
				t.Fatal("Run() succeeded unexpectedly")
			}
			if tt.wantKind != nil && !errors.Is(gotErr, tt.wantKind) {
				t.Errorf("Run() error = %v, want %v", gotErr, tt.wantKind)
			}
			if len(reporter.outputs) != 0 {
				t.Errorf("outputs = %v, want none", reporter.outputs)
			}
			if len(reporter.paths) != 0 {
				t.Errorf("PATH = %v, want unchanged", reporter.paths)
			}
			if versions, _ := store.Versions("seal", "x64"); len(versions) != 0 {
				t.Errorf("cached versions = %v, want none", versions)
			}
			if tt.wantTempEmpty {
				entries, err := os.ReadDir(in.TempDir)
				if err != nil {
					t.Fatal(err)
				}
				if len(entries) != 0 {
					t.Errorf("temp dir has %d entries left, want none", len(entries))
				}
			}
		})
	}
}

func TestInstallerCacheDisabled(t *testing.T) {
	s := newReleaseServer(t)
	s.serveAsset(
		"/seal-runtime/seal/releases/download/v1.2.0/seal-v1.2.0-linux-x64.tar.gz",
		makeTarGz(t, map[string]string{"seal": "bin"}),
	)
	in, reporter, store := newTestInstaller(t, s, PlatformLinux, "x64")
	in.EnableCache = false

	got, err := in.Run(context.Background(), "v1.2.0")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if _, ok := store.Find("seal", "v1.2.0", "x64"); ok {
		t.Error("release was cached with caching disabled")
	}
	if d := cmp.Diff([]string{got.Path}, reporter.paths); d != "" {
		t.Errorf("PATH mismatch (-want/+got): %v", d)
	}
	if reporter.outputs["cache-hit"] != "false" || reporter.outputs["path"] != got.Path || reporter.outputs["version"] != "v1.2.0" {
		t.Errorf("outputs = %v", reporter.outputs)
	}
}

func TestInstallerNestedLegacyLayout(t *testing.T) {
	const fileName = "seal-v0.0.5-linux-x64.tar.gz"
	s := newReleaseServer(t)
	s.serveAsset(
		"/seal-runtime/seal/releases/download/v0.0.5/"+fileName,
		makeTarGz(t, map[string]string{fileName + "/seal": "legacy"}),
	)
	in, reporter, _ := newTestInstaller(t, s, PlatformLinux, "x64")

	got, err := in.Run(context.Background(), "v0.0.5")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if filepath.Base(got.Path) != fileName {
		t.Errorf("Run() path = %v, want nested %v", got.Path, fileName)
	}
	data, _ := os.ReadFile(filepath.Join(got.Path, "seal"))
	if string(data) != "legacy" {
		t.Errorf("installed binary = %q", data)
	}
	if reporter.outputs["path"] != got.Path {
		t.Errorf("path output = %q, want %q", reporter.outputs["path"], got.Path)
	}
}

func TestInstallerWindows(t *testing.T) {
	s := newReleaseServer(t)
	s.serveAsset(
		"/seal-runtime/seal/releases/download/v1.2.0/seal-v1.2.0-windows-x64.zip",
		makeZip(t, map[string]string{"seal.exe": "MZ"}),
	)
	in, reporter, _ := newTestInstaller(t, s, PlatformWindows, "x64")

	got, err := in.Run(context.Background(), "v1.2.0")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(got.Path, "seal.exe"))
	if err != nil || string(data) != "MZ" {
		t.Errorf("installed binary = %q, %v", data, err)
	}
	if reporter.outputs["cache-hit"] != "false" {
		t.Errorf("outputs = %v", reporter.outputs)
	}
}

func Test_adjustPath(t *testing.T) {
	dir := filepath.Join("tmp", "extract")
	tests := []struct {
		version string
		want    string
	}{
		{version: "v0.0.5", want: filepath.Join(dir, "seal-archive")},
		{version: "v0.0.5-rc.1", want: filepath.Join(dir, "seal-archive")},
		{version: "v0.0.50", want: filepath.Join(dir, "seal-archive")},
		{version: "v0.0.4", want: dir},
		{version: "v1.2.0", want: dir},
		{version: "0.0.5", want: dir},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			if got := adjustPath(tt.version, dir, "seal-archive"); got != tt.want {
				t.Errorf("adjustPath() = %v, want %v", got, tt.want)
			}
		})
	}
}
