package main

import (
	"errors"
	"fmt"
	"runtime"
)

// Platform is the platform label used in release asset names.
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformMacOS   Platform = "macos-darwin"
	PlatformLinux   Platform = "linux"
)

// ErrUnsupportedPlatform is returned for host operating systems without
// release builds.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// DetectPlatform maps a runner OS identifier (win32, darwin, linux) to its
// platform label.
func DetectPlatform(osID string) (Platform, error) {
	switch osID {
	case "win32":
		return PlatformWindows, nil
	case "linux":
		return PlatformLinux, nil
	case "darwin":
		return PlatformMacOS, nil
	}
	return "", fmt.Errorf("%w %s", ErrUnsupportedPlatform, osID)
}

// ArchiveFormat is the packaging of a release asset.
type ArchiveFormat string

const (
	ArchiveZip   ArchiveFormat = "zip"
	ArchiveTarGz ArchiveFormat = "tar.gz"
)

// ArchiveFormat returns the archive type release assets use on p.
func (p Platform) ArchiveFormat() ArchiveFormat {
	if p == PlatformWindows {
		return ArchiveZip
	}
	return ArchiveTarGz
}

// Executable returns the file name of the named binary on p.
func (p Platform) Executable(name string) string {
	if p == PlatformWindows {
		return name + ".exe"
	}
	return name
}

// Host provides the identifiers of the machine the action runs on.
type Host interface {
	// OS returns the runner OS identifier, e.g. "linux" or "win32".
	OS() string
	// Arch returns the runner architecture name, e.g. "x64" or "arm64".
	Arch() string
}

type runtimeHost struct{}

func (runtimeHost) OS() string {
	if runtime.GOOS == "windows" {
		return "win32"
	}
	return runtime.GOOS
}

func (runtimeHost) Arch() string {
	return runnerArch(runtime.GOARCH)
}

// runnerArch translates GOARCH into the architecture names used by the
// runner and by release asset names.
func runnerArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "386":
		return "ia32"
	case "mipsle":
		return "mipsel"
	case "ppc64le":
		return "ppc64"
	}
	return goarch
}
