package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cluttrdev/cli"

	"github.com/010DevX101/setup-seal/internal/actions"
	"github.com/010DevX101/setup-seal/internal/metaerr"
	"github.com/010DevX101/setup-seal/internal/toolcache"
)

func newInstallCmd(reporter *actions.Reporter) *cli.Command {
	cfg := installCmd{
		reporter: reporter,
	}

	fs := flag.NewFlagSet("setup-seal install", flag.ExitOnError)

	cfg.RegisterFlags(fs)

	return &cli.Command{
		Name:       "install",
		ShortHelp:  "Install seal and put it on PATH.",
		ShortUsage: "setup-seal install [OPTION]...",
		Flags:      fs,
		Exec:       cfg.Exec,
	}
}

// inputFlags are the step inputs. Their defaults come from the workflow.
type inputFlags struct {
	token   string
	version string
	cache   string
}

func (f *inputFlags) RegisterFlags(fs *flag.FlagSet, reporter *actions.Reporter) {
	fs.StringVar(&f.token, "token", reporter.Input("token"), "The token for registry queries and downloads.")
	fs.StringVar(&f.version, "version", reporter.Input("version"), "The version to install, or 'latest'.")
	fs.StringVar(&f.cache, "cache", reporter.Input("cache"), "Whether to cache the installation ('true' or 'false').")
}

// Version returns the requested version, "latest" unless given.
func (f *inputFlags) Version() string {
	if v := strings.TrimSpace(f.version); v != "" {
		return v
	}
	return LatestVersion
}

// Cache reports whether fresh installs are cached.
func (f *inputFlags) Cache() (bool, error) {
	return actions.ParseBool("cache", strings.TrimSpace(f.cache), true)
}

type installCmd struct {
	rootCmd
	inputs inputFlags

	reporter *actions.Reporter
	host     Host
}

func (c *installCmd) RegisterFlags(fs *flag.FlagSet) {
	c.rootCmd.RegisterFlags(fs)
	c.inputs.RegisterFlags(fs, c.reporter)
}

func (c *installCmd) Exec(ctx context.Context, args []string) error {
	c.initLogging()
	defer c.closeLogging()

	enableCache, err := c.inputs.Cache()
	if err != nil {
		return err
	}

	var cfg Config
	if err := LoadConfigFile(c.ConfigFile, &cfg); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	host := c.host
	if host == nil {
		host = runtimeHost{}
	}
	platform, err := DetectPlatform(host.OS())
	if err != nil {
		return err
	}

	cacheRoot, err := toolcache.DefaultRoot()
	if err != nil {
		return err
	}

	client := newClient(c.inputs.token)
	installer := &Installer{
		Resolver: &Resolver{
			Tool:     cfg.Tool,
			Spec:     cfg.Registry,
			Registry: &GitHubRegistry{Client: client, Spec: cfg.Registry},
			Platform: platform,
			Arch:     host.Arch(),
		},
		Cache:       toolcache.New(cacheRoot),
		Client:      client,
		Reporter:    c.reporter,
		TempDir:     runnerTemp(),
		EnableCache: enableCache,
	}

	version := c.inputs.Version()
	spinner := startProgress("Installing ", cfg.Tool.Name, " ", version)
	result, err := installer.Run(ctx, version)
	if err != nil {
		slog.With("error", err).
			With(metaerr.GetMetadata(err)...).
			Error("failed to install", "tool", cfg.Tool.Name, "version", version)
		spinner.Fail("Failed to install ", cfg.Tool.Name, ": ", err)
		return err
	}
	spinner.Success("Installed ", cfg.Tool.Name, " ", result.Version)

	slog.Info("installed",
		"tool", cfg.Tool.Name,
		"version", result.Version,
		"path", result.Path,
		"cacheHit", result.CacheHit,
	)
	return nil
}

// runnerTemp returns RUNNER_TEMP if set, otherwise the OS temp dir.
func runnerTemp() string {
	if dir := os.Getenv("RUNNER_TEMP"); dir != "" {
		return dir
	}
	return os.TempDir()
}
