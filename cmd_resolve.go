package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cluttrdev/cli"
	"github.com/goccy/go-yaml"

	"github.com/010DevX101/setup-seal/internal/actions"
	"github.com/010DevX101/setup-seal/internal/metaerr"
	"github.com/010DevX101/setup-seal/internal/toolcache"
)

func newResolveCmd(reporter *actions.Reporter) *cli.Command {
	cfg := resolveCmd{
		reporter: reporter,
		out:      os.Stdout,
	}

	fs := flag.NewFlagSet("setup-seal resolve", flag.ExitOnError)

	cfg.RegisterFlags(fs)

	return &cli.Command{
		Name:       "resolve",
		ShortHelp:  "Print the release a version resolves to, without installing it.",
		ShortUsage: "setup-seal resolve [OPTION]...",
		Flags:      fs,
		Exec:       cfg.Exec,
	}
}

type resolveCmd struct {
	rootCmd
	inputs inputFlags

	reporter *actions.Reporter
	host     Host
	out      io.Writer
}

func (c *resolveCmd) RegisterFlags(fs *flag.FlagSet) {
	c.rootCmd.RegisterFlags(fs)
	c.inputs.RegisterFlags(fs, c.reporter)
}

func (c *resolveCmd) Exec(ctx context.Context, args []string) error {
	c.initLogging()
	defer c.closeLogging()

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

	client := newClient(c.inputs.token)
	resolver := &Resolver{
		Tool:     cfg.Tool,
		Spec:     cfg.Registry,
		Registry: &GitHubRegistry{Client: client, Spec: cfg.Registry},
		Platform: platform,
		Arch:     host.Arch(),
	}

	spinner := startProgress("Resolving ", cfg.Tool.Name)
	rel, err := resolver.Resolve(ctx, c.inputs.Version())
	if err != nil {
		slog.With("error", err).
			With(metaerr.GetMetadata(err)...).
			Error("failed to resolve release")
		spinner.Fail()
		return err
	}
	spinner.Success()

	return writeRelease(c.out, resolveResult{
		ResolvedRelease: rel,
		Cached:          cachedManifest(cfg.Tool.Name, rel),
	})
}

// resolveResult is the printed resolution. Cached is set when the release
// is already in the tool cache.
type resolveResult struct {
	ResolvedRelease `yaml:",inline"`
	Cached          *toolcache.Manifest `yaml:"cached,omitempty"`
}

func cachedManifest(tool string, rel ResolvedRelease) *toolcache.Manifest {
	root, err := toolcache.DefaultRoot()
	if err != nil {
		slog.Debug("no tool cache", "error", err)
		return nil
	}
	m, err := toolcache.New(root).Manifest(tool, rel.Version, rel.Arch)
	if err != nil {
		slog.Debug("release not cached", "tool", tool, "version", rel.Version, "error", err)
		return nil
	}
	return &m
}

func writeRelease(w io.Writer, res resolveResult) error {
	data, err := yaml.Marshal(res)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
