package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cluttrdev/cli"
	"github.com/pterm/pterm"
	"golang.org/x/term"

	"github.com/010DevX101/setup-seal/internal/actions"
)

// execute configures the root command and then runs it with the given context.
func execute(ctx context.Context, reporter *actions.Reporter, args []string) error {
	cmd := configure(reporter)
	opts := []cli.ParseOption{
		cli.WithEnvVarPrefix("SETUP_SEAL"),
	}

	if err := cmd.Parse(args, opts...); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse arguments: %w", err)
	}

	return cmd.Run(ctx)
}

// configure returns the root command.
func configure(reporter *actions.Reporter) *cli.Command {
	var cfg rootCmd

	fs := flag.NewFlagSet("setup-seal", flag.ExitOnError)

	cfg.RegisterFlags(fs)

	return &cli.Command{
		Name:       "setup-seal",
		ShortHelp:  "Install seal into a CI workflow.",
		ShortUsage: "setup-seal [COMMAND] [OPTION]...",
		Subcommands: []*cli.Command{
			cli.DefaultVersionCommand(os.Stdout),
			newInstallCmd(reporter),
			newResolveCmd(reporter),
		},
		Flags: fs,
		Exec:  cfg.Exec,
	}
}

func initLogging(w io.Writer, level string, format string) {
	if w == nil {
		w = os.Stderr
	}

	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := slog.HandlerOptions{
		Level: lvl,
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(w, &opts)
	case "json":
		handler = slog.NewJSONHandler(w, &opts)
	default:
		handler = slog.NewTextHandler(w, &opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
}

type rootCmd struct {
	ConfigFile string

	logFile   *os.File
	logPath   string
	logLevel  string
	logFormat string
	debug     bool
}

func (c *rootCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", strings.TrimSpace(os.Getenv("INPUT_CONFIG")), "An optional configuration file overriding tool and registry settings.")

	fs.StringVar(&c.logPath, "log-file", "", "Write logs to this file instead of stderr.")
	fs.StringVar(&c.logLevel, "log-level", "warn", "The log level.")
	fs.StringVar(&c.logFormat, "log-format", "text", "The log format ('text' or 'json').")
	fs.BoolVar(&c.debug, "debug", os.Getenv("RUNNER_DEBUG") == "1", "Enable debug mode.")
}

func (c *rootCmd) Exec(ctx context.Context, args []string) error {
	return flag.ErrHelp
}

func (c *rootCmd) initLogging() {
	var openErr error
	if c.logPath != "" {
		c.logFile, openErr = os.OpenFile(c.logPath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	}
	if c.logFile == nil {
		c.logFile = os.Stderr
	}

	initLogging(c.logFile, c.level(), c.logFormat)

	if openErr != nil {
		slog.Warn("failed to open log file, logging to stderr", "path", c.logPath, "error", openErr)
	}
}

func (c *rootCmd) level() string {
	if c.debug {
		return "debug"
	}
	return c.logLevel
}

// closeLogging closes the log file opened by initLogging and sends further
// logs to stderr.
func (c *rootCmd) closeLogging() {
	if c.logFile == nil || c.logFile == os.Stderr {
		return
	}
	initLogging(os.Stderr, c.level(), c.logFormat)
	if err := c.logFile.Close(); err != nil {
		slog.Warn("failed to close log file", "path", c.logPath, "error", err)
	}
	c.logFile = nil
}

// progress shows a spinner while a step runs, but only on an interactive
// terminal; workflow logs get the reporter's lines instead.
type progress struct {
	spinner *pterm.SpinnerPrinter
}

func startProgress(text ...any) progress {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return progress{}
	}
	spinner, _ := pterm.DefaultSpinner.WithWriter(os.Stderr).Start(text...)
	return progress{spinner: spinner}
}

func (p progress) Success(msg ...any) {
	if p.spinner != nil {
		p.spinner.Success(msg...)
	}
}

func (p progress) Fail(msg ...any) {
	if p.spinner != nil {
		p.spinner.Fail(msg...)
	}
}
