// Weaver is a collaborative storytelling Discord bot.
//
// It connects to the Discord gateway, runs a turn-based story game in
// each channel (the bot offers three AI-generated continuations, the
// channel votes by command, and every few rounds a reader writes the
// next sentence directly), and keeps channels lively with optional
// praise and idle-nudge background jobs. Continuations come from the
// Gemini API. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	weaver serve             Connect to Discord and run the bot
//	weaver init [dir]        Initialize a working directory with defaults
//	weaver version           Print version and build information
//	weaver -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storybot/weaver/internal/attention"
	"github.com/storybot/weaver/internal/buildinfo"
	"github.com/storybot/weaver/internal/config"
	"github.com/storybot/weaver/internal/discord"
	"github.com/storybot/weaver/internal/events"
	"github.com/storybot/weaver/internal/gemini"
	"github.com/storybot/weaver/internal/story"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the weaver command. All OS-level
// dependencies are injected as parameters: ctx controls the process
// lifetime, stdout and stderr receive all output, args is os.Args[1:].
// Arguments are parsed by hand because the flag package relies on
// package-level globals, which makes it impossible to call run()
// concurrently from tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Weaver - Collaborative Storytelling Discord Bot")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: weaver [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Connect to Discord and run the bot")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/weaver/config.yaml, /etc/weaver/config.yaml")
	return nil
}

// runServe handles the "weaver serve" subcommand. It loads config,
// wires up the story engine, the Gemini client, the attention
// scheduler, and the Discord gateway, then blocks until a shutdown
// signal arrives or the gateway fails for good.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Weaver",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level and format are
	// known. The initial Info-level text logger covers only the startup
	// banner and config errors.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			// Already validated by config.Validate, the error path is
			// unreachable in practice.
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"prefix", cfg.Discord.CommandPrefix,
		"model", cfg.Gemini.Model,
		"user_turn_every", cfg.Story.UserTurnEvery,
	)

	if !cfg.Discord.Configured() {
		return fmt.Errorf("discord.token is not set (run \"weaver init\" to create a starter config)")
	}
	if !cfg.Gemini.Configured() {
		logger.Warn("gemini.api_key is not set, story generation will fail until it is configured")
	}

	// --- Event bus ---
	// Operational events from every component flow through the bus. The
	// only subscriber today is the debug log tap.
	bus := events.New()

	// --- Core components ---
	store := story.NewStore()
	backend := gemini.New(cfg.Gemini, logger, bus)
	rest := discord.NewRest(cfg.Discord.Token, "", logger)
	engine := story.NewEngine(logger, store, backend, rest, bus,
		cfg.Discord.CommandPrefix, cfg.Story.UserTurnEvery)
	scheduler := attention.NewScheduler(logger, store, rest, bus,
		cfg.Discord.CommandPrefix, cfg.Attention)
	gateway := discord.NewGateway(cfg.Discord.Token, "", logger)
	bridge := discord.NewBridge(discord.BridgeConfig{
		Source: gateway,
		Engine: engine,
		Jobs:   scheduler,
		Sender: rest,
		Store:  store,
		Logger: logger,
		Bus:    bus,
		Prefix: cfg.Discord.CommandPrefix,
	})

	// Probe the Gemini API once at startup. Failure is not fatal: the
	// key may become valid later, and the bot is still useful for the
	// praise and idle jobs.
	if cfg.Gemini.Configured() {
		pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := backend.Ping(pingCtx); err != nil {
			logger.Warn("gemini api unreachable at startup", "error", err)
		} else {
			logger.Info("gemini api reachable", "model", cfg.Gemini.Model)
		}
		pingCancel()
	}

	// --- Signal handling and graceful shutdown ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go runEventTap(ctx, bus, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := gateway.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		bridge.Start(ctx)
		return nil
	})

	err = g.Wait()
	scheduler.StopAll()
	if err != nil {
		return fmt.Errorf("gateway failed: %w", err)
	}

	logger.Info("Weaver stopped")
	return nil
}

// runEventTap subscribes to the bus and mirrors every event into the
// debug log until ctx is cancelled.
func runEventTap(ctx context.Context, bus *events.Bus, logger *slog.Logger) {
	ch := bus.Subscribe(256)
	defer bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			logger.Debug("event",
				"source", ev.Source,
				"kind", ev.Kind,
				"data", ev.Data,
			)
		}
	}
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used (and must exist).
// Otherwise [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
