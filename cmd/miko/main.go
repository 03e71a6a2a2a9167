// Miko is a desktop companion agent backend.
//
// It exposes a WebSocket chat endpoint for the desktop pet client plus
// small HTTP status endpoints, and a CLI for one-shot queries.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	miko serve               Start the chat server
//	miko ask <question>      Ask a single question (for testing)
//	miko greeting            Print the personalized greeting
//	miko version             Print version and build information
//	miko -o json version     Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Koi-west/claude-code-pet/internal/agent"
	"github.com/Koi-west/claude-code-pet/internal/api"
	"github.com/Koi-west/claude-code-pet/internal/buildinfo"
	"github.com/Koi-west/claude-code-pet/internal/config"
	"github.com/Koi-west/claude-code-pet/internal/events"
	"github.com/Koi-west/claude-code-pet/internal/llm"
	"github.com/Koi-west/claude-code-pet/internal/mail"
	"github.com/Koi-west/claude-code-pet/internal/mqtt"
	"github.com/Koi-west/claude-code-pet/internal/organizer"
	"github.com/Koi-west/claude-code-pet/internal/session"
	"github.com/Koi-west/claude-code-pet/internal/tools"
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

// run is the real entry point for the miko command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the server and background goroutines.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:] — the command-line arguments after the program
//     name. We parse these manually rather than using the flag package
//     to avoid global state that interferes with parallel tests.
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
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: miko ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "greeting":
		return runGreeting(ctx, stdout, configPath)
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
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Miko - Desktop Companion Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: miko [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the chat server")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  greeting     Print the personalized greeting")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/miko/config.yaml, /etc/miko/config.yaml")
	return nil
}

// runAsk handles the "miko ask <question>" subcommand. It boots a
// minimal agent (in-memory session store, no server, no event bus) and
// processes a single question, printing the response to stdout.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	llmClient := llm.NewKimiClient(cfg.Kimi, logger)
	store := session.NewMemStore(cfg.Session.MaxHistory)
	registry := buildRegistry(cfg, llmClient, nil, nil, logger)

	loop := agent.New(llmClient, registry, store, nil, nil, logger)

	response, err := loop.HandleTurn(ctx, "default", question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, response)
	return nil
}

// runGreeting prints the personalized greeting for the default
// identity, drawing on whatever memory the configured backend holds.
func runGreeting(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store, logger)

	fmt.Fprintln(stdout, store.Greeting("default"))
	return nil
}

// closeStore closes persistent backends; the in-memory store has
// nothing to release.
func closeStore(store session.Store, logger *slog.Logger) {
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("closing session store", "error", err)
		}
	}
}

// runServe handles the "miko serve" subcommand. It is the primary
// operating mode: loads config, opens the session store, wires the
// tool registry and agent loop, starts the chat server, and blocks
// until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Miko", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that we know the desired level. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Kimi.Model,
		"session_backend", cfg.Session.Backend,
	)

	if cfg.Kimi.APIKey == "" {
		return fmt.Errorf("kimi.api_key is not configured")
	}

	// --- Session store ---
	// Conversation history is always process-lifetime; the configured
	// backend decides whether extracted memory survives restarts.
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store, logger)

	// --- LLM client ---
	llmClient := llm.NewKimiClient(cfg.Kimi, logger)

	// --- Mail service ---
	// Optional. Without it, the mail tool is unavailable and Miko
	// answers mail requests conversationally.
	var mailSvc *mail.Service
	if cfg.Mail.IMAP.Host != "" || cfg.Mail.SMTP.Host != "" {
		mailSvc = mail.NewService(cfg.Mail, llmClient, logger)
		defer mailSvc.Close()
		logger.Info("mail service configured", "imap", cfg.Mail.IMAP.Host, "smtp", cfg.Mail.SMTP.Host)
	} else {
		logger.Warn("mail not configured - gmail_operation tool unavailable")
	}

	// --- Event bus ---
	bus := events.New()

	// --- Tool registry ---
	registry := buildRegistry(cfg, llmClient, mailSvc, bus, logger)
	logger.Info("tools registered", "tools", registry.Names())

	// --- Memory extraction ---
	extractor := session.NewExtractor(store, agent.ExtractFunc(llmClient), logger)

	// --- Agent loop ---
	loop := agent.New(llmClient, registry, store, extractor, bus, logger)

	// --- MQTT event publishing ---
	// Optional observability bridge; events flow to the broker only
	// when one is configured.
	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		mqttPub = mqtt.New(cfg.MQTT, bus, logger)
		if err := mqttPub.Start(ctx); err != nil {
			return fmt.Errorf("mqtt publisher: %w", err)
		}
		logger.Info("mqtt publishing enabled", "broker", cfg.MQTT.Broker, "topic", cfg.MQTT.Topic)
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, loop, bus, logger)

	// --- Signal handling and graceful shutdown ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		if mqttPub != nil {
			offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer offlineCancel()
			if err := mqttPub.Stop(offlineCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	// Start the chat server. This blocks until the server is shut down
	// (via context cancellation or fatal error).
	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Miko stopped")
	return nil
}

// buildRegistry wires the full tool surface: application control,
// file management (with the multi-round organizer behind the organize
// action), Python execution, and mail when a service is available.
func buildRegistry(cfg *config.Config, llmClient llm.Client, mailSvc *mail.Service, bus *events.Bus, logger *slog.Logger) *tools.Registry {
	registry := tools.NewRegistry(logger)
	registry.SetDispatchTimeout(cfg.ToolTimeout())

	runner := shellRunner(cfg)
	org := organizer.New(llmClient, runner, bus, logger, cfg.Organizer.MaxRounds)

	registry.RegisterControlApplication(llmClient)
	registry.RegisterManageFiles(org.Organize)
	registry.RegisterExecutePython(llmClient)
	if mailSvc != nil {
		registry.RegisterMailOperations(mailSvc)
	}

	return registry
}

// shellRunner builds the shared shell runner from configuration,
// layering configured denials on top of the built-in denylist.
func shellRunner(cfg *config.Config) *tools.ShellRunner {
	rc := tools.DefaultShellRunnerConfig()
	if cfg.ShellExec.WorkingDir != "" {
		rc.WorkingDir = cfg.ShellExec.WorkingDir
	}
	rc.DeniedPatterns = append(rc.DeniedPatterns, cfg.ShellExec.DeniedPatterns...)
	if cfg.ShellExec.DefaultTimeoutSec > 0 {
		rc.DefaultTimeout = time.Duration(cfg.ShellExec.DefaultTimeoutSec) * time.Second
	}
	return tools.NewShellRunner(rc)
}

// openStore builds the session store for the configured backend.
// History is bounded in memory either way; "file" and "sqlite"
// persist extracted memory across restarts.
func openStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case "", "memory":
		return session.NewMemStore(cfg.Session.MaxHistory), nil
	case "file":
		if cfg.Session.Path == "" {
			return nil, fmt.Errorf("session.path is required for the file backend")
		}
		backend, err := session.NewFileBackend(cfg.Session.Path)
		if err != nil {
			return nil, fmt.Errorf("open memory file %s: %w", cfg.Session.Path, err)
		}
		return session.NewPersistentStore(cfg.Session.MaxHistory, backend), nil
	case "sqlite":
		if cfg.Session.Path == "" {
			return nil, fmt.Errorf("session.path is required for the sqlite backend")
		}
		backend, err := session.NewSQLiteBackend(cfg.Session.Path)
		if err != nil {
			return nil, fmt.Errorf("open memory database %s: %w", cfg.Session.Path, err)
		}
		return session.NewPersistentStore(cfg.Session.MaxHistory, backend), nil
	default:
		return nil, fmt.Errorf("unknown session backend: %q (expected memory, file, or sqlite)", cfg.Session.Backend)
	}
}

// newLogger creates a structured text logger writing to w at the
// given level. All log output in Miko goes through slog; this helper
// standardizes the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used (and must exist).
// Otherwise, [config.FindConfig] searches the default locations.
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
