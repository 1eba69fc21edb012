// Chatlogd is the chat log daemon.
//
// In http mode it serves the dashboard listing, conversation ingestion and
// search API. In mcp mode it speaks the Model Context Protocol on stdio so
// an assistant can save its own conversations.
//
// Usage:
//
//	# HTTP API on the configured port
//	chatlogd
//
//	# MCP server on stdio
//	chatlogd --mode mcp
//
//	# Configure via file and environment
//	LLM_API_KEY=... STORAGE_LOGS_DIRECTORY=/var/lib/chatlog chatlogd --config chatlog.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatlog/internal/config"
	httpserver "github.com/fyrsmithlabs/chatlog/internal/http"
	"github.com/fyrsmithlabs/chatlog/internal/logging"
	"github.com/fyrsmithlabs/chatlog/internal/mcp"
	"github.com/fyrsmithlabs/chatlog/internal/services"
	"github.com/fyrsmithlabs/chatlog/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const (
	modeHTTP = "http"
	modeMCP  = "mcp"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	mode := flag.String("mode", modeHTTP, "transport: http or mcp")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  chatlogd [--mode http|mcp] [--config file]   Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  chatlogd version                            Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *mode); err != nil {
		fmt.Fprintf(os.Stderr, "chatlogd: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("chatlogd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires every service and blocks until ctx is cancelled.
func run(ctx context.Context, configPath, mode string) error {
	if mode != modeHTTP && mode != modeMCP {
		return fmt.Errorf("unknown mode %q (want %s or %s)", mode, modeHTTP, modeMCP)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	logCfg, err := logging.FromObservability(cfg.Observability)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	if terr := tel.Err(); terr != nil {
		logger.Warn(ctx, "telemetry degraded", zap.Error(terr))
	}

	reg, err := services.Build(ctx, cfg, services.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn(context.Background(), "closing services", zap.Error(err))
		}
	}()

	if err := reg.Assembler().CheckPolicy(); err != nil {
		return err
	}

	logger.Info(ctx, "starting chatlogd",
		zap.String("mode", mode),
		zap.String("version", version),
		zap.String("logs_directory", cfg.Storage.LogsDirectory),
		zap.Bool("llm_configured", reg.LLM() != nil),
		zap.Bool("index_enabled", reg.Store().Index() != nil),
	)

	if idx := reg.Store().Index(); idx != nil && idx.Count() == 0 {
		n, err := reg.Store().Rebuild(ctx)
		if err != nil {
			logger.Warn(ctx, "rebuilding search index failed", zap.Error(err))
		} else {
			logger.Info(ctx, "search index rebuilt", zap.Int("conversations", n))
		}
	}

	if mode == modeMCP {
		return runMCP(ctx, reg, logger)
	}
	return runHTTP(ctx, cfg, reg, logger)
}

func runMCP(ctx context.Context, reg services.Registry, logger *logging.Logger) error {
	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "chatlog",
		Version: version,
		Logger:  logger,
	}, reg.Assembler(), reg.Store(), reg.Scrubber())
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	fmt.Fprintf(os.Stderr, "chatlogd mcp mode started\n")
	return srv.Run(ctx)
}

func runHTTP(ctx context.Context, cfg *config.Config, reg services.Registry, logger *logging.Logger) error {
	srv, err := httpserver.NewServer(httpserver.Services{
		Assembler: reg.Assembler(),
		Store:     reg.Store(),
		Scrubber:  reg.Scrubber(),
	}, logger, &httpserver.Config{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		CacheTTL: cfg.Server.CacheTTL.Duration(),
	})
	if err != nil {
		return err
	}

	go func() {
		if err := srv.WatchLogs(ctx); err != nil {
			logger.Warn(ctx, "logs watcher stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
