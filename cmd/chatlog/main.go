// Package main implements the chatlog CLI for enriching, saving and browsing
// conversation logs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/chatlog/internal/config"
	"github.com/fyrsmithlabs/chatlog/internal/logging"
	"github.com/fyrsmithlabs/chatlog/internal/services"
)

var (
	// serverURL is the base URL for the chatlogd HTTP server
	serverURL string
	// configPath is an optional YAML config file
	configPath string
	// verbose enables debug logging on stderr
	verbose bool
	// version information
	version = "dev"

	// buildOptions lets tests replace providers that need the network.
	buildOptions = func(logger *logging.Logger) services.Options {
		return services.Options{Logger: logger}
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chatlog",
	Short: "Enrich, save and browse conversation logs",
	Long: `chatlog classifies and summarizes conversations between a user and an
assistant, stores them as JSON records and lets you browse and search them.

Most commands work directly on the logs directory. The health command talks
to a running chatlogd server.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:5002", "chatlogd server URL")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline progress to stderr")
	rootCmd.AddCommand(healthCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check chatlogd server health",
	Long: `Check the health status of the chatlogd HTTP server.

Examples:
  # Check health
  chatlog health

  # Check health on a different server
  chatlog health --server http://localhost:8080`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

// HealthResponse matches internal/http HealthResponse
type HealthResponse struct {
	Status        string `json:"status"`
	Conversations int    `json:"conversations"`
	Indexed       *int   `json:"indexed,omitempty"`
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderHealth(&health))
	return nil
}

// openRegistry loads configuration and wires services for a one-shot
// command. The caller must Close the registry.
func openRegistry(ctx context.Context, publish bool) (services.Registry, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := cliLogger()
	if err != nil {
		return nil, nil, err
	}

	opts := buildOptions(logger)
	opts.SkipNATS = opts.SkipNATS || !publish
	reg, err := services.Build(ctx, cfg, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing services: %w", err)
	}
	if err := reg.Assembler().CheckPolicy(); err != nil {
		_ = reg.Close()
		return nil, nil, err
	}
	return reg, cfg, nil
}

// cliLogger writes console logs to stderr, warnings only unless --verbose.
func cliLogger() (*logging.Logger, error) {
	cfg := logging.NewDefaultConfig()
	cfg.Format = "console"
	cfg.Caller = false
	cfg.Sampling.Enabled = false
	cfg.Fields = map[string]string{}
	cfg.Level = zapcore.WarnLevel
	if verbose {
		cfg.Level = zapcore.DebugLevel
	}
	return logging.NewLogger(cfg, nil)
}
