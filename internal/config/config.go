// Package config provides configuration loading for chatlog.
//
// Configuration is read from an optional YAML file and then overridden by
// environment variables. Defaults apply to anything neither source sets.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Config holds the complete chatlog configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	LLM           LLMConfig           `koanf:"llm"`
	Classifier    ClassifierConfig    `koanf:"classifier"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Storage       StorageConfig       `koanf:"storage"`
	NATS          NATSConfig          `koanf:"nats"`
	Secrets       SecretsConfig       `koanf:"secrets"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// CacheTTL bounds how long the project listing is served from memory.
	CacheTTL Duration `koanf:"cache_ttl"`
}

// LLMConfig configures the external text-understanding service.
type LLMConfig struct {
	// Provider is one of "openai", "anthropic" or "langchain".
	Provider string   `koanf:"provider"`
	Model    string   `koanf:"model"`
	APIKey   Secret   `koanf:"api_key"`
	BaseURL  string   `koanf:"base_url"`
	Timeout  Duration `koanf:"timeout"`
}

// ClassifierConfig configures message classification.
type ClassifierConfig struct {
	// Strategy is "local_only" or "local_then_external".
	Strategy string `koanf:"strategy"`
	// RequireExternal makes a missing LLM credential fatal.
	RequireExternal bool    `koanf:"require_external"`
	Threshold       float64 `koanf:"threshold"`
}

// EmbeddingsConfig configures the local similarity model.
type EmbeddingsConfig struct {
	// Provider is "fastembed" (local ONNX), "tei" (remote HTTP) or
	// "openai" (any OpenAI-compatible embeddings endpoint).
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	CacheDir string `koanf:"cache_dir"`
	// APIKey is only used by the openai provider; empty falls back to llm.api_key.
	APIKey Secret `koanf:"api_key"`
}

// StorageConfig configures where records are written and indexed.
type StorageConfig struct {
	LogsDirectory string `koanf:"logs_directory"`
	IndexEnabled  bool   `koanf:"index_enabled"`
	IndexPath     string `koanf:"index_path"`
}

// NATSConfig configures record publication. An empty URL disables it.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// SecretsConfig configures scrubbing of text sent to the LLM.
type SecretsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// ObservabilityConfig holds logging and OpenTelemetry settings.
type ObservabilityConfig struct {
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	ServiceName     string `koanf:"service_name"`
}

// Classifier strategies.
const (
	StrategyLocalOnly         = "local_only"
	StrategyLocalThenExternal = "local_then_external"
)

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            5002,
			ShutdownTimeout: Duration(10 * time.Second),
			CacheTTL:        Duration(60 * time.Second),
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-3.5-turbo",
			Timeout:  Duration(60 * time.Second),
		},
		Classifier: ClassifierConfig{
			Strategy:  StrategyLocalThenExternal,
			Threshold: 0.35,
		},
		Embeddings: EmbeddingsConfig{
			Provider: "fastembed",
			Model:    "sentence-transformers/all-MiniLM-L6-v2",
			BaseURL:  "http://localhost:8080",
		},
		Storage: StorageConfig{
			LogsDirectory: "chat_logs",
			IndexPath:     "chat_logs/.index",
		},
		NATS: NATSConfig{
			SubjectPrefix: "chatlog.conversations",
		},
		Secrets: SecretsConfig{
			Enabled: true,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "chatlog",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.LLM.Provider {
	case "openai", "anthropic", "langchain":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	switch c.Classifier.Strategy {
	case StrategyLocalOnly, StrategyLocalThenExternal:
	default:
		return fmt.Errorf("unknown classifier strategy %q", c.Classifier.Strategy)
	}
	if c.Classifier.RequireExternal && c.Classifier.Strategy == StrategyLocalOnly {
		return errors.New("classifier.require_external conflicts with local_only strategy")
	}
	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		return fmt.Errorf("classifier threshold must be between 0 and 1, got %v", c.Classifier.Threshold)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei", "openai":
	default:
		return fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider)
	}

	if c.Storage.LogsDirectory == "" {
		return errors.New("storage.logs_directory is required")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}

// applyLegacyEnv honours the variable names older chat logger setups export.
func applyLegacyEnv(cfg *Config) {
	if !cfg.LLM.APIKey.IsSet() {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.LLM.APIKey = Secret(key)
		}
	}
	if os.Getenv("LLM_MODEL") == "" {
		if model := os.Getenv("OPENAI_MODEL"); model != "" {
			cfg.LLM.Model = model
		}
	}
	if os.Getenv("STORAGE_LOGS_DIRECTORY") == "" {
		if dir := os.Getenv("LOGS_DIRECTORY"); dir != "" {
			cfg.Storage.LogsDirectory = dir
		}
	}
}
