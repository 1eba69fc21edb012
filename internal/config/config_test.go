package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatlog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "chat_logs", cfg.Storage.LogsDirectory)
	assert.Equal(t, "gpt-3.5-turbo", cfg.LLM.Model)
	assert.Equal(t, StrategyLocalThenExternal, cfg.Classifier.Strategy)
	assert.Equal(t, 60*time.Second, cfg.Server.CacheTTL.Duration())
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5002, cfg.Server.Port)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9191
  cache_ttl: 30s
llm:
  provider: anthropic
  model: claude-3-5-haiku-latest
classifier:
  strategy: local_only
  threshold: 0.5
storage:
  logs_directory: /tmp/logs
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.CacheTTL.Duration())
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, StrategyLocalOnly, cfg.Classifier.Strategy)
	assert.InDelta(t, 0.5, cfg.Classifier.Threshold, 1e-9)
	assert.Equal(t, "/tmp/logs", cfg.Storage.LogsDirectory)
	// untouched sections keep defaults
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9191\n", 0600)
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("LLM_API_KEY", "sk-test-key")
	t.Setenv("CLASSIFIER_REQUIRE_EXTERNAL", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "sk-test-key", cfg.LLM.APIKey.Value())
	assert.True(t, cfg.Classifier.RequireExternal)
}

func TestLoad_LegacyEnv(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("STORAGE_LOGS_DIRECTORY", "")
	t.Setenv("OPENAI_API_KEY", "sk-legacy")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("LOGS_DIRECTORY", "legacy_logs")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-legacy", cfg.LLM.APIKey.Value())
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "legacy_logs", cfg.Storage.LogsDirectory)
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	path := writeConfig(t, "server:\n  port: 9191\n", 0644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_InvalidStrategy(t *testing.T) {
	t.Setenv("CLASSIFIER_STRATEGY", "guess")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown classifier strategy")
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"LLM_API_KEY", "llm.api_key"},
		{"STORAGE_LOGS_DIRECTORY", "storage.logs_directory"},
		{"SERVER_PORT", "server.port"},
		{"OPENAI_API_KEY", ""},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"bad provider", func(c *Config) { c.LLM.Provider = "bard" }, "unknown llm provider"},
		{"require external with local only", func(c *Config) {
			c.Classifier.Strategy = StrategyLocalOnly
			c.Classifier.RequireExternal = true
		}, "conflicts"},
		{"threshold out of range", func(c *Config) { c.Classifier.Threshold = 1.5 }, "threshold"},
		{"bad embeddings provider", func(c *Config) { c.Embeddings.Provider = "word2vec" }, "unknown embeddings provider"},
		{"empty logs dir", func(c *Config) { c.Storage.LogsDirectory = "" }, "logs_directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sk-abc123")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "sk-abc123", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(data))

	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "", Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.NoError(t, d.UnmarshalText([]byte(" 60 ")))
	assert.Equal(t, time.Minute, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("-5")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
