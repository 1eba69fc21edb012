package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/chatlog/internal/config"
	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/embeddings"
	"github.com/fyrsmithlabs/chatlog/internal/llm"
	"github.com/fyrsmithlabs/chatlog/internal/nlp"
)

type fixedClient struct{}

func (fixedClient) Complete(context.Context, llm.Request) (string, error) {
	return `{"type": "discussion", "tags": ["notes"]}`, nil
}

func (fixedClient) Model() string { return "fixed" }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.LogsDirectory = filepath.Join(t.TempDir(), "chat_logs")
	cfg.Secrets.AllowlistPath = filepath.Join(t.TempDir(), "missing.toml")
	return cfg
}

func hashProvider() (embeddings.Provider, error) { return nlp.HashEmbedder{Dim: 512}, nil }

func TestBuild_LocalOnly(t *testing.T) {
	cfg := testConfig(t)

	reg, err := Build(context.Background(), cfg, Options{Provider: hashProvider})
	require.NoError(t, err)
	defer reg.Close()

	assert.Nil(t, reg.LLM())
	assert.NotNil(t, reg.Scrubber())
	assert.Nil(t, reg.Store().Index())
	assert.Equal(t, cfg.Storage.LogsDirectory, reg.Store().Sink().Dir())

	rec, err := reg.Assembler().Assemble(context.Background(), conversation.Request{
		Messages: []conversation.RawMessage{{Role: conversation.RoleUser, Content: "What does the cache do?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.MessageCount)
	assert.Equal(t, "N/A", rec.Messages[0].AIModel)
}

func TestBuild_WithClientAndIndex(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.IndexEnabled = true
	cfg.Storage.IndexPath = ""

	reg, err := Build(context.Background(), cfg, Options{Provider: hashProvider, LLM: fixedClient{}})
	require.NoError(t, err)
	defer reg.Close()

	require.NotNil(t, reg.Store().Index())
	rec, err := reg.Assembler().Assemble(context.Background(), conversation.Request{
		Project:  "demo",
		Messages: []conversation.RawMessage{{Role: conversation.RoleUser, Content: "Some notes"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed", rec.Messages[0].AIModel)

	_, err = reg.Store().Save(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Store().Index().Count())
}

func TestBuild_RequireExternalWithoutCredential(t *testing.T) {
	cfg := testConfig(t)
	cfg.Classifier.RequireExternal = true

	reg, err := Build(context.Background(), cfg, Options{Provider: hashProvider})
	require.NoError(t, err)
	defer reg.Close()

	_, err = reg.Assembler().Assemble(context.Background(), conversation.Request{
		Messages: []conversation.RawMessage{{Content: "hi"}},
	})
	assert.ErrorIs(t, err, conversation.ErrCredentialRequired)
}

func TestBuild_InvalidAllowlist(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "allow.toml")
	require.NoError(t, os.WriteFile(path, []byte("[allowlist\nregexes = "), 0o644))
	cfg.Secrets.AllowlistPath = path

	_, err := Build(context.Background(), cfg, Options{Provider: hashProvider})
	assert.Error(t, err)
}

func TestBuild_UnreachableNATSIsNotFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.NATS.URL = "nats://127.0.0.1:1"

	reg, err := Build(context.Background(), cfg, Options{Provider: hashProvider})
	require.NoError(t, err)
	assert.NoError(t, reg.Close())
}
