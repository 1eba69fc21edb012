package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/chatlog/internal/classify"
	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/enrich"
	"github.com/fyrsmithlabs/chatlog/internal/llm"
	"github.com/fyrsmithlabs/chatlog/internal/nlp"
	"github.com/fyrsmithlabs/chatlog/internal/secrets"
	"github.com/fyrsmithlabs/chatlog/internal/store"
	"github.com/fyrsmithlabs/chatlog/internal/summarize"
	"github.com/fyrsmithlabs/chatlog/internal/telemetry"
)

// summaryClient answers every prompt with a fixed summary.
type summaryClient struct{}

func (summaryClient) Complete(context.Context, llm.Request) (string, error) {
	return `{"title": "Rotate leaked key", "summary": "The password: correcthorsebattery was pasted and must be rotated."}`, nil
}

func (summaryClient) Model() string { return "summary-stub" }

type testEnv struct {
	server  *Server
	store   *store.Store
	session *mcp.ClientSession
	tt      *telemetry.TestTelemetry
}

func setupTestServer(t *testing.T, withIndex bool) *testEnv {
	t.Helper()
	ctx := context.Background()

	models := nlp.NewEmbeddingModels(nlp.HashEmbedder{Dim: 1024})
	assembler := conversation.NewAssembler(
		summarize.New(summaryClient{}),
		classify.New(models, classify.StrategyLocalOnly),
		enrich.New(models),
	)

	var opts []store.Option
	if withIndex {
		idx, err := store.NewIndex("", nlp.HashEmbedder{Dim: 1024})
		require.NoError(t, err)
		opts = append(opts, store.WithIndex(idx))
	}
	st := store.New(store.NewFileSink(t.TempDir()), opts...)

	scrubber, err := secrets.New(nil)
	require.NoError(t, err)

	tt := telemetry.NewTestTelemetry()
	cfg := DefaultConfig()
	cfg.Meter = tt.Meter("test")
	server, err := NewServer(cfg, assembler, st, scrubber)
	require.NoError(t, err)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	return &testEnv{server: server, store: st, session: cs, tt: tt}
}

// callTool invokes name and decodes the structured output into out. It
// returns the error text when the tool reported a failure.
func (e *testEnv) callTool(t *testing.T, name string, args map[string]any, out any) string {
	t.Helper()
	res, err := e.session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if res.IsError {
		require.NotEmpty(t, res.Content)
		text, ok := res.Content[0].(*mcp.TextContent)
		require.True(t, ok)
		return text.Text
	}
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
	return ""
}

func TestNewServer(t *testing.T) {
	st := store.New(store.NewFileSink(t.TempDir()))
	a := conversation.NewAssembler(nil, nil, nil)

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		s, err := NewServer(nil, a, st, nil)
		require.NoError(t, err)
		assert.NotNil(t, s.mcp)
		assert.NotNil(t, s.logger)
	})

	t.Run("requires assembler", func(t *testing.T) {
		_, err := NewServer(nil, nil, st, nil)
		assert.ErrorContains(t, err, "assembler is required")
	})

	t.Run("requires store", func(t *testing.T) {
		_, err := NewServer(nil, a, nil, nil)
		assert.ErrorContains(t, err, "store is required")
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "chatlog", cfg.Name)
	assert.Equal(t, "1.0.0", cfg.Version)
	assert.NotNil(t, cfg.Logger)
}

func TestListTools(t *testing.T) {
	env := setupTestServer(t, false)

	res, err := env.session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"save_chat_history", "search_chat_history", "list_projects"}, names)
}

func TestSaveChatHistory(t *testing.T) {
	env := setupTestServer(t, true)

	var out saveOutput
	errText := env.callTool(t, "save_chat_history", map[string]any{
		"messages": []map[string]any{
			{"role": "user", "content": "Why does main.go panic?"},
			{"role": "assistant", "content": "It dereferences a nil map."},
		},
		"conversation_id": "conv-1",
	}, &out)
	require.Empty(t, errText)

	assert.Equal(t, "conv-1", out.ConversationID)
	assert.FileExists(t, out.Path)
	assert.Equal(t, 2, out.MessageCount)
	assert.Equal(t, "Rotate leaked key", out.Title)
	assert.NotContains(t, out.Summary, "correcthorsebattery")
	assert.Equal(t, string(classify.TypeQuestion), out.Types[0])
	assert.Equal(t, []string{"main.go"}, out.FilesMentioned)
	assert.Equal(t, 0, out.WorkspaceChanges)

	rec, err := env.store.Sink().Get("conv-1")
	require.NoError(t, err)
	assert.Equal(t, conversation.DefaultProject, rec.ProjectName)

	assert.Equal(t, int64(1), env.tt.CounterValue(t, "chatlog.mcp.tool.invocations_total"))
}

func TestSaveChatHistory_Workspace(t *testing.T) {
	env := setupTestServer(t, false)

	dir := filepath.Join(t.TempDir(), "repo")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("x = 1\n"), 0o644))
	_, err = wt.Add("app.py")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("x = 2\n"), 0o644))

	var out saveOutput
	errText := env.callTool(t, "save_chat_history", map[string]any{
		"messages":       []map[string]any{{"role": "user", "content": "bump x"}},
		"project_name":   "repo",
		"workspace_path": dir,
	}, &out)
	require.Empty(t, errText)
	assert.Equal(t, 1, out.WorkspaceChanges)

	rec, err := env.store.Sink().Get(out.ConversationID)
	require.NoError(t, err)
	require.Len(t, rec.WorkspaceChanges, 1)
	assert.Equal(t, "x = 1\n", rec.WorkspaceChanges[0].BeforeCode)
	assert.Equal(t, "x = 2\n", rec.WorkspaceChanges[0].AfterCode)
}

func TestSaveChatHistory_NotARepository(t *testing.T) {
	env := setupTestServer(t, false)

	var out saveOutput
	errText := env.callTool(t, "save_chat_history", map[string]any{
		"messages":       []map[string]any{{"content": "hello"}},
		"workspace_path": t.TempDir(),
	}, &out)
	require.Empty(t, errText)
	assert.Equal(t, 0, out.WorkspaceChanges)
	assert.Equal(t, 1, out.MessageCount)
}

func TestSaveChatHistory_EmptyConversation(t *testing.T) {
	env := setupTestServer(t, false)

	var out saveOutput
	errText := env.callTool(t, "save_chat_history", map[string]any{
		"messages":     []map[string]any{},
		"project_name": "demo",
	}, &out)
	require.Empty(t, errText)
	assert.Equal(t, 0, out.MessageCount)
	assert.Empty(t, out.Types)
	assert.Equal(t, "Empty Conversation", out.Title)
	assert.FileExists(t, out.Path)
	assert.Equal(t, int64(0), env.tt.CounterValue(t, "chatlog.mcp.tool.errors_total"))
}

func TestSearchChatHistory(t *testing.T) {
	env := setupTestServer(t, true)

	var saved saveOutput
	require.Empty(t, env.callTool(t, "save_chat_history", map[string]any{
		"messages":     []map[string]any{{"role": "user", "content": "rotate the key"}},
		"project_name": "ops",
	}, &saved))

	var out searchOutput
	require.Empty(t, env.callTool(t, "search_chat_history", map[string]any{"query": "leaked key", "limit": 3}, &out))
	assert.Equal(t, "leaked key", out.Query)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, saved.ConversationID, out.Results[0].ID)
	assert.Equal(t, "ops", out.Results[0].ProjectName)
	assert.NotContains(t, out.Results[0].Summary, "correcthorsebattery")

	assert.Contains(t, env.callTool(t, "search_chat_history", map[string]any{"query": " "}, &out), "query is required")
}

func TestSearchChatHistory_IndexDisabled(t *testing.T) {
	env := setupTestServer(t, false)

	var out searchOutput
	errText := env.callTool(t, "search_chat_history", map[string]any{"query": "anything"}, &out)
	assert.Contains(t, errText, "search index disabled")
}

func TestListProjects(t *testing.T) {
	env := setupTestServer(t, false)

	var empty listProjectsOutput
	require.Empty(t, env.callTool(t, "list_projects", map[string]any{}, &empty))
	assert.Empty(t, empty.Projects)

	for _, project := range []string{"alpha", "beta", "alpha"} {
		var saved saveOutput
		require.Empty(t, env.callTool(t, "save_chat_history", map[string]any{
			"messages":     []map[string]any{{"content": "note for " + project}},
			"project_name": project,
		}, &saved))
	}

	var out listProjectsOutput
	require.Empty(t, env.callTool(t, "list_projects", map[string]any{}, &out))
	assert.Equal(t, 3, out.Conversations)
	require.Len(t, out.Projects, 2)
	counts := map[string]int{}
	for _, p := range out.Projects {
		counts[p.Name] = p.Updates
	}
	assert.Equal(t, map[string]int{"alpha": 2, "beta": 1}, counts)
}
