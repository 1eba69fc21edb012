package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/chatlog/internal/classify"
	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/enrich"
	"github.com/fyrsmithlabs/chatlog/internal/logging"
	"github.com/fyrsmithlabs/chatlog/internal/nlp"
	"github.com/fyrsmithlabs/chatlog/internal/secrets"
	"github.com/fyrsmithlabs/chatlog/internal/store"
	"github.com/fyrsmithlabs/chatlog/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server *Server
	store  *store.Store
	dir    string
	tt     *telemetry.TestTelemetry
}

func setupTestServer(t *testing.T, withIndex bool) *testEnv {
	t.Helper()
	models := nlp.NewEmbeddingModels(nlp.HashEmbedder{Dim: 1024})
	assembler := conversation.NewAssembler(nil,
		classify.New(models, classify.StrategyLocalOnly),
		enrich.New(models),
	)

	dir := filepath.Join(t.TempDir(), "chat_logs")
	var opts []store.Option
	if withIndex {
		idx, err := store.NewIndex("", nlp.HashEmbedder{Dim: 1024})
		require.NoError(t, err)
		opts = append(opts, store.WithIndex(idx))
	}
	st := store.New(store.NewFileSink(dir), opts...)

	scrubber, err := secrets.New(nil)
	require.NoError(t, err)

	tt := telemetry.NewTestTelemetry()
	server, err := NewServer(Services{Assembler: assembler, Store: st, Scrubber: scrubber}, logging.Nop(), &Config{
		Host:     "localhost",
		Port:     5002,
		CacheTTL: time.Minute,
		Meter:    tt.Meter("test"),
	})
	require.NoError(t, err)
	return &testEnv{server: server, store: st, dir: dir, tt: tt}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.echo.ServeHTTP(rec, req)
	return rec
}

const sampleConversation = `{
	"project_name": "demo",
	"messages": [
		{"role": "user", "content": "How do I fix the crash in parser.go?"},
		{"role": "assistant", "content": "Before:\n` + "```go\\nold()\\n```" + `\nAfter:\n` + "```go\\nnew()\\n```" + `"}
	]
}`

func TestNewServer(t *testing.T) {
	st := store.New(store.NewFileSink(t.TempDir()))
	a := conversation.NewAssembler(nil, nil, nil)

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(Services{Assembler: a, Store: st}, logging.Nop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 5002, server.config.Port)
		assert.Equal(t, time.Minute, server.config.CacheTTL)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(Services{Assembler: a, Store: st}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when collaborators are missing", func(t *testing.T) {
		_, err := NewServer(Services{Store: st}, logging.Nop(), nil)
		assert.ErrorContains(t, err, "assembler")
		_, err = NewServer(Services{Assembler: a}, logging.Nop(), nil)
		assert.ErrorContains(t, err, "store")
	})
}

func TestHandleHealth(t *testing.T) {
	env := setupTestServer(t, true)

	rec := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Conversations)
	require.NotNil(t, resp.Indexed)
	assert.Equal(t, 0, *resp.Indexed)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHandleSave(t *testing.T) {
	env := setupTestServer(t, true)

	rec := env.do(http.MethodPost, "/api/v1/conversations", sampleConversation)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp SaveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.FileExists(t, resp.Path)
	require.NotNil(t, resp.Record)
	assert.Equal(t, "demo", resp.Record.ProjectName)
	assert.Equal(t, 2, resp.Record.MessageCount)
	assert.Equal(t, []string{"parser.go"}, resp.Record.FilesMentioned)
	assert.Equal(t, classify.TypeQuestion, resp.Record.Messages[0].Type)
	require.NotNil(t, resp.Record.Messages[1].AfterCode)
	assert.Equal(t, "new()", strings.TrimSpace(*resp.Record.Messages[1].AfterCode))

	get := env.do(http.MethodGet, "/api/v1/conversations/"+resp.ID, "")
	assert.Equal(t, http.StatusOK, get.Code)

	missing := env.do(http.MethodGet, "/api/v1/conversations/nope", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)

	assert.Equal(t, int64(3), env.tt.CounterValue(t, "chatlog.http.requests_total"))
}

func TestHandleSave_BareArray(t *testing.T) {
	env := setupTestServer(t, false)

	rec := env.do(http.MethodPost, "/api/v1/conversations", `[{"role": "user", "content": "hello"}]`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp SaveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, conversation.DefaultProject, resp.Record.ProjectName)
}

func TestHandleSave_BadRequests(t *testing.T) {
	env := setupTestServer(t, false)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"messages": `},
		{"empty body", ``},
		{"not a conversation", `"hello"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/v1/conversations", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	entries, err := env.store.Sink().List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandleSave_EmptyConversation(t *testing.T) {
	env := setupTestServer(t, false)

	for _, body := range []string{`{"project_name": "demo", "messages": []}`, `[]`} {
		rec := env.do(http.MethodPost, "/api/v1/conversations", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp SaveResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.FileExists(t, resp.Path)
		require.NotNil(t, resp.Record)
		assert.Equal(t, 0, resp.Record.MessageCount)
		assert.Empty(t, resp.Record.Messages)
		assert.Equal(t, "Empty Conversation", resp.Record.Title)
	}

	entries, err := env.store.Sink().List()
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	enriched := env.do(http.MethodPost, "/api/v1/enrich", `[]`)
	require.Equal(t, http.StatusOK, enriched.Code)
	var record conversation.Record
	require.NoError(t, json.Unmarshal(enriched.Body.Bytes(), &record))
	assert.Equal(t, 0, record.MessageCount)
}

func TestHandleSave_CredentialRequired(t *testing.T) {
	env := setupTestServer(t, false)
	env.server.assembler = conversation.NewAssembler(nil, nil, nil, conversation.WithRequireExternal(true))

	rec := env.do(http.MethodPost, "/api/v1/conversations", sampleConversation)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleEnrich_DoesNotSave(t *testing.T) {
	env := setupTestServer(t, false)

	rec := env.do(http.MethodPost, "/api/v1/enrich", sampleConversation)
	require.Equal(t, http.StatusOK, rec.Code)

	var record conversation.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, 2, record.MessageCount)
	assert.NotEmpty(t, record.Messages[1].Enrichment.ConventionalCategory)
	assert.Contains(t, record.Messages[1].Enrichment.FormattedDiff, "// After:")

	_, err := os.Stat(env.dir)
	assert.True(t, os.IsNotExist(err))
}

func TestHandleProjects_Cache(t *testing.T) {
	env := setupTestServer(t, false)

	rec := env.do(http.MethodGet, "/api/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"projects": [], "projectSummaries": []}`, rec.Body.String())

	// Written behind the server's back: the cached empty listing is served.
	_, err := env.store.Sink().Write(&conversation.Record{ID: "x", ProjectName: "side", Messages: []conversation.Message{}, CreatedAt: time.Now()})
	require.NoError(t, err)
	rec = env.do(http.MethodGet, "/api/projects", "")
	assert.JSONEq(t, `{"projects": [], "projectSummaries": []}`, rec.Body.String())

	// Saving through the API invalidates.
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/conversations", sampleConversation).Code)
	rec = env.do(http.MethodGet, "/api/projects", "")

	var ov store.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ov))
	assert.Len(t, ov.Projects, 2)
	assert.Len(t, ov.ProjectSummaries, 2)
	for _, p := range ov.Projects {
		assert.Equal(t, "Active", p.Status)
	}
}

func TestHandleSearch(t *testing.T) {
	env := setupTestServer(t, true)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/conversations", sampleConversation).Code)

	rec := env.do(http.MethodGet, "/api/v1/conversations/search?q=conversation&k=3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "conversation", resp.Query)
	assert.Len(t, resp.Results, 1)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/conversations/search", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/conversations/search?q=x&k=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/conversations/search?q=x&k=abc", "").Code)
}

func TestHandleSearch_IndexDisabled(t *testing.T) {
	env := setupTestServer(t, false)
	rec := env.do(http.MethodGet, "/api/v1/conversations/search?q=x", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHandleScrub(t *testing.T) {
	env := setupTestServer(t, false)

	rec := env.do(http.MethodPost, "/api/v1/scrub", `{"content": "password: correcthorsebattery"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ScrubResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotContains(t, resp.Content, "correcthorsebattery")
	assert.Positive(t, resp.FindingsCount)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/scrub", `{"content": ""}`).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t, false)
	env.do(http.MethodGet, "/api/projects", "")
	env.do(http.MethodGet, "/api/projects", "")

	rec := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "chatlog_projects_cache_hits_total 1")
	assert.Contains(t, body, "chatlog_projects_cache_misses_total 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestProjectCache(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newProjectCache(time.Minute)
	c.now = func() time.Time { return now }

	loads := 0
	load := func() (store.Overview, error) {
		loads++
		return store.Overview{Projects: []store.Project{{Name: "p"}}}, nil
	}

	_, hit, err := c.get(load)
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, _ = c.get(load)
	assert.True(t, hit)

	now = now.Add(61 * time.Second)
	_, hit, _ = c.get(load)
	assert.False(t, hit)

	c.invalidate()
	_, hit, _ = c.get(load)
	assert.False(t, hit)
	assert.Equal(t, 3, loads)
}

func TestWatchLogs_InvalidatesCache(t *testing.T) {
	env := setupTestServer(t, false)
	require.NoError(t, os.MkdirAll(env.dir, 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = env.server.WatchLogs(ctx) }()

	rec := env.do(http.MethodGet, "/api/projects", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	_, err := env.store.Sink().Write(&conversation.Record{ID: "ext", ProjectName: "outside", Messages: []conversation.Message{}, CreatedAt: time.Now()})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		var ov store.Overview
		if err := json.Unmarshal(env.do(http.MethodGet, "/api/projects", "").Body.Bytes(), &ov); err != nil {
			return false
		}
		return len(ov.Projects) == 1 && ov.Projects[0].Name == "outside"
	}, 5*time.Second, 50*time.Millisecond)
}
