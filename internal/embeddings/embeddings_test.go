package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/chatlog/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensionForModel(t *testing.T) {
	assert.Equal(t, 384, DimensionForModel("sentence-transformers/all-MiniLM-L6-v2"))
	assert.Equal(t, 768, DimensionForModel("BAAI/bge-base-en-v1.5"))
	assert.Equal(t, 1536, DimensionForModel("text-embedding-3-small"))
	assert.Equal(t, 1024, DimensionForModel("custom-large"))
	assert.Equal(t, 384, DimensionForModel("whatever"))
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider(config.EmbeddingsConfig{Provider: "word2vec"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewTEIProvider_RequiresURL(t *testing.T) {
	_, err := NewTEIProvider(TEIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func newTEIServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)
		var req struct {
			Inputs   json.RawMessage `json:"inputs"`
			Truncate bool            `json:"truncate"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		var texts []string
		if err := json.Unmarshal(req.Inputs, &texts); err != nil {
			var single string
			require.NoError(t, json.Unmarshal(req.Inputs, &single))
			texts = []string{single}
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text)), 1}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func TestTEIProvider(t *testing.T) {
	srv := newTEIServer(t)
	defer srv.Close()

	p, err := NewProvider(config.EmbeddingsConfig{Provider: "tei", BaseURL: srv.URL + "/", Model: "BAAI/bge-small-en-v1.5"})
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, 384, p.Dimension())

	ctx := context.Background()
	docs, err := p.EmbedDocuments(ctx, []string{"a", "abc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {3, 1}}, docs)

	q, err := p.EmbedQuery(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1}, q)

	_, err = p.EmbedDocuments(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedQuery(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestTEIProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewTEIProvider(TEIConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = p.EmbedQuery(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "503")
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			data[i] = item{Object: "embedding", Embedding: []float32{0.5, 0.5}, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  "text-embedding-3-small",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	p, err := NewProvider(config.EmbeddingsConfig{Provider: "openai", BaseURL: srv.URL, Model: "text-embedding-3-small"})
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimension())

	vec, err := p.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
}
