package nlp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fyrsmithlabs/chatlog/internal/embeddings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("  Fix the bug. Add a feature!   Why? ")
	assert.Equal(t, []string{"Fix the bug", "Add a feature", "Why?"}, got)
	assert.Empty(t, SplitSentences("   "))
}

func TestCandidates(t *testing.T) {
	assert.Equal(t, []string{"fix", "parser", "fix parser"}, Candidates("Fix the parser", 3))
	assert.Equal(t, []string{"cache"}, Candidates("the cache, the cache", 1))
	assert.Empty(t, Candidates("it is a", 3))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 1}))
}

func TestRankSentences(t *testing.T) {
	m := NewEmbeddingModels(HashEmbedder{Dim: 4096})
	text := "The parser crashes on empty input. We refactored the cache layer. Lunch was great."

	got, err := m.RankSentences(context.Background(), text, "parser crashes", 2, 0.1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "The parser crashes on empty input", got[0].Text)
	assert.Greater(t, got[0].Score, 0.5)

	none, err := m.RankSentences(context.Background(), "", "parser", 2, 0.1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRankSentences_OrderAndLimit(t *testing.T) {
	m := NewEmbeddingModels(HashEmbedder{Dim: 4096})
	text := "Parser bug. Parser bug crash crash crash. Parser bug crash."

	got, err := m.RankSentences(context.Background(), text, "parser bug", 2, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Parser bug", got[0].Text)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
}

func TestKeywords(t *testing.T) {
	m := NewEmbeddingModels(HashEmbedder{Dim: 4096})
	text := "database migration failed. database migration rollback works"

	got, err := m.Keywords(context.Background(), text, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	seen := map[string]bool{}
	for _, kw := range got {
		assert.False(t, seen[kw.Text], "duplicate keyword %q", kw.Text)
		seen[kw.Text] = true
		assert.LessOrEqual(t, kw.Score, got[0].Score)
	}

	again, err := m.Keywords(context.Background(), text, 3)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestMMR_PrefersDiversity(t *testing.T) {
	vecs := [][]float32{{1, 0}, {1, 0}, {0, 1}}
	picked := mmr([]float64{0.9, 0.89, 0.5}, vecs, 2, Diversity)
	assert.Equal(t, []int{0, 2}, picked)
}

func TestHandle_BuildsOnce(t *testing.T) {
	var builds int32
	h := NewHandle(func() (embeddings.Provider, error) {
		atomic.AddInt32(&builds, 1)
		return HashEmbedder{Dim: 64}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Keywords(context.Background(), "concurrent first use", 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
	assert.NoError(t, h.Close())
}

func TestHandle_RemembersBuildError(t *testing.T) {
	var builds int32
	h := NewHandle(func() (embeddings.Provider, error) {
		atomic.AddInt32(&builds, 1)
		return nil, errors.New("no onnx runtime")
	})

	_, err := h.RankSentences(context.Background(), "a b.", "c", 1, 0)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = h.Get()
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
}

type closeCounter struct {
	HashEmbedder
	closes *int32
}

func (c closeCounter) Close() error {
	atomic.AddInt32(c.closes, 1)
	return nil
}

func TestHandle_CloseDuringBuild(t *testing.T) {
	var closes int32
	started := make(chan struct{})
	release := make(chan struct{})
	h := NewHandle(func() (embeddings.Provider, error) {
		close(started)
		<-release
		return closeCounter{HashEmbedder: HashEmbedder{Dim: 16}, closes: &closes}, nil
	})

	built := make(chan error, 1)
	go func() {
		_, err := h.Get()
		built <- err
	}()
	<-started

	closed := make(chan error, 1)
	go func() { closed <- h.Close() }()
	close(release)

	require.NoError(t, <-built)
	require.NoError(t, <-closed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&closes))

	_, err := h.Get()
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = h.EmbedQuery(context.Background(), "after close")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, h.Close())
	assert.Equal(t, int32(1), atomic.LoadInt32(&closes))
}

func TestHandle_CloseUnbuilt(t *testing.T) {
	var builds int32
	h := NewHandle(func() (embeddings.Provider, error) {
		atomic.AddInt32(&builds, 1)
		return HashEmbedder{Dim: 16}, nil
	})
	require.NoError(t, h.Close())

	_, err := h.Keywords(context.Background(), "never built", 1)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(0), atomic.LoadInt32(&builds))
}

func TestHandle_Embedder(t *testing.T) {
	h := NewHandle(func() (embeddings.Provider, error) { return HashEmbedder{Dim: 32}, nil })

	v, err := h.EmbedQuery(context.Background(), "parser crash")
	require.NoError(t, err)
	assert.Len(t, v, 32)

	docs, err := h.EmbedDocuments(context.Background(), []string{"a parser", "a crash"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	broken := NewHandle(func() (embeddings.Provider, error) { return nil, errors.New("offline") })
	_, err = broken.EmbedQuery(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}
