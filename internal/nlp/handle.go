package nlp

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/chatlog/internal/embeddings"
)

// Handle builds the embedding-backed models on first use and shares them
// between goroutines. The build runs once; its error is remembered and
// returned to every later caller. After Close the handle reports
// ErrUnavailable.
type Handle struct {
	build func() (embeddings.Provider, error)

	// mu guards everything below, including the build itself.
	mu       sync.Mutex
	built    bool
	closed   bool
	provider embeddings.Provider
	models   *EmbeddingModels
	err      error
}

// NewHandle returns a handle that calls build lazily.
func NewHandle(build func() (embeddings.Provider, error)) *Handle {
	return &Handle{build: build}
}

// Get returns the shared models, building them if needed.
func (h *Handle) Get() (Models, error) {
	m, _, err := h.load()
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (h *Handle) load() (*EmbeddingModels, embeddings.Provider, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, nil, fmt.Errorf("%w: handle closed", ErrUnavailable)
	}
	if !h.built {
		h.built = true
		p, err := h.build()
		if err != nil {
			h.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		} else {
			h.provider = p
			h.models = NewEmbeddingModels(p)
		}
	}
	if h.err != nil {
		return nil, nil, h.err
	}
	return h.models, h.provider, nil
}

// RankSentences delegates to the built models.
func (h *Handle) RankSentences(ctx context.Context, text, concept string, topN int, threshold float64) ([]Scored, error) {
	m, err := h.Get()
	if err != nil {
		return nil, err
	}
	return m.RankSentences(ctx, text, concept, topN, threshold)
}

// Keywords delegates to the built models.
func (h *Handle) Keywords(ctx context.Context, text string, topN int) ([]Scored, error) {
	m, err := h.Get()
	if err != nil {
		return nil, err
	}
	return m.Keywords(ctx, text, topN)
}

// EmbedDocuments embeds texts with the shared provider.
func (h *Handle) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	_, p, err := h.load()
	if err != nil {
		return nil, err
	}
	return p.EmbedDocuments(ctx, texts)
}

// EmbedQuery embeds text with the shared provider.
func (h *Handle) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	_, p, err := h.load()
	if err != nil {
		return nil, err
	}
	return p.EmbedQuery(ctx, text)
}

// Close releases the provider if it was built. It waits for a build in
// progress and is safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	if h.provider == nil {
		return nil
	}
	p := h.provider
	h.provider, h.models = nil, nil
	return p.Close()
}

var (
	_ Models              = (*Handle)(nil)
	_ embeddings.Embedder = (*Handle)(nil)
)
