package nlp

import (
	"context"
	"hash/fnv"
	"strings"
)

// HashEmbedder is a deterministic bag-of-words embedder for tests. Texts that
// share words have positive cosine similarity; disjoint texts score 0.
type HashEmbedder struct {
	Dim int
}

func (h HashEmbedder) vector(text string) []float32 {
	dim := h.Dim
	if dim <= 0 {
		dim = 256
	}
	v := make([]float32, dim)
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if stopWords[w] {
			continue
		}
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		v[f.Sum32()%uint32(dim)]++
	}
	return v
}

func (h HashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.vector(text), nil
}

func (h HashEmbedder) Dimension() int { return h.Dim }

func (h HashEmbedder) Close() error { return nil }
