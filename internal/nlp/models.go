package nlp

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/chatlog/internal/embeddings"
)

// Diversity weights novelty against relevance when picking keywords.
const Diversity = 0.4

// maxCandidates bounds how many n-grams are embedded per message.
const maxCandidates = 256

// EmbeddingModels implements Models on top of an embeddings.Embedder.
type EmbeddingModels struct {
	embedder embeddings.Embedder

	// concept vectors are memoized; the concept set is small and fixed.
	mu       sync.RWMutex
	concepts map[string][]float32
}

// NewEmbeddingModels wraps e.
func NewEmbeddingModels(e embeddings.Embedder) *EmbeddingModels {
	return &EmbeddingModels{embedder: e, concepts: make(map[string][]float32)}
}

func (m *EmbeddingModels) conceptVector(ctx context.Context, concept string) ([]float32, error) {
	m.mu.RLock()
	v, ok := m.concepts[concept]
	m.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := m.embedder.EmbedQuery(ctx, concept)
	if err != nil {
		return nil, fmt.Errorf("embedding concept: %w", err)
	}
	m.mu.Lock()
	m.concepts[concept] = v
	m.mu.Unlock()
	return v, nil
}

// RankSentences scores each sentence of text against concept by cosine similarity.
func (m *EmbeddingModels) RankSentences(ctx context.Context, text, concept string, topN int, threshold float64) ([]Scored, error) {
	sentences := SplitSentences(text)
	if len(sentences) == 0 || topN <= 0 {
		return nil, nil
	}

	target, err := m.conceptVector(ctx, concept)
	if err != nil {
		return nil, err
	}
	vectors, err := m.embedder.EmbedDocuments(ctx, sentences)
	if err != nil {
		return nil, fmt.Errorf("embedding sentences: %w", err)
	}
	if len(vectors) != len(sentences) {
		return nil, fmt.Errorf("embedding sentences: got %d vectors for %d sentences", len(vectors), len(sentences))
	}

	scored := make([]Scored, 0, len(sentences))
	for i, s := range sentences {
		score := Cosine(vectors[i], target)
		if score >= threshold {
			scored = append(scored, Scored{Text: s, Score: score})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topN {
		scored = scored[:topN]
	}
	return scored, nil
}

// Keywords ranks 1-3 word candidate phrases by similarity to the whole text
// and picks a diverse subset with maximal marginal relevance.
func (m *EmbeddingModels) Keywords(ctx context.Context, text string, topN int) ([]Scored, error) {
	candidates := Candidates(text, 3)
	if len(candidates) == 0 || topN <= 0 {
		return nil, nil
	}
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	docVecs, err := m.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding document: %w", err)
	}
	if len(docVecs) == 0 {
		return nil, fmt.Errorf("embedding document: no vector returned")
	}
	candVecs, err := m.embedder.EmbedDocuments(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("embedding candidates: %w", err)
	}
	if len(candVecs) != len(candidates) {
		return nil, fmt.Errorf("embedding candidates: got %d vectors for %d phrases", len(candVecs), len(candidates))
	}

	docSim := make([]float64, len(candidates))
	for i := range candidates {
		docSim[i] = Cosine(candVecs[i], docVecs[0])
	}

	picked := mmr(docSim, candVecs, topN, Diversity)
	out := make([]Scored, len(picked))
	for i, idx := range picked {
		out[i] = Scored{Text: candidates[idx], Score: docSim[idx]}
	}
	return out, nil
}

// mmr selects up to n indices balancing relevance (docSim) against
// similarity to already selected vectors.
func mmr(docSim []float64, vecs [][]float32, n int, diversity float64) []int {
	if n > len(docSim) {
		n = len(docSim)
	}
	best := 0
	for i := range docSim {
		if docSim[i] > docSim[best] {
			best = i
		}
	}
	selected := []int{best}
	used := map[int]bool{best: true}

	for len(selected) < n {
		pick, pickScore := -1, math.Inf(-1)
		for i := range docSim {
			if used[i] {
				continue
			}
			redundancy := math.Inf(-1)
			for _, s := range selected {
				if sim := Cosine(vecs[i], vecs[s]); sim > redundancy {
					redundancy = sim
				}
			}
			score := (1-diversity)*docSim[i] - diversity*redundancy
			if score > pickScore {
				pick, pickScore = i, score
			}
		}
		if pick < 0 {
			break
		}
		selected = append(selected, pick)
		used[pick] = true
	}
	return selected
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero
// or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ Models = (*EmbeddingModels)(nil)
