// Package nlp provides the local similarity and keyword models used to
// classify and enrich messages without an external service.
package nlp

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrUnavailable is returned when the underlying embedding model could not be built.
var ErrUnavailable = errors.New("nlp: models unavailable")

// Scored is a piece of text with a relevance score in [-1, 1].
type Scored struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Models ranks text against concepts and extracts keywords.
// Implementations are deterministic for identical input and model.
type Models interface {
	// RankSentences returns up to topN sentences of text whose similarity to
	// concept is at least threshold, best first.
	RankSentences(ctx context.Context, text, concept string, topN int, threshold float64) ([]Scored, error)
	// Keywords returns up to topN diverse key phrases of text, best first.
	Keywords(ctx context.Context, text string, topN int) ([]Scored, error)
}

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// SplitSentences splits on terminal punctuation followed by whitespace and
// drops empty fragments.
func SplitSentences(text string) []string {
	parts := sentenceBoundary.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
