// Package enrich derives the per-message enrichment record: changelog
// category, evidence sentences, keywords, a rendered diff and an impact line.
//
// Every helper is isolated. A failing or panicking helper produces an empty
// list and never affects the others.
package enrich

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/fyrsmithlabs/chatlog/internal/classify"
	"github.com/fyrsmithlabs/chatlog/internal/logging"
	"github.com/fyrsmithlabs/chatlog/internal/nlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/chatlog/internal/enrich"

const (
	MaxSentences      = 2
	MaxKeywords       = 6
	DescriptionLength = 280
)

// Input is what the aggregator needs about one classified message.
type Input struct {
	Type        classify.Type
	Content     string
	Before      *string
	After       *string
	CodeChanges *string
}

// Record is the enrichment attached to a message. Slices are never nil.
type Record struct {
	ConventionalCategory Category `json:"conventional_category"`
	FeatureSentences     []string `json:"feature_sentences"`
	BugfixSentences      []string `json:"bugfix_sentences"`
	Keywords             []string `json:"keywords"`
	FormattedDiff        string   `json:"formatted_diff"`
	Impact               string   `json:"impact"`
}

// Default returns the enrichment used when nothing could be derived for t.
func Default(t classify.Type) Record {
	return Record{
		ConventionalCategory: CategoryFor(t),
		FeatureSentences:     []string{},
		BugfixSentences:      []string{},
		Keywords:             []string{},
		FormattedDiff:        NoCodeChanges,
		Impact:               Impact(HelperTag(t)),
	}
}

// Aggregator builds Records. It is safe for concurrent use.
type Aggregator struct {
	models    nlp.Models
	threshold float64
	logger    *logging.Logger
	failures  metric.Int64Counter
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithThreshold sets the minimum similarity for evidence sentences.
func WithThreshold(t float64) Option {
	return func(a *Aggregator) { a.threshold = t }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// WithMeter overrides the global meter.
func WithMeter(m metric.Meter) Option {
	return func(a *Aggregator) { a.failures = newFailureCounter(m) }
}

// New creates an Aggregator. A nil models yields empty evidence and keywords.
func New(models nlp.Models, opts ...Option) *Aggregator {
	a := &Aggregator{
		models:    models,
		threshold: classify.DefaultThreshold,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.failures == nil {
		a.failures = newFailureCounter(otel.Meter(instrumentationName))
	}
	return a
}

func newFailureCounter(m metric.Meter) metric.Int64Counter {
	c, err := m.Int64Counter(
		"chatlog.enrich.helper_failures_total",
		metric.WithDescription("Enrichment helpers that failed and fell back to empty output"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		otel.Handle(err)
	}
	return c
}

// Enrich never fails.
func (a *Aggregator) Enrich(ctx context.Context, in Input) Record {
	rec := Default(in.Type)

	rec.FeatureSentences = a.guard(ctx, "feature_sentences", func() ([]nlp.Scored, error) {
		return a.models.RankSentences(ctx, in.Content, classify.FeatureConcept, MaxSentences, a.threshold)
	})
	rec.BugfixSentences = a.guard(ctx, "bugfix_sentences", func() ([]nlp.Scored, error) {
		return a.models.RankSentences(ctx, in.Content, classify.BugfixConcept, MaxSentences, a.threshold)
	})
	rec.Keywords = a.guard(ctx, "keywords", func() ([]nlp.Scored, error) {
		return a.models.Keywords(ctx, keywordText(in.Content), MaxKeywords)
	})

	rec.FormattedDiff = FormatCode(in.Before, in.After, in.CodeChanges)
	return rec
}

// guard runs fn, converting errors and panics into an empty list.
func (a *Aggregator) guard(ctx context.Context, helper string, fn func() ([]nlp.Scored, error)) (out []string) {
	out = []string{}
	if a.models == nil {
		return out
	}
	defer func() {
		if r := recover(); r != nil {
			a.fail(ctx, helper, fmt.Errorf("panic: %v", r))
			out = []string{}
		}
	}()

	scored, err := fn()
	if err != nil {
		a.fail(ctx, helper, err)
		return out
	}
	for _, s := range scored {
		out = append(out, s.Text)
	}
	return out
}

func (a *Aggregator) fail(ctx context.Context, helper string, err error) {
	a.logger.Debug(ctx, "enrichment helper failed", zap.String("helper", helper), zap.Error(err))
	if a.failures != nil {
		a.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("helper", helper)))
	}
}

// Description returns the first DescriptionLength characters of content.
func Description(content string) string {
	if utf8.RuneCountInString(content) <= DescriptionLength {
		return content
	}
	return string([]rune(content)[:DescriptionLength])
}

// keywordText joins content with its description. The description is
// already a prefix of content, so it only weighs the opening more heavily.
func keywordText(content string) string {
	desc := Description(content)
	if desc == content {
		return content
	}
	return desc + "\n" + content
}
