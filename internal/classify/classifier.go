package classify

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/chatlog/internal/codeblock"
	"github.com/fyrsmithlabs/chatlog/internal/llm"
	"github.com/fyrsmithlabs/chatlog/internal/logging"
	"github.com/fyrsmithlabs/chatlog/internal/nlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/chatlog/internal/classify"

// evidenceTopN is how many sentences per concept the local pass keeps.
const evidenceTopN = 3

var interrogative = regexp.MustCompile(`(?i)^(how|what|why|when|where|which|who|whom|whose|can|could|should|would|is|are|does|did|will)\b`)

// Result is the outcome of classifying one message.
type Result struct {
	Type Type
	Tags []string

	Before      *string
	After       *string
	CodeChanges *string

	// SourceModel names the external backend consulted, or NoSourceModel.
	SourceModel string

	FeatureEvidence []nlp.Scored
	BugfixEvidence  []nlp.Scored
}

// Classifier assigns a Type and tags to message text.
// It is safe for concurrent use.
type Classifier struct {
	strategy  Strategy
	models    nlp.Models
	client    llm.Client
	threshold float64

	logger  *logging.Logger
	tracer  trace.Tracer
	results metric.Int64Counter
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLLM sets the external client. A nil client means local only.
func WithLLM(c llm.Client) Option {
	return func(cl *Classifier) { cl.client = c }
}

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) Option {
	return func(cl *Classifier) { cl.threshold = t }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(cl *Classifier) { cl.logger = l }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(cl *Classifier) { cl.tracer = t }
}

// WithMeter overrides the global meter.
func WithMeter(m metric.Meter) Option {
	return func(cl *Classifier) { cl.results = newResultsCounter(m) }
}

// New creates a Classifier. models may be nil, in which case the local pass
// finds no similarity evidence.
func New(models nlp.Models, strategy Strategy, opts ...Option) *Classifier {
	c := &Classifier{
		strategy:  strategy,
		models:    models,
		threshold: DefaultThreshold,
		logger:    logging.Nop(),
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.results == nil {
		c.results = newResultsCounter(otel.Meter(instrumentationName))
	}
	return c
}

func newResultsCounter(m metric.Meter) metric.Int64Counter {
	counter, err := m.Int64Counter(
		"chatlog.classify.results_total",
		metric.WithDescription("Classified messages by type and backend"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		otel.Handle(err)
	}
	return counter
}

// Strategy returns the configured strategy.
func (c *Classifier) Strategy() Strategy { return c.strategy }

// External reports whether the external service will be consulted.
func (c *Classifier) External() bool {
	return c.strategy == StrategyLocalThenExternal && c.client != nil
}

// Classify never fails. Backend failures show up as TypeError or
// TypeParsingFailed with the local tags preserved.
func (c *Classifier) Classify(ctx context.Context, text string) Result {
	ctx, span := c.tracer.Start(ctx, "classify.Classify",
		trace.WithAttributes(
			attribute.String("classify.strategy", c.strategy.String()),
			attribute.Int("classify.content_length", len(text)),
		))
	defer span.End()

	res := c.local(ctx, text)
	backend := "local"

	if c.External() && strings.TrimSpace(text) != "" {
		backend = "external"
		c.external(ctx, text, &res)
		if res.Type == TypeError || res.Type == TypeParsingFailed {
			span.SetStatus(codes.Error, string(res.Type))
		}
	}

	span.SetAttributes(
		attribute.String("classify.type", string(res.Type)),
		attribute.Int("classify.tags", len(res.Tags)),
	)
	if c.results != nil {
		c.results.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", string(res.Type)),
			attribute.String("backend", backend),
		))
	}
	c.logger.Debug(ctx, "message classified",
		zap.String("type", string(res.Type)),
		zap.Strings("tags", res.Tags),
		zap.String("backend", backend),
	)
	return res
}

// local runs the lexical and similarity checks. It never fails.
func (c *Classifier) local(ctx context.Context, text string) Result {
	res := Result{SourceModel: NoSourceModel}

	ex := codeblock.Extract(text)
	res.Before, res.After, res.CodeChanges = ex.Before, ex.After, ex.All

	res.FeatureEvidence = c.evidence(ctx, text, FeatureConcept)
	res.BugfixEvidence = c.evidence(ctx, text, BugfixConcept)

	var tags []string
	question := IsQuestion(text)
	if question {
		tags = append(tags, TagQuestion)
	}
	if len(res.FeatureEvidence) > 0 {
		tags = append(tags, TagFunctionModify)
	}
	if len(res.BugfixEvidence) > 0 {
		tags = append(tags, TagBugFixed)
	}
	if len(tags) == 0 {
		tags = append(tags, TagDiscussion)
	}
	res.Tags = tags

	hasEvidence := len(res.FeatureEvidence) > 0 || len(res.BugfixEvidence) > 0
	switch {
	case question:
		res.Type = TypeQuestion
	case hasEvidence && ex.Found():
		res.Type = TypeCodeChange
	default:
		res.Type = TypeDiscussion
	}
	return res
}

func (c *Classifier) evidence(ctx context.Context, text, concept string) []nlp.Scored {
	if c.models == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	scored, err := c.models.RankSentences(ctx, text, concept, evidenceTopN, c.threshold)
	if err != nil {
		c.logger.Debug(ctx, "local similarity unavailable", zap.Error(err))
		return nil
	}
	return scored
}

// external asks the service and merges its answer into res.
func (c *Classifier) external(ctx context.Context, text string, res *Result) {
	res.SourceModel = c.client.Model()

	out, err := c.client.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      text,
		Temperature: externalTemperature,
		MaxTokens:   externalMaxTokens,
	})
	if err != nil {
		res.Type = TypeError
		level := c.logger.Warn
		if errors.Is(err, context.Canceled) {
			level = c.logger.Debug
		}
		level(ctx, "external classification failed", zap.Error(err))
		return
	}
	c.logger.Trace(ctx, "external classification response", zap.String("response", out))

	r, err := llm.ParseJSON[reply](out)
	if err != nil {
		res.Type = TypeParsingFailed
		c.logger.Warn(ctx, "external classification unparseable", zap.Error(err))
		return
	}

	res.Type = NormalizeType(r.Type)
	res.Tags = MergeTags(res.Tags, r.Tags)
	if res.Before == nil && res.After == nil {
		res.Before = nonEmpty(r.BeforeCode)
		res.After = nonEmpty(r.AfterCode)
	}
	if res.CodeChanges == nil {
		res.CodeChanges = nonEmpty(r.CodeChanges)
	}
}

// IsQuestion reports a trailing "?" or a leading interrogative word.
func IsQuestion(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	return strings.HasSuffix(t, "?") || interrogative.MatchString(t)
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
