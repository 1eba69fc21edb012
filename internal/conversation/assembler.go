package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/chatlog/internal/classify"
	"github.com/fyrsmithlabs/chatlog/internal/enrich"
	"github.com/fyrsmithlabs/chatlog/internal/logging"
	"github.com/fyrsmithlabs/chatlog/internal/summarize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/fyrsmithlabs/chatlog/internal/conversation"

// ErrCredentialRequired is returned before any work starts when the external
// service is required but not configured.
var ErrCredentialRequired = errors.New("conversation: external service credential required")

// DefaultWorkers bounds AssembleBatch when workers <= 0.
const DefaultWorkers = 4

// Assembler turns raw messages into Records. It holds no per-conversation
// state and is safe for concurrent use.
type Assembler struct {
	summarizer      *summarize.Summarizer
	classifier      *classify.Classifier
	aggregator      *enrich.Aggregator
	requireExternal bool

	logger *logging.Logger
	tracer trace.Tracer
	now    func() time.Time

	assembled metric.Int64Counter
	failed    metric.Int64Counter
	duration  metric.Float64Histogram
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithRequireExternal makes a missing external client fatal.
func WithRequireExternal(required bool) Option {
	return func(a *Assembler) { a.requireExternal = required }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(a *Assembler) { a.tracer = t }
}

// WithMeter overrides the global meter.
func WithMeter(m metric.Meter) Option {
	return func(a *Assembler) { a.instrument(m) }
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// NewAssembler wires the pipeline stages. Nil stages fall back to their
// local-only defaults.
func NewAssembler(s *summarize.Summarizer, c *classify.Classifier, agg *enrich.Aggregator, opts ...Option) *Assembler {
	if s == nil {
		s = summarize.New(nil)
	}
	if c == nil {
		c = classify.New(nil, classify.StrategyLocalOnly)
	}
	if agg == nil {
		agg = enrich.New(nil)
	}
	a := &Assembler{
		summarizer: s,
		classifier: c,
		aggregator: agg,
		logger:     logging.Nop(),
		tracer:     otel.Tracer(instrumentationName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.assembled == nil {
		a.instrument(otel.Meter(instrumentationName))
	}
	return a
}

func (a *Assembler) instrument(m metric.Meter) {
	var err error
	a.assembled, err = m.Int64Counter(
		"chatlog.conversation.assembled_total",
		metric.WithDescription("Conversations assembled"),
		metric.WithUnit("{conversation}"),
	)
	if err != nil {
		otel.Handle(err)
	}
	a.failed, err = m.Int64Counter(
		"chatlog.conversation.message_failures_total",
		metric.WithDescription("Messages that failed processing and were marked as errors"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		otel.Handle(err)
	}
	a.duration, err = m.Float64Histogram(
		"chatlog.conversation.duration_seconds",
		metric.WithDescription("Time to assemble one conversation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}
}

// CheckPolicy reports ErrCredentialRequired when the external service is
// required and unavailable.
func (a *Assembler) CheckPolicy() error {
	if a.requireExternal && !a.classifier.External() {
		return ErrCredentialRequired
	}
	return nil
}

// Assemble processes one conversation.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Record, error) {
	if err := a.CheckPolicy(); err != nil {
		return nil, err
	}
	start := a.now()

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	project := req.Project
	if project == "" {
		project = DefaultProject
	}
	ctx = logging.WithConversationID(ctx, id)
	ctx = logging.WithProject(ctx, project)

	ctx, span := a.tracer.Start(ctx, "conversation.Assemble",
		trace.WithAttributes(
			attribute.String("conversation.id", id),
			attribute.String("conversation.project", project),
			attribute.Int("conversation.messages", len(req.Messages)),
		))
	defer span.End()

	a.transition(ctx, span, StateReceived)

	a.transition(ctx, span, StateSummarizing)
	contents := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		contents[i] = m.Content
	}
	summary := a.summarizer.Summarize(ctx, contents)

	a.transition(ctx, span, StateClassifying)
	messages := make([]Message, len(req.Messages))
	for i, raw := range req.Messages {
		messages[i] = a.message(ctx, i, raw)
	}

	now := a.now()
	rec := &Record{
		ID:               id,
		ConversationID:   id,
		ProjectName:      project,
		Title:            summary.Title,
		Summary:          summary.Summary,
		Messages:         messages,
		MessageCount:     len(messages),
		Participants:     Participants(req.Messages),
		FilesMentioned:   FilesMentioned(req.Messages),
		CreatedAt:        now,
		UpdatedAt:        now,
		WorkspaceChanges: req.WorkspaceChanges,
	}

	a.transition(ctx, span, StateAssembled)
	if a.assembled != nil {
		a.assembled.Add(ctx, 1, metric.WithAttributes(attribute.String("project", project)))
	}
	if a.duration != nil {
		a.duration.Record(ctx, a.now().Sub(start).Seconds())
	}
	a.logger.Info(ctx, "conversation assembled",
		zap.Int("message_count", rec.MessageCount),
		zap.String("title", rec.Title),
	)
	return rec, nil
}

func (a *Assembler) transition(ctx context.Context, span trace.Span, s State) {
	span.AddEvent(string(s))
	a.logger.Debug(ctx, "conversation state", zap.String("state", string(s)))
}

// message classifies and enriches one message. A panic marks the message as
// an error without affecting its siblings.
func (a *Assembler) message(ctx context.Context, i int, raw RawMessage) (msg Message) {
	ctx, span := a.tracer.Start(ctx, "conversation.Message",
		trace.WithAttributes(attribute.Int("message.index", i)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.logger.Error(ctx, "message processing failed", zap.Int("index", i), zap.Error(err))
			if a.failed != nil {
				a.failed.Add(ctx, 1)
			}
			msg = failedMessage(raw)
		}
	}()

	res := a.classifier.Classify(ctx, raw.Content)
	rec := a.aggregator.Enrich(ctx, enrich.Input{
		Type:        res.Type,
		Content:     raw.Content,
		Before:      res.Before,
		After:       res.After,
		CodeChanges: res.CodeChanges,
	})

	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}
	span.SetAttributes(attribute.String("message.type", string(res.Type)))
	return Message{
		Role:        roleOf(raw),
		Content:     raw.Content,
		Timestamp:   raw.Timestamp,
		Type:        res.Type,
		Tags:        tags,
		AIModel:     res.SourceModel,
		BeforeCode:  res.Before,
		AfterCode:   res.After,
		CodeChanges: res.CodeChanges,
		Enrichment:  rec,
	}
}

func failedMessage(raw RawMessage) Message {
	return Message{
		Role:       roleOf(raw),
		Content:    raw.Content,
		Timestamp:  raw.Timestamp,
		Type:       classify.TypeError,
		Tags:       []string{},
		AIModel:    classify.NoSourceModel,
		Enrichment: enrich.Default(classify.TypeError),
	}
}

func roleOf(raw RawMessage) Role {
	if raw.Role == "" {
		return RoleUnknown
	}
	return raw.Role
}

// AssembleBatch assembles independent conversations on up to workers
// goroutines. Records are returned in the order of reqs. The first error
// cancels the remaining work.
func (a *Assembler) AssembleBatch(ctx context.Context, reqs []Request, workers int) ([]*Record, error) {
	if err := a.CheckPolicy(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	records := make([]*Record, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := a.Assemble(gctx, req)
			if err != nil {
				return fmt.Errorf("conversation %d: %w", i, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
