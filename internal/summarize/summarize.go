// Package summarize produces a short title and summary for a whole
// conversation using the external text-understanding service.
package summarize

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/chatlog/internal/llm"
	"github.com/fyrsmithlabs/chatlog/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/chatlog/internal/summarize"

// MaxTitleWords bounds the length of a title.
const MaxTitleWords = 8

const (
	temperature = 0.3
	maxTokens   = 300
)

const systemPrompt = `You summarize conversations between a developer and a coding assistant.

Respond with one JSON object and nothing else:
{"title": "at most 8 words", "summary": "2 to 4 sentences"}

The summary should highlight the concrete actions taken: code written or changed, bugs fixed, decisions made.`

// Summary is a conversation's title and summary.
type Summary struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Placeholders returned instead of an error.
var (
	EmptyConversation = Summary{
		Title:   "Empty Conversation",
		Summary: "No messages were provided for this conversation.",
	}
	Unavailable = Summary{
		Title:   "Conversation Summary Unavailable",
		Summary: "An automatic summary could not be generated for this conversation.",
	}
)

// Summarizer summarizes conversations. A nil client always yields Unavailable.
type Summarizer struct {
	client llm.Client
	logger *logging.Logger
	tracer trace.Tracer
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Summarizer) { s.logger = l }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Summarizer) { s.tracer = t }
}

// New creates a Summarizer.
func New(client llm.Client, opts ...Option) *Summarizer {
	s := &Summarizer{
		client: client,
		logger: logging.Nop(),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize flattens contents in order and asks for a summary. It never
// fails; problems degrade to a placeholder.
func (s *Summarizer) Summarize(ctx context.Context, contents []string) Summary {
	ctx, span := s.tracer.Start(ctx, "summarize.Summarize",
		trace.WithAttributes(attribute.Int("summarize.messages", len(contents))))
	defer span.End()

	blob := strings.TrimSpace(strings.Join(contents, "\n"))
	if blob == "" {
		return EmptyConversation
	}
	if s.client == nil {
		s.logger.Debug(ctx, "no summarization backend configured")
		return Unavailable
	}

	out, err := s.client.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      "Conversation:\n" + blob,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn(ctx, "conversation summary request failed", zap.Error(err))
		return Unavailable
	}

	parsed, err := llm.ParseJSON[Summary](out)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn(ctx, "conversation summary unparseable", zap.Error(err))
		return Unavailable
	}

	parsed.Title = TruncateWords(strings.TrimSpace(parsed.Title), MaxTitleWords)
	parsed.Summary = strings.TrimSpace(parsed.Summary)
	if parsed.Title == "" && parsed.Summary == "" {
		s.logger.Warn(ctx, "conversation summary empty")
		return Unavailable
	}
	if parsed.Title == "" {
		parsed.Title = Unavailable.Title
	}
	if parsed.Summary == "" {
		parsed.Summary = Unavailable.Summary
	}
	return parsed
}

// TruncateWords keeps the first n whitespace-separated words of s.
func TruncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ")
}
