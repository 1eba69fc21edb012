package summarize

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/chatlog/internal/llm"
	"github.com/fyrsmithlabs/chatlog/internal/logging"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

type stubClient struct {
	out  string
	err  error
	last llm.Request
}

func (s *stubClient) Complete(_ context.Context, req llm.Request) (string, error) {
	s.last = req
	return s.out, s.err
}

func (s *stubClient) Model() string { return "stub" }

func TestSummarize_Empty(t *testing.T) {
	client := &stubClient{out: `{"title":"x","summary":"y"}`}
	s := New(client)

	assert.Equal(t, EmptyConversation, s.Summarize(context.Background(), nil))
	assert.Equal(t, EmptyConversation, s.Summarize(context.Background(), []string{"", "  "}))
	assert.Empty(t, client.last.Prompt)
}

func TestSummarize_NoClient(t *testing.T) {
	s := New(nil)
	assert.Equal(t, Unavailable, s.Summarize(context.Background(), []string{"hello"}))
}

func TestSummarize_Success(t *testing.T) {
	client := &stubClient{out: "Here you go: {\"title\": \"Fix parser crash on empty input files today\", \"summary\": \"The parser crashed. A guard was added.\"}"}
	s := New(client)

	got := s.Summarize(context.Background(), []string{"The parser crashes", "Added a guard"})
	assert.Equal(t, "Fix parser crash on empty input files today", got.Title)
	assert.Equal(t, "The parser crashed. A guard was added.", got.Summary)

	assert.Equal(t, "Conversation:\nThe parser crashes\nAdded a guard", client.last.Prompt)
	assert.InDelta(t, 0.3, client.last.Temperature, 1e-9)
	assert.Equal(t, 300, client.last.MaxTokens)
}

func TestSummarize_TitleTruncated(t *testing.T) {
	client := &stubClient{out: `{"title": "one two three four five six seven eight nine ten", "summary": "ok."}`}
	got := New(client).Summarize(context.Background(), []string{"x"})
	assert.Equal(t, "one two three four five six seven eight", got.Title)
}

func TestSummarize_Failures(t *testing.T) {
	tests := []struct {
		name   string
		client *stubClient
		msg    string
	}{
		{"transport", &stubClient{err: errors.New("timeout")}, "request failed"},
		{"malformed", &stubClient{out: "not json at all"}, "unparseable"},
		{"empty fields", &stubClient{out: `{"title": "", "summary": ""}`}, "summary empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := logging.NewTestLogger()
			got := New(tt.client, WithLogger(log.Logger)).Summarize(context.Background(), []string{"hi"})
			assert.Equal(t, Unavailable, got)
			log.AssertLogged(t, zapcore.WarnLevel, tt.msg)
		})
	}
}

func TestSummarize_MissingFieldFilled(t *testing.T) {
	client := &stubClient{out: `{"title": "Short title"}`}
	got := New(client).Summarize(context.Background(), []string{"x"})
	assert.Equal(t, "Short title", got.Title)
	assert.Equal(t, Unavailable.Summary, got.Summary)
}

func TestTruncateWords(t *testing.T) {
	assert.Equal(t, "a b", TruncateWords("  a   b ", 8))
	assert.Equal(t, "a b", TruncateWords("a b c", 2))
	assert.Equal(t, "", TruncateWords("", 3))
}
