package logging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fyrsmithlabs/chatlog/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad format", mutate: func(c *Config) { c.Format = "xml" }, wantErr: "format"},
		{name: "no outputs", mutate: func(c *Config) { c.Output.Stderr = false }, wantErr: "output"},
		{name: "zero tick", mutate: func(c *Config) { c.Sampling.Tick = 0 }, wantErr: "tick"},
		{name: "bad pattern", mutate: func(c *Config) { c.Redaction.Patterns = []string{"("} }, wantErr: "invalid redaction pattern"},
		{name: "empty field", mutate: func(c *Config) { c.Fields["env"] = "" }, wantErr: "empty value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromObservability(t *testing.T) {
	cfg, err := FromObservability(config.ObservabilityConfig{
		LogLevel:    "trace",
		LogFormat:   "console",
		ServiceName: "chatlogd",
	})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "chatlogd", cfg.Fields["service"])

	_, err = FromObservability(config.ObservabilityConfig{LogLevel: "loud"})
	assert.Error(t, err)
}

func TestLevelFromString(t *testing.T) {
	l, err := LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	l, err = LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, l)

	l, err = LevelFromString(" Warning ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	_, err = LevelFromString("nope")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
	assert.NoError(t, logger.Sync())

	bad := NewDefaultConfig()
	bad.Format = "yaml"
	_, err = NewLogger(bad, nil)
	assert.Error(t, err)
}

func TestContextFields(t *testing.T) {
	ctx := WithConversationID(context.Background(), "conv-1")
	ctx = WithProject(ctx, "chatlog")
	ctx = WithRequestID(ctx, "req-9")

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx = trace.ContextWithSpanContext(ctx, sc)

	fields := ContextFields(ctx)
	keys := make(map[string]string, len(fields))
	for _, f := range fields {
		keys[f.Key] = f.String
	}
	assert.Equal(t, "conv-1", keys["conversation.id"])
	assert.Equal(t, "chatlog", keys["conversation.project"])
	assert.Equal(t, "req-9", keys["request.id"])
	assert.Equal(t, traceID.String(), keys["trace_id"])
	assert.Equal(t, spanID.String(), keys["span_id"])

	assert.Empty(t, ContextFields(context.Background()))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Info(ctx, "stored logger")
	tl.AssertLogged(t, zapcore.InfoLevel, "stored logger")
}

func TestTestLogger_CapturesContext(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithConversationID(context.Background(), "abc")

	tl.Trace(ctx, "prompt body")
	tl.Debug(ctx, "debugging")
	tl.Warn(ctx, "slow classifier", zap.Duration("elapsed", time.Second))

	tl.AssertLogged(t, TraceLevel, "prompt body")
	tl.AssertLogged(t, zapcore.DebugLevel, "debugging")
	tl.AssertField(t, "slow classifier", "conversation.id", "abc")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "slow classifier")

	tl.Reset()
	assert.Empty(t, tl.All())
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "calling provider"}, []zapcore.Field{
		zap.String("api_key", "plain"),
		zap.String("header", "Bearer abc.def"),
		zap.String("model", "gpt-3.5-turbo"),
	})
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "[REDACTED]", out["api_key"])
	assert.Equal(t, "[REDACTED:pattern]", out["header"])
	assert.Equal(t, "gpt-3.5-turbo", out["model"])
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{})
	require.NoError(t, err)
	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, []zapcore.Field{zap.String("token", "t")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"token":"t"`)
}

func TestSecretField(t *testing.T) {
	f := Secret("api_key", config.Secret("sk-1234"))
	assert.Equal(t, "[REDACTED:7]", f.String)
}

func TestSampledCore_ErrorsAlwaysPass(t *testing.T) {
	tl := NewTestLogger()
	core := newSampledCore(tl.Underlying().Core(), SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Minute),
		Initial:    1,
		Thereafter: 1000,
	})
	zl := zap.New(core)
	for i := 0; i < 5; i++ {
		zl.Info("repeated")
		zl.Error("failure")
	}
	assert.Equal(t, 1, tl.FilterMessage("repeated").Len())
	assert.Equal(t, 5, tl.FilterMessage("failure").Len())
}
