package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/store"
	"github.com/fyrsmithlabs/chatlog/internal/telemetry"
)

func TestMetrics_RecordInvocation(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	m := NewMetrics(tt.Meter("test"))
	ctx := context.Background()

	m.RecordInvocation(ctx, "list_projects", 100*time.Millisecond, nil)
	m.RecordInvocation(ctx, "list_projects", 50*time.Millisecond, errors.New("query is required"))

	assert.Equal(t, int64(2), tt.CounterValue(t, "chatlog.mcp.tool.invocations_total"))
	assert.Equal(t, int64(1), tt.CounterValue(t, "chatlog.mcp.tool.errors_total"))
}

func TestMetrics_NilInstruments(t *testing.T) {
	m := &Metrics{}
	assert.NotPanics(t, func() {
		m.RecordInvocation(context.Background(), "x", time.Millisecond, errors.New("boom"))
		m.active(context.Background(), "x", 1)
	})
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{conversation.ErrCredentialRequired, "credential_required"},
		{fmt.Errorf("search: %w", store.ErrIndexDisabled), "index_disabled"},
		{store.ErrNotFound, "not_found"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("messages are required"), "validation_error"},
		{errors.New("querying index: broken"), "storage_error"},
		{errors.New("disk full"), "internal_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, categorizeError(tt.err), "%v", tt.err)
	}
}
