package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTraceID_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := WithTraceID(context.Background(), "trace-123")

	got, ok := TraceID(ctx)
	require.True(t, ok)
	require.Equal(t, "trace-123", got)
}

func TestTraceID_AbsentWhenUnset(t *testing.T) {
	t.Parallel()
	_, ok := TraceID(context.Background())
	require.False(t, ok)
}

func TestUserID_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := WithUserID(context.Background(), "u1")

	got, ok := UserID(ctx)
	require.True(t, ok)
	require.Equal(t, "u1", got)
}
