package logger_test

import (
	"context"
	"testing"

	"github.com/kiranshivaraju/intervue/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Environments(t *testing.T) {
	for _, env := range []string{"development", "test", "production", "staging"} {
		l, err := logger.New(env)
		require.NoError(t, err, env)
		assert.NotNil(t, l)
	}
}

func TestWith_RoundTrip(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := zap.New(core).With(zap.String("request_id", "req-1"))

	ctx := logger.Into(context.Background(), l)
	logger.With(ctx).Info("hello")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "hello", entry.Message)
	assert.Equal(t, "req-1", entry.ContextMap()["request_id"])
}

func TestWith_EmptyContextIsNop(t *testing.T) {
	l := logger.With(context.Background())
	require.NotNil(t, l)
	l.Info("discarded")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, logger.OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, logger.OrNop(l))
}
