package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewWithOptions_WritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l, err := NewWithOptions(Options{Level: "warn", OutputPaths: []string{path}})
	require.NoError(t, err)

	l.Named("rag").Info("dropped")
	l.Named("rag").Warn("kept", zap.String("session_id", "s-1"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"logger":"rag"`)
	assert.Contains(t, out, `"session_id":"s-1"`)
}

func TestContextLogger(t *testing.T) {
	fallback := NewNop()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	scoped := NewNop().With(zap.String("correlation_id", "abc"))
	ctx := ToContext(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx, fallback))

	assert.NotNil(t, FromContext(context.Background(), nil))
}

func TestGlobal(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { SetGlobal(prev) })

	l := NewNop()
	SetGlobal(l)
	assert.Same(t, l, Global())
}
