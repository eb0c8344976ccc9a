// Package logger provides structured logging utilities.
package logger

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

// Options configures New.
type Options struct {
	Level string
	// Development switches to the colored console encoder.
	Development bool
	OutputPaths []string
}

// New creates a JSON logger at level writing to stdout.
func New(level string) (*Logger, error) {
	return NewWithOptions(Options{Level: level})
}

// NewForEnv picks the console encoder when env is "development".
func NewForEnv(level, env string) (*Logger, error) {
	return NewWithOptions(Options{Level: level, Development: env == "development"})
}

// NewWithOptions creates a logger from opts.
func NewWithOptions(opts Options) (*Logger, error) {
	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	encoder := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	encoding := "json"
	if opts.Development {
		encoding = "console"
		encoder.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(opts.Level)),
		Development:      opts.Development,
		Encoding:         encoding,
		EncoderConfig:    encoder,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: l}, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named creates a child logger scoped to a component.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type ctxKey struct{}

// ToContext returns a context carrying l. Request middleware stores a logger
// annotated with the correlation id so handlers log with it.
func ToContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or fallback.
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return Global()
}

var global atomic.Pointer[Logger]

func init() {
	global.Store(NewNop())
}

// Global returns the process logger. It discards output until SetGlobal.
func Global() *Logger {
	return global.Load()
}

// SetGlobal sets the global logger instance.
func SetGlobal(l *Logger) {
	global.Store(l)
}
