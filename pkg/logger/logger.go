// Package logger provides structured logging using zap.
//
// A logger is built once with New and carried through context.Context. There
// is no package-level logger: code that receives a context without one logs
// to a no-op logger, which keeps components testable in isolation.
package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DevelopmentEnvironment selects a human-readable console encoder.
	DevelopmentEnvironment = "development"

	// ProductionEnvironment selects a JSON encoder.
	ProductionEnvironment = "production"
)

// Options controls how New builds a logger.
type Options struct {
	// Environment is DevelopmentEnvironment or ProductionEnvironment.
	// Anything else is treated as production.
	Environment string
	// Debug enables debug level. Otherwise the logger starts at info.
	Debug bool
	// File, when set, is an additional output next to stderr.
	File string
}

// New builds a zap logger from opts.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Environment == DevelopmentEnvironment {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	// zap opens file sinks in append mode
	if opts.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("could not build logger: %w", err)
	}

	return l, nil
}

type key struct{}

// nop is returned by Get when ctx carries no logger.
var nop = zap.NewNop() //nolint: gochecknoglobals

// Get retrieves the logger attached to ctx, or a no-op logger.
func Get(ctx context.Context) *zap.Logger {
	if l, _ := ctx.Value(key{}).(*zap.Logger); l != nil {
		return l
	}

	return nop
}

// WithLogger returns a copy of ctx carrying l.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, key{}, l)
}

// WithFields returns a copy of ctx whose logger includes fields.
func WithFields(ctx context.Context, fields ...zapcore.Field) context.Context {
	return WithLogger(ctx, Get(ctx).With(fields...))
}

// IsDebug reports whether the logger in ctx is enabled for debug level.
func IsDebug(ctx context.Context) bool {
	return Get(ctx).Core().Enabled(zap.DebugLevel)
}

// Debug logs a message at debug level with the given fields.
func Debug(ctx context.Context, msg string, fields ...zapcore.Field) {
	Get(ctx).Debug(msg, fields...)
}

// Info logs a message at info level with the given fields.
func Info(ctx context.Context, msg string, fields ...zapcore.Field) {
	Get(ctx).Info(msg, fields...)
}

// Warn logs a message at warn level with the given fields.
func Warn(ctx context.Context, msg string, fields ...zapcore.Field) {
	Get(ctx).Warn(msg, fields...)
}

// Error logs a message at error level with the given fields.
func Error(ctx context.Context, msg string, fields ...zapcore.Field) {
	Get(ctx).Error(msg, fields...)
}

// Fatal logs a message at fatal level with the given fields.
func Fatal(ctx context.Context, msg string, fields ...zapcore.Field) {
	Get(ctx).Fatal(msg, fields...)
}
