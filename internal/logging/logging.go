// Package logging builds the zap loggers used by the runner and the CLI.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// NewLoggerConfig returns the console config shared by every logger:
// colored levels, ISO8601 timestamps and no stack traces.
func NewLoggerConfig() zap.Config {
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a named Info+ logger.
func NewLogger(name string) *zap.SugaredLogger {
	return build(NewLoggerConfig(), name)
}

// NewDebugLogger returns a named Debug+ logger.
func NewDebugLogger(name string) *zap.SugaredLogger {
	cfg := NewLoggerConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	return build(cfg, name)
}

// NewLevelLogger parses level ("debug", "info", "warn", "error") and
// returns a named logger at that level.
func NewLevelLogger(name, level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := NewLoggerConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return build(cfg, name), nil
}

// NewNopLogger discards everything.
func NewNopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// NewTestLogger returns a Debug+ logger that writes through tb.
func NewTestLogger(tb testing.TB) *zap.SugaredLogger {
	return zaptest.NewLogger(tb, zaptest.Level(zap.DebugLevel)).Sugar()
}

// NewObservedTestLogger is like NewTestLogger but also keeps every entry in
// memory for assertions.
func NewObservedTestLogger(tb testing.TB) (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zaptest.NewLogger(tb, zaptest.Level(zap.DebugLevel))
	logger := base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, core)
	}))
	return logger.Sugar(), logs
}

func build(cfg zap.Config, name string) *zap.SugaredLogger {
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger.Named(name).Sugar()
}
