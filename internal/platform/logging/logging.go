package logging

import (
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Options selects level and encoding for the process logger.
type Options struct {
	Level   string
	Format  string
	Service string
}

// New builds a zap logger and returns an slog front-end over its core.
// Call sites keep using *slog.Logger; Sync flushes the zap buffers.
func New(opts Options) (*slog.Logger, func() error, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if strings.TrimSpace(opts.Level) != "" {
		var parsed zapcore.Level
		if err := parsed.Set(opts.Level); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = zap.NewAtomicLevelAt(parsed)
	}

	cfg := zap.NewProductionConfig()
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "json":
		cfg.Encoding = "json"
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.Encoding = "console"
	default:
		return nil, nil, fmt.Errorf("invalid log format %q", opts.Format)
	}
	cfg.Level = level
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	built, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build zap logger: %w", err)
	}
	if opts.Service != "" {
		built = built.With(zap.String("service", opts.Service))
	}
	return slog.New(zapslog.NewHandler(built.Core())), built.Sync, nil
}

// NewFromCore wraps an existing zap core. Tests use it with observer cores.
func NewFromCore(core zapcore.Core) *slog.Logger {
	return slog.New(zapslog.NewHandler(core))
}
