package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level and encoding for the process logger.
type Config struct {
	Level       string
	Format      string
	Environment string
}

// New builds a zap logger. Format "console" gives human readable output, anything else JSON.
func New(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	zc := zap.NewProductionConfig()
	if cfg.Environment == "development" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	zc.Encoding = "json"
	if strings.EqualFold(cfg.Format, "console") {
		zc.Encoding = "console"
	}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = cfg.Environment != "development"

	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	if cfg.Environment != "" {
		l = l.With(zap.String("env", cfg.Environment))
	}
	return l, nil
}
