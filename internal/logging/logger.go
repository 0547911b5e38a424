// Package logging builds the process-wide zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RootName prefixes every component logger, e.g. "dealwatch.tracker".
const RootName = "dealwatch"

// Config mirrors the logging.* configuration keys.
type Config struct {
	Development bool
	// Level overrides the profile default (debug in development, info otherwise).
	Level string
}

// New builds the root logger for cfg. Extra options are passed to zap.Config.Build.
func New(cfg Config, opts ...zap.Option) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.EncoderConfig.TimeKey = "ts"

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zcfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named(RootName), nil
}
