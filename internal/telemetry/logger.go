// Package telemetry constructs the logr.Logger every other package takes
// as a dependency, wired to a zap backend (the teacher itself has no
// logging library; this is enriched from the rest of the pack).
package telemetry

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level controls verbosity.
type Level int

const (
	LevelInfo Level = iota
	LevelDebug
)

// Options configures New.
type Options struct {
	Level Level
	// JSON selects structured JSON output over a human-readable console
	// encoder; services default to JSON, interactive CLI runs to console.
	JSON bool
}

// New builds a logr.Logger backed by zap.
func New(opts Options) (logr.Logger, func() error, error) {
	var zapCfg zap.Config
	if opts.JSON {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if opts.Level == LevelDebug {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	zl, err := zapCfg.Build()
	if err != nil {
		return logr.Logger{}, nil, fmt.Errorf("telemetry: building zap logger: %w", err)
	}

	return zapr.NewLogger(zl), zl.Sync, nil
}
