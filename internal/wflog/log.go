// Package wflog is weaveforge's single logging boundary. Components take a
// logr.Logger injected at construction, never a package-level global, so
// the deterministic scheduling/caching/hashing core never depends on how
// (or whether) its caller configures logging.
package wflog

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level names accepted by New, matching the config surface in wfconfig.WorkspaceConfig.LogLevel.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// New builds a production logr.Logger backed by zap, writing structured
// JSON to stderr. levelName is one of the Level constants; an unrecognized
// name falls back to info rather than erroring, since a bad log_level
// should never be the reason a build fails.
func New(levelName string) logr.Logger {
	zapLevel := parseLevel(levelName)

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "" // runs must stay deterministic; timestamps never feed a hash, but also never clutter the common path

	zl, err := cfg.Build()
	if err != nil {
		// zap.NewProductionConfig().Build() only fails on a broken sink
		// (e.g. an unwritable fd); fall back to a no-op logger rather
		// than panic over an inessential subsystem.
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}

func parseLevel(name string) zapcore.Level {
	switch name {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithRun returns logger annotated with the run and graph identity every
// subsequent log line in a scheduler invocation should carry.
func WithRun(logger logr.Logger, runID, graphHash string) logr.Logger {
	return logger.WithValues("run_id", runID, "graph_hash", graphHash)
}

// WithTarget further annotates logger with a single target's identity.
func WithTarget(logger logr.Logger, targetID fmt.Stringer) logr.Logger {
	return logger.WithValues("target", targetID.String())
}
