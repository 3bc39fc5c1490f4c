// Package logger provides the process-wide zap logger for cadence.
//
// Components receive a *zap.SugaredLogger by constructor injection; the
// package-level instance exists for the CLI layer and for code that runs
// before wiring is complete.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global logger instance
	Logger *zap.SugaredLogger
	// Flag to track if JSON output is enabled
	JSONOutput bool
)

func init() {
	// Safe no-op logger at package load time so early callers never
	// hit a nil pointer before Initialize() runs.
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger.
//
// verbose lowers the level to DEBUG. jsonOutput switches to zap's
// production JSON encoder for machine consumption; the default is the
// bracket console encoder ("[YYYY-MM-DD HH:MM:SS] LEVEL: message").
func Initialize(verbose, jsonOutput bool) error {
	JSONOutput = jsonOutput

	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	var zapLogger *zap.Logger
	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		built, err := config.Build()
		if err != nil {
			return err
		}
		zapLogger = built
	} else {
		zapLogger = zap.New(
			zapcore.NewCore(
				newBracketEncoder(),
				zapcore.AddSync(os.Stdout),
				level,
			),
		)
	}

	Logger = zapLogger.Sugar()
	return nil
}

// New builds a standalone logger with the same configuration rules as
// Initialize, without touching the global. Used by tests and by
// components that want a private sink.
func New(verbose bool) *zap.SugaredLogger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	return zap.New(
		zapcore.NewCore(
			newBracketEncoder(),
			zapcore.AddSync(os.Stderr),
			level,
		),
	).Sugar()
}

// Cleanup flushes any buffered log entries
func Cleanup() {
	if Logger != nil {
		Logger.Sync()
	}
}
