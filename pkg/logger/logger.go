// Package logger provides the process-wide structured logger used across
// snapstate: a single lazily-initialized slog.Logger, configurable via
// Init and otherwise defaulted to INFO/json.
package logger

import (
	"log/slog"
	"os"
	"sync"
)

// Level is the engine's own closed log-level enum. Unlike slog.Level (an
// arbitrary int with no notion of "valid"), Level is exactly the four
// values the commit engine and the fatal-violation path actually log at
// (commit outcomes at Debug, contract violations at Error), so
// EngineConfig.validate can reject anything else at config-load time
// instead of Init silently mapping an unrecognized string to INFO.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Valid reports whether l is one of the four levels this engine supports.
func (l Level) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	default:
		return false
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Format selects which slog.Handler Init builds.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Valid reports whether f is one of the two formats this engine supports.
func (f Format) Valid() bool {
	return f == FormatJSON || f == FormatText
}

var (
	once   sync.Once
	logger *slog.Logger
)

// Config holds logger configuration.
type Config struct {
	Level     Level
	Format    Format
	AddSource bool
}

// Init initializes the global logger, once.
func Init(cfg Config) {
	once.Do(func() {
		opts := &slog.HandlerOptions{
			Level:     cfg.Level.slogLevel(),
			AddSource: cfg.AddSource,
		}

		var handler slog.Handler
		if cfg.Format == FormatJSON {
			handler = slog.NewJSONHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(os.Stdout, opts)
		}

		logger = slog.New(handler)
		slog.SetDefault(logger)
	})
}

// Get returns the global logger, lazily defaulting to INFO/json if Init
// was never called.
func Get() *slog.Logger {
	if logger == nil {
		Init(Config{Level: LevelInfo, Format: FormatJSON})
	}
	return logger
}

// WithSnapshot tags logger with the id of the snapshot a log line
// pertains to, the way request handlers tag a trace id.
func WithSnapshot(logger *slog.Logger, snapshotID uint64) *slog.Logger {
	return logger.With("snapshot_id", snapshotID)
}
