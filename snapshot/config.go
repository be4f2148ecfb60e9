package snapshot

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/spf13/viper"

	"github.com/kartikbazzad/snapstate/pkg/logger"
)

// EngineConfig configures the process-wide ambient pieces of the engine:
// logging, and an optional process-wide default merge-policy expression.
// The snapshot/cell API itself otherwise takes no config, matching the
// core's "no environment variables / CLI" surface.
type EngineConfig struct {
	LogLevel  logger.Level  `mapstructure:"log_level"`
	LogFormat logger.Format `mapstructure:"log_format"`

	// DefaultMergeExpr, if non-empty, is a CEL expression (see
	// cell.MergePolicy) that cell.New installs on any Cell constructed
	// without an explicit WithMerge/WithMergeExpr option. It lets a
	// process declare "how conflicts resolve by default" once, at boot,
	// instead of repeating the same WithMergeExpr at every call site.
	DefaultMergeExpr string `mapstructure:"default_merge_expr"`
}

// DefaultEngineConfig returns the config used if LoadEngineConfig is never
// called: INFO level, JSON formatted logs, no default merge policy.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{LogLevel: logger.LevelInfo, LogFormat: logger.FormatJSON}
}

// validate rejects any LogLevel/LogFormat this engine's logger doesn't
// actually understand, instead of silently falling through to slog's own
// INFO default at Init time.
func (c EngineConfig) validate() error {
	if !c.LogLevel.Valid() {
		return fmt.Errorf("snapshot: invalid log_level %q (want one of DEBUG, INFO, WARN, ERROR)", c.LogLevel)
	}
	if !c.LogFormat.Valid() {
		return fmt.Errorf("snapshot: invalid log_format %q (want one of json, text)", c.LogFormat)
	}
	return nil
}

var defaultMergeExpr atomic.Pointer[string]

// DefaultMergePolicyExpr returns the process-wide default merge-policy
// expression set by the most recent LoadEngineConfig call, and whether one
// was configured at all. cell.New consults this as a fallback for cells
// built without WithMerge/WithMergeExpr.
func DefaultMergePolicyExpr() (string, bool) {
	p := defaultMergeExpr.Load()
	if p == nil || *p == "" {
		return "", false
	}
	return *p, true
}

// LoadEngineConfig reads an EngineConfig from a ".env" file and any
// environment variables prefixed with prefix (e.g. "SNAPSTATE_LOG_LEVEL",
// "SNAPSTATE_DEFAULT_MERGE_EXPR"), validates it against the enums this
// engine actually supports, initializes the package logger, and records
// the default merge-policy expression for cell.New to pick up. Call once,
// near process start; the engine otherwise has no configuration surface.
func LoadEngineConfig(prefix string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()

	v := viper.New()

	// Load from an optional .env file; its absence is not an error.
	v.SetConfigFile(".env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("snapshot: reading .env: %w", err)
		}
	}

	// Layer in prefixed process environment variables, e.g.
	// SNAPSTATE_LOG_LEVEL -> log_level -> EngineConfig.LogLevel.
	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		key, value, ok := strings.Cut(envStr, "=")
		if !ok || !strings.HasPrefix(key, prefixUpper) {
			continue
		}
		propKey := strings.ToLower(strings.TrimPrefix(key, prefixUpper))
		propKey = strings.TrimPrefix(propKey, "_")
		v.Set(propKey, value)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("snapshot: unmarshaling engine config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	expr := cfg.DefaultMergeExpr
	defaultMergeExpr.Store(&expr)

	return cfg, nil
}
