package snapshot

import (
	"testing"

	"github.com/kartikbazzad/snapstate/pkg/logger"
)

func TestEngineConfigValidateRejectsUnknownLevel(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.LogLevel = "TRACE"
	if err := cfg.validate(); err == nil {
		t.Fatal("expected validate to reject an unrecognized log level")
	}
}

func TestEngineConfigValidateRejectsUnknownFormat(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.LogFormat = "yaml"
	if err := cfg.validate(); err == nil {
		t.Fatal("expected validate to reject an unrecognized log format")
	}
}

func TestDefaultEngineConfigValidates(t *testing.T) {
	if err := DefaultEngineConfig().validate(); err != nil {
		t.Fatalf("expected the zero-option default config to validate, got %v", err)
	}
}

func TestLoadEngineConfigRejectsInvalidLogLevel(t *testing.T) {
	const prefix = "SNAPTEST_BAD_"
	t.Setenv(prefix+"LOG_LEVEL", "TRACE")

	if _, err := LoadEngineConfig(prefix); err == nil {
		t.Fatal("expected LoadEngineConfig to reject an invalid log level from the environment")
	}
}

func TestLoadEngineConfigRecordsDefaultMergeExpr(t *testing.T) {
	const prefix = "SNAPTEST_MERGE_"
	t.Setenv(prefix+"LOG_LEVEL", string(logger.LevelInfo))
	t.Setenv(prefix+"LOG_FORMAT", string(logger.FormatJSON))
	t.Setenv(prefix+"DEFAULT_MERGE_EXPR", "applied >= current")

	if _, err := LoadEngineConfig(prefix); err != nil {
		t.Fatalf("unexpected error loading engine config: %v", err)
	}

	expr, ok := DefaultMergePolicyExpr()
	if !ok {
		t.Fatal("expected a default merge-policy expression to be recorded")
	}
	if expr != "applied >= current" {
		t.Fatalf("expected the configured expression, got %q", expr)
	}
}

func TestDefaultMergePolicyExprAbsentByDefault(t *testing.T) {
	defaultMergeExpr.Store(nil)
	if _, ok := DefaultMergePolicyExpr(); ok {
		t.Fatal("expected no default merge-policy expression before any LoadEngineConfig call")
	}
}

