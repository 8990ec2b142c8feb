package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultConfigProfiles(t *testing.T) {
	if cfg := DefaultConfig(ProfileRuntime); cfg.Level != zerolog.InfoLevel || !cfg.Timestamp {
		t.Fatalf("unexpected runtime config: %+v", cfg)
	}
	if cfg := DefaultConfig(ProfileTest); cfg.Level != zerolog.DebugLevel || cfg.Timestamp {
		t.Fatalf("unexpected test config: %+v", cfg)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := DefaultConfig(ProfileRuntime)
	ApplyEnvOverrides(&cfg, envMap(map[string]string{
		EnvLogLevel:     "warning",
		EnvLogTimestamp: "false",
		EnvLogNoColor:   "1",
		EnvLogJSON:      "not-a-bool",
	}))
	if cfg.Level != zerolog.WarnLevel || cfg.Timestamp || !cfg.NoColor || cfg.JSON {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}

	cfg = DefaultConfig(ProfileRuntime)
	ApplyEnvOverrides(&cfg, envMap(map[string]string{EnvLogLevel: "loud"}))
	if cfg.Level != zerolog.InfoLevel {
		t.Fatalf("unknown level should be ignored, got %v", cfg.Level)
	}
}

func TestBuildJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := Config{Level: zerolog.WarnLevel, JSON: true}.Build(&buf)
	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "client").Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"component":"client"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}
