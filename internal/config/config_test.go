package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/s7snet/internal/protocol"
	"github.com/danmuck/s7snet/internal/protocol/session"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
address = "server.example:8768"
server_name = "server.s7s"
instance = "Agent"
flavor = "vanilla"
codec = "cbor"
security_mode = "Production"
tls_mutual = true
tls_cert_file = "/etc/s7s/client.crt"
tls_key_file = "/etc/s7s/client.key"
request_timeout = "3s"
unclaimed_ttl = "1m"
max_unclaimed = 64
max_connect_attempts = 3
backoff_jitter = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s := cfg.Session
	if s.Address != "server.example:8768" || s.TLS.ServerName != "server.s7s" {
		t.Fatalf("unexpected target: %+v", s)
	}
	if s.Instance != protocol.InstanceAgent || s.Flavor != protocol.FlavorVanilla {
		t.Fatalf("unexpected instance tags: %v %v", s.Instance, s.Flavor)
	}
	if s.Codec != protocol.CodecCBOR || s.SecurityMode != session.SecurityModeProduction {
		t.Fatalf("unexpected codec/mode: %q %q", s.Codec, s.SecurityMode)
	}
	if s.RequestTimeout != 3*time.Second || s.UnclaimedTTL != time.Minute || s.MaxUnclaimed != 64 {
		t.Fatalf("unexpected timeouts: %+v", s)
	}
	if s.ConnectTimeout != 10*time.Second || s.ReadBufferSize != 4096 {
		t.Fatalf("undefined keys should keep defaults: %+v", s)
	}
	if cfg.MaxConnectAttempts != 3 || s.Backoff.Jitter {
		t.Fatalf("unexpected retry settings: %+v", cfg)
	}
	if s.UUID != "" {
		t.Fatalf("uuid should be unset, got %q", s.UUID)
	}
}

func TestEnvUUIDOverridesFile(t *testing.T) {
	path := writeConfig(t, `
address = "127.0.0.1:8768"
uuid = "from-file"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ApplyEnv(&cfg, func(key string) string { return "" })
	if cfg.Session.UUID != "from-file" {
		t.Fatalf("unexpected uuid: %q", cfg.Session.UUID)
	}
	ApplyEnv(&cfg, func(key string) string {
		if key == EnvUUID {
			return " abc-123 "
		}
		return ""
	})
	if cfg.Session.UUID != "abc-123" {
		t.Fatalf("env should override file uuid, got %q", cfg.Session.UUID)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"duration": `connect_timeout = "soon"`,
		"negative": `unclaimed_ttl = "-1s"`,
		"instance": `instance = "viewer"`,
		"flavor":   `flavor = "mint"`,
		"buffer":   `read_buffer_size = 0`,
		"unknown":  `adress = "typo:1"`,
		"codec":    `codec = "json"`,
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(writeConfig(t, `flavor = "mint"`)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRequiresUUID(t *testing.T) {
	cfg := Default()
	cfg.Session.Address = "127.0.0.1:8768"
	if err := Validate(cfg); !errors.Is(err, session.ErrUUIDRequired) {
		t.Fatalf("expected ErrUUIDRequired, got %v", err)
	}
	cfg.Session.UUID = "abc-123"
	cfg.MaxConnectAttempts = -1
	if err := Validate(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestTemplateLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg.Session.Address != "127.0.0.1:8768" || cfg.MaxConnectAttempts != 5 {
		t.Fatalf("unexpected template config: %+v", cfg)
	}
	if cfg.Session.Backoff.InitialDelay != 250*time.Millisecond || cfg.Session.Backoff.MaxDelay != 5*time.Second {
		t.Fatalf("unexpected template backoff: %+v", cfg.Session.Backoff)
	}
}
