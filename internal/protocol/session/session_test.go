package session

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/s7snet/internal/protocol"
	"github.com/danmuck/s7snet/internal/testutil/testlog"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:8768"
	cfg.UUID = "abc-123"
	return cfg
}

func TestBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := cfg.Delay(1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := cfg.Delay(2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := cfg.Delay(3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := cfg.Delay(6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		got := cfg.Delay(1, rng)
		if got < 125*time.Millisecond || got > 375*time.Millisecond {
			t.Fatalf("jitter out of range: %v", got)
		}
	}
	if got := (BackoffConfig{}).Delay(3, rng); got != 0 {
		t.Fatalf("zero config should not delay, got %v", got)
	}
}

func TestStateTransitions(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateNew, StateConnected, true},
		{StateNew, StateClosed, true},
		{StateConnected, StateClosed, true},
		{StateConnected, StateNew, false},
		{StateClosed, StateNew, false},
		{StateClosed, StateConnected, false},
		{StateNew, StateNew, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: got=%v want=%v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestWithDefaultsFillsZeroValues(t *testing.T) {
	testlog.Start(t)
	cfg := Config{Address: "example.org:8768", UUID: "u"}.WithDefaults()
	if cfg.ReadBufferSize != 4096 {
		t.Fatalf("unexpected read buffer size: %d", cfg.ReadBufferSize)
	}
	if cfg.Instance != protocol.InstanceClient || cfg.Codec != protocol.CodecProtobuf {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.UnclaimedTTL <= 0 || cfg.MaxUnclaimed <= 0 || cfg.FrameLimits().MaxPayloadBytes == 0 {
		t.Fatalf("unexpected correlator defaults: %+v", cfg)
	}
}

func TestValidateClientTransportRequiresTarget(t *testing.T) {
	testlog.Start(t)
	cfg := validConfig()
	cfg.Address = ""
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
	cfg.Address = "no-port"
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired for missing port, got %v", err)
	}
	cfg = validConfig()
	cfg.UUID = " "
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrUUIDRequired) {
		t.Fatalf("expected ErrUUIDRequired, got %v", err)
	}
	if err := validConfig().ValidateClientTransport(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateClientTransportProductionRefusesInsecure(t *testing.T) {
	testlog.Start(t)
	cfg := validConfig()
	cfg.SecurityMode = "Production"
	cfg.TLS.InsecureSkipVerify = true
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSInsecureSkipNotAllow) {
		t.Fatalf("expected ErrTLSInsecureSkipNotAllow, got %v", err)
	}
	cfg.TLS.InsecureSkipVerify = false
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrMTLSRequired) {
		t.Fatalf("expected ErrMTLSRequired, got %v", err)
	}
}

func TestValidateClientTransportMutualRequiresCertKey(t *testing.T) {
	testlog.Start(t)
	cfg := validConfig()
	cfg.TLS.Mutual = true
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSCertFileRequired) {
		t.Fatalf("expected ErrTLSCertFileRequired, got %v", err)
	}
	cfg.TLS.CertFile = "/tmp/client.pem"
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSKeyFileRequired) {
		t.Fatalf("expected ErrTLSKeyFileRequired, got %v", err)
	}
	cfg.TLS.KeyFile = "/tmp/client.key"
	if err := cfg.ValidateClientTransport(); err != nil {
		t.Fatalf("expected valid transport config, got %v", err)
	}
}

func TestValidateClientTransportUnknownMode(t *testing.T) {
	testlog.Start(t)
	cfg := validConfig()
	cfg.SecurityMode = "yolo"
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrInvalidSecurityMode) {
		t.Fatalf("expected ErrInvalidSecurityMode, got %v", err)
	}
}

func TestServerName(t *testing.T) {
	testlog.Start(t)
	cfg := validConfig()
	if got := cfg.ServerName(); got != "127.0.0.1" {
		t.Fatalf("unexpected server name: %q", got)
	}
	cfg.TLS.ServerName = "server.s7s"
	if got := cfg.ServerName(); got != "server.s7s" {
		t.Fatalf("unexpected server name override: %q", got)
	}
}
