// Package config loads the client TOML file into a session.Config.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/s7snet/internal/protocol"
	"github.com/danmuck/s7snet/internal/protocol/session"
)

// EnvUUID holds the installation identifier. It overrides the file's uuid.
const EnvUUID = "S7S_UUID"

var ErrInvalidConfig = errors.New("config: invalid value")

// Client is the resolved client configuration.
type Client struct {
	Session            session.Config
	MaxConnectAttempts int
}

func Default() Client {
	return Client{Session: session.DefaultConfig()}
}

type fileConfig struct {
	Address      string `toml:"address"`
	ServerName   string `toml:"server_name"`
	UUID         string `toml:"uuid"`
	Instance     string `toml:"instance"`
	Flavor       string `toml:"flavor"`
	Codec        string `toml:"codec"`
	SecurityMode string `toml:"security_mode"`

	TLSCAFile             string `toml:"tls_ca_file"`
	TLSCertFile           string `toml:"tls_cert_file"`
	TLSKeyFile            string `toml:"tls_key_file"`
	TLSMutual             bool   `toml:"tls_mutual"`
	TLSInsecureSkipVerify bool   `toml:"tls_insecure_skip_verify"`

	ConnectTimeout   string `toml:"connect_timeout"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	WriteTimeout     string `toml:"write_timeout"`
	RequestTimeout   string `toml:"request_timeout"`

	ReadBufferSize int    `toml:"read_buffer_size"`
	MaxFrameBytes  int64  `toml:"max_frame_bytes"`
	UnclaimedTTL   string `toml:"unclaimed_ttl"`
	MaxUnclaimed   int    `toml:"max_unclaimed"`

	MaxConnectAttempts int     `toml:"max_connect_attempts"`
	BackoffInitial     string  `toml:"backoff_initial"`
	BackoffMax         string  `toml:"backoff_max"`
	BackoffMultiplier  float64 `toml:"backoff_multiplier"`
	BackoffJitter      bool    `toml:"backoff_jitter"`
}

// Load reads path over the defaults. Keys absent from the file keep their
// default values.
func Load(path string) (Client, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Client{}, fmt.Errorf("load client config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Client{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}
	if err := apply(&cfg, raw, meta); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func apply(cfg *Client, raw fileConfig, meta toml.MetaData) error {
	s := &cfg.Session
	if meta.IsDefined("address") {
		s.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("server_name") {
		s.TLS.ServerName = strings.TrimSpace(raw.ServerName)
	}
	if meta.IsDefined("uuid") {
		s.UUID = strings.TrimSpace(raw.UUID)
	}
	if meta.IsDefined("instance") {
		v, ok := protocol.ParseInstanceType(strings.ToLower(strings.TrimSpace(raw.Instance)))
		if !ok {
			return fmt.Errorf("%w: instance %q", ErrInvalidConfig, raw.Instance)
		}
		s.Instance = v
	}
	if meta.IsDefined("flavor") {
		v, ok := protocol.ParseInstanceFlavor(strings.ToLower(strings.TrimSpace(raw.Flavor)))
		if !ok {
			return fmt.Errorf("%w: flavor %q", ErrInvalidConfig, raw.Flavor)
		}
		s.Flavor = v
	}
	if meta.IsDefined("codec") {
		codec, err := protocol.CodecByName(raw.Codec)
		if err != nil {
			return err
		}
		s.Codec = codec.Name()
	}
	if meta.IsDefined("security_mode") {
		s.SecurityMode = session.NormalizeSecurityMode(session.SecurityMode(raw.SecurityMode))
	}

	if meta.IsDefined("tls_ca_file") {
		s.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("tls_cert_file") {
		s.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		s.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_mutual") {
		s.TLS.Mutual = raw.TLSMutual
	}
	if meta.IsDefined("tls_insecure_skip_verify") {
		s.TLS.InsecureSkipVerify = raw.TLSInsecureSkipVerify
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &s.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &s.HandshakeTimeout},
		{"write_timeout", raw.WriteTimeout, &s.WriteTimeout},
		{"request_timeout", raw.RequestTimeout, &s.RequestTimeout},
		{"unclaimed_ttl", raw.UnclaimedTTL, &s.UnclaimedTTL},
		{"backoff_initial", raw.BackoffInitial, &s.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &s.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, d.key)
		}
		*d.dst = v
	}

	if meta.IsDefined("read_buffer_size") {
		if raw.ReadBufferSize <= 0 {
			return fmt.Errorf("%w: read_buffer_size must be positive", ErrInvalidConfig)
		}
		s.ReadBufferSize = raw.ReadBufferSize
	}
	if meta.IsDefined("max_frame_bytes") {
		if raw.MaxFrameBytes <= 0 {
			return fmt.Errorf("%w: max_frame_bytes must be positive", ErrInvalidConfig)
		}
		s.MaxFrameBytes = uint64(raw.MaxFrameBytes)
	}
	if meta.IsDefined("max_unclaimed") {
		if raw.MaxUnclaimed <= 0 {
			return fmt.Errorf("%w: max_unclaimed must be positive", ErrInvalidConfig)
		}
		s.MaxUnclaimed = raw.MaxUnclaimed
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("backoff_multiplier") {
		s.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_jitter") {
		s.Backoff.Jitter = raw.BackoffJitter
	}
	return nil
}

// ApplyEnv overrides file values with the process environment.
func ApplyEnv(cfg *Client, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvUUID)); v != "" {
		cfg.Session.UUID = v
	}
}

// Validate checks the resolved configuration is usable for a connection.
func Validate(cfg Client) error {
	if cfg.MaxConnectAttempts < 0 {
		return fmt.Errorf("%w: max_connect_attempts must not be negative", ErrInvalidConfig)
	}
	return cfg.Session.WithDefaults().ValidateClientTransport()
}
