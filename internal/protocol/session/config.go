package session

import (
	"time"

	"github.com/danmuck/s7snet/internal/protocol"
	"github.com/danmuck/s7snet/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// TLSConfig controls server verification. InsecureSkipVerify accepts any
// server certificate and must be set explicitly.
type TLSConfig struct {
	ServerName         string
	CAFile             string
	CertFile           string
	KeyFile            string
	Mutual             bool
	InsecureSkipVerify bool
}

// Config defines one client connection.
type Config struct {
	Address      string
	UUID         string
	Instance     protocol.InstanceType
	Flavor       protocol.InstanceFlavor
	Codec        string
	SecurityMode SecurityMode
	TLS          TLSConfig

	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	RequestTimeout   time.Duration

	ReadBufferSize int
	MaxFrameBytes  uint64
	UnclaimedTTL   time.Duration
	MaxUnclaimed   int
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Instance:         protocol.InstanceClient,
		Flavor:           protocol.FlavorBrightstone,
		Codec:            protocol.CodecProtobuf,
		SecurityMode:     SecurityModeDevelopment,
		ConnectTimeout:   10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     15 * time.Second,
		RequestTimeout:   10 * time.Second,
		ReadBufferSize:   frame.DefaultReadBufferSize,
		MaxFrameBytes:    frame.DefaultLimits().MaxPayloadBytes,
		UnclaimedTTL:     30 * time.Second,
		MaxUnclaimed:     1024,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero values from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Instance == protocol.InstanceUnspecified {
		c.Instance = def.Instance
	}
	if c.Codec == "" {
		c.Codec = def.Codec
	}
	if c.SecurityMode == "" {
		c.SecurityMode = def.SecurityMode
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = def.ReadBufferSize
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = def.MaxFrameBytes
	}
	if c.UnclaimedTTL <= 0 {
		c.UnclaimedTTL = def.UnclaimedTTL
	}
	if c.MaxUnclaimed <= 0 {
		c.MaxUnclaimed = def.MaxUnclaimed
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

func (c Config) FrameLimits() frame.Limits {
	return frame.Limits{MaxPayloadBytes: c.MaxFrameBytes}
}
