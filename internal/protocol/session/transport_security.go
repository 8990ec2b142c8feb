package session

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrAddressRequired         = errors.New("session: address required")
	ErrUUIDRequired            = errors.New("session: installation uuid required")
	ErrInvalidSecurityMode     = errors.New("session: invalid security mode")
	ErrMTLSRequired            = errors.New("session: mtls required")
	ErrTLSCertFileRequired     = errors.New("session: tls cert file required")
	ErrTLSKeyFileRequired      = errors.New("session: tls key file required")
	ErrTLSInsecureSkipNotAllow = errors.New("session: insecure skip verify not allowed")
)

func NormalizeSecurityMode(mode SecurityMode) SecurityMode {
	if strings.TrimSpace(string(mode)) == "" {
		return SecurityModeDevelopment
	}
	return SecurityMode(strings.ToLower(strings.TrimSpace(string(mode))))
}

// ValidateClientTransport checks the connection target and the tls policy.
// Production mode refuses InsecureSkipVerify and requires mutual tls.
func (c Config) ValidateClientTransport() error {
	if strings.TrimSpace(c.Address) == "" {
		return ErrAddressRequired
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("%w: %v", ErrAddressRequired, err)
	}
	if strings.TrimSpace(c.UUID) == "" {
		return ErrUUIDRequired
	}

	mode := NormalizeSecurityMode(c.SecurityMode)
	switch mode {
	case SecurityModeDevelopment, SecurityModeProduction:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSecurityMode, c.SecurityMode)
	}

	if mode == SecurityModeProduction {
		if c.TLS.InsecureSkipVerify {
			return ErrTLSInsecureSkipNotAllow
		}
		if !c.TLS.Mutual {
			return ErrMTLSRequired
		}
	}
	if c.TLS.Mutual {
		if strings.TrimSpace(c.TLS.CertFile) == "" {
			return ErrTLSCertFileRequired
		}
		if strings.TrimSpace(c.TLS.KeyFile) == "" {
			return ErrTLSKeyFileRequired
		}
	}
	return nil
}

// ServerName returns the name used for SNI and certificate verification.
func (c Config) ServerName() string {
	if name := strings.TrimSpace(c.TLS.ServerName); name != "" {
		return name
	}
	host, _, err := net.SplitHostPort(c.Address)
	if err != nil {
		return ""
	}
	return host
}
