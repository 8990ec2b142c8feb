package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strings"
)

// DialFunc opens the raw stream the TLS client runs over.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (c *Conn) dialTLS(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	rawConn, err := c.dial(dialCtx, "tcp", c.cfg.Address)
	if err != nil {
		return nil, err
	}

	tlsCfg, err := c.clientTLSConfig()
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	if tlsCfg.InsecureSkipVerify {
		c.log.Warn().Str("addr", c.cfg.Address).Msg("tls server verification disabled")
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancelHandshake := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancelHandshake()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Conn) clientTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.cfg.ServerName(),
		InsecureSkipVerify: c.cfg.TLS.InsecureSkipVerify,
	}

	if caPath := strings.TrimSpace(c.cfg.TLS.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("client: parse tls ca bundle: %s", caPath)
		}
		cfg.RootCAs = pool
	}

	if c.cfg.TLS.Mutual {
		cert, err := tls.LoadX509KeyPair(c.cfg.TLS.CertFile, c.cfg.TLS.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
