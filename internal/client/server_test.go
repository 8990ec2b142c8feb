package client

import (
	"crypto/tls"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/s7snet/internal/protocol"
	"github.com/danmuck/s7snet/internal/protocol/frame"
	"github.com/danmuck/s7snet/internal/protocol/session"
	"github.com/danmuck/s7snet/internal/testutil/testlog"
	"github.com/danmuck/s7snet/internal/testutil/tlstest"
)

// testServer is a minimal TLS peer speaking the envelope protocol.
type testServer struct {
	ca    *tlstest.Authority
	ln    net.Listener
	codec protocol.Codec

	mu    sync.Mutex
	conns []net.Conn
	wg    sync.WaitGroup
}

type serverConn struct {
	conn  net.Conn
	r     *frame.Reader
	codec protocol.Codec
}

func (s *serverConn) read() (protocol.Envelope, error) {
	payload, err := s.r.Next()
	if err != nil {
		return protocol.Envelope{}, err
	}
	return s.codec.UnmarshalEnvelope(payload)
}

func (s *serverConn) write(envs ...protocol.Envelope) error {
	var buf []byte
	for _, env := range envs {
		b, err := protocol.EncodeEnvelope(s.codec, env)
		if err != nil {
			return err
		}
		buf = append(buf, b...)
	}
	_, err := s.conn.Write(buf)
	return err
}

// handshake answers the cvid request with rs and returns the request seen.
func (s *serverConn) handshake(rs protocol.CvidResponse) (protocol.CvidRequest, error) {
	env, err := s.read()
	if err != nil {
		return protocol.CvidRequest{}, err
	}
	rq, err := protocol.ParseCvidRequest(env.Payload)
	if err != nil {
		return protocol.CvidRequest{}, err
	}
	return rq, s.write(protocol.Envelope{ID: env.ID, Payload: rs.Marshal()})
}

func defaultCvidResponse() protocol.CvidResponse {
	return protocol.CvidResponse{SID: 7, ServerCVID: 42, ServerUUID: "server-uuid"}
}

func startServer(t *testing.T, requireClientCert bool, codec protocol.Codec, handle func(*serverConn)) *testServer {
	t.Helper()
	ca := tlstest.NewAuthority(t, t.TempDir(), "s7s-test-ca")
	ln, err := tls.Listen("tcp", "127.0.0.1:0", ca.ServerConfig(t, requireClientCert))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if codec == nil {
		codec = protocol.Protobuf()
	}
	s := &testServer{ca: ca, ln: ln, codec: codec}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.conns = append(s.conns, conn)
			s.mu.Unlock()
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer conn.Close()
				handle(&serverConn{conn: conn, r: frame.NewReader(conn, 0, frame.DefaultLimits()), codec: codec})
			}()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		s.mu.Lock()
		for _, conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
	})
	return s
}

func (s *testServer) config() session.Config {
	cfg := session.DefaultConfig()
	cfg.Address = s.ln.Addr().String()
	cfg.UUID = "abc-123"
	cfg.Codec = s.codec.Name()
	cfg.TLS.CAFile = s.ca.CAFile()
	cfg.ConnectTimeout = 2 * time.Second
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.Backoff = session.BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 50 * time.Millisecond}
	return cfg
}

func newTestConn(t *testing.T, cfg session.Config, opts ...Option) *Conn {
	t.Helper()
	opts = append([]Option{WithLogger(testlog.Start(t))}, opts...)
	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("new conn: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// echo completes the handshake and answers every request with its own id.
// Clients that abandon the handshake are ignored.
func echo(sc *serverConn) {
	if _, err := sc.handshake(defaultCvidResponse()); err != nil {
		return
	}
	for {
		env, err := sc.read()
		if err != nil {
			return
		}
		reply := protocol.Envelope{ID: env.ID, To: env.From, From: env.To, Payload: env.Payload}
		if err := sc.write(reply); err != nil {
			return
		}
	}
}
