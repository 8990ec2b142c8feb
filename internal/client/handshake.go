package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/danmuck/s7snet/internal/protocol"
	"github.com/danmuck/s7snet/internal/protocol/frame"
	"github.com/danmuck/s7snet/internal/protocol/session"
)

// handshake sends the cvid request and reads exactly one response envelope.
// Bytes that follow the response stay buffered in r for the dispatcher.
func (c *Conn) handshake(conn net.Conn, r *frame.Reader) (session.Session, error) {
	_ = conn.SetDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	rq := protocol.CvidRequest{
		UUID:     c.cfg.UUID,
		Instance: c.cfg.Instance,
		Flavor:   c.cfg.Flavor,
	}
	if err := rq.Validate(); err != nil {
		return session.Session{}, err
	}
	env := protocol.Envelope{
		ID:      uint16(c.rng.Intn(1 << 16)),
		Payload: rq.Marshal(),
	}
	body, err := c.codec.MarshalEnvelope(env)
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", protocol.ErrHandshake, err)
	}
	if err := c.writeFrame(conn, body); err != nil {
		return session.Session{}, fmt.Errorf("%w: write cvid request: %w", protocol.ErrHandshake, err)
	}
	c.log.Debug().Uint16("msg_id", env.ID).Str("uuid", rq.UUID).Msg("sent cvid request")

	payload, err := r.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return session.Session{}, fmt.Errorf("%w: read cvid response: %w", protocol.ErrHandshake, err)
	}
	c.metrics.FrameReceived(len(payload))
	reply, err := c.codec.UnmarshalEnvelope(payload)
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: %w", protocol.ErrHandshake, err)
	}
	rs, err := protocol.ParseCvidResponse(reply.Payload)
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: %w", protocol.ErrHandshake, err)
	}
	if err := rs.Validate(); err != nil {
		return session.Session{}, err
	}
	return session.Session{
		ServerCVID: rs.ServerCVID,
		SID:        rs.SID,
		ServerUUID: rs.ServerUUID,
	}, nil
}
