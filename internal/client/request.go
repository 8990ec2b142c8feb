package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/s7snet/internal/correlator"
	"github.com/danmuck/s7snet/internal/observability"
	"github.com/danmuck/s7snet/internal/protocol"
	"github.com/danmuck/s7snet/internal/protocol/session"
)

// Request sends payload under a fresh id and waits for the response carrying
// the same id. A zero to addresses the server connection. ok is false when
// timeout elapses, ctx ends or the connection closes first.
func (c *Conn) Request(ctx context.Context, payload []byte, to int32, timeout time.Duration) (protocol.Envelope, bool, error) {
	sess, err := c.requireConnected("request")
	if err != nil {
		return protocol.Envelope{}, false, err
	}
	pending, err := c.corr.Reserve()
	if err != nil {
		return protocol.Envelope{}, false, c.correlatorErr("request", err)
	}
	env := protocol.Envelope{ID: pending.ID(), To: to, Payload: payload}
	return c.exchange(ctx, sess, pending, env, timeout)
}

// RequestEnvelope is Request with a caller-chosen id. Ids already in flight
// are rejected with correlator.ErrIDInFlight.
func (c *Conn) RequestEnvelope(ctx context.Context, env protocol.Envelope, timeout time.Duration) (protocol.Envelope, bool, error) {
	sess, err := c.requireConnected("request")
	if err != nil {
		return protocol.Envelope{}, false, err
	}
	pending, err := c.corr.Register(env.ID)
	if err != nil {
		return protocol.Envelope{}, false, fmt.Errorf("id %d: %w", env.ID, c.correlatorErr("request", err))
	}
	return c.exchange(ctx, sess, pending, env, timeout)
}

// Await waits for the response to id without sending anything. A response
// that arrived before the call is returned at once. Await on a closed
// connection fails with protocol.ErrIllegalState.
func (c *Conn) Await(ctx context.Context, id uint16, timeout time.Duration) (protocol.Envelope, bool, error) {
	if state := c.State(); state == session.StateClosed {
		return protocol.Envelope{}, false, fmt.Errorf("%w: await in state %s", protocol.ErrIllegalState, state)
	}
	rs, ok, err := c.corr.Await(ctx, id, timeout)
	if err != nil {
		return protocol.Envelope{}, false, c.correlatorErr("await", err)
	}
	return rs, ok, nil
}

func (c *Conn) exchange(
	ctx context.Context,
	sess session.Session,
	pending *correlator.Pending,
	env protocol.Envelope,
	timeout time.Duration,
) (protocol.Envelope, bool, error) {
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	if env.To == 0 {
		env.To = sess.ServerCVID
	}
	env.From = sess.SID

	start := time.Now()
	if err := c.Send(env); err != nil {
		pending.Cancel()
		c.metrics.Request(observability.OutcomeError, time.Since(start))
		return protocol.Envelope{}, false, err
	}
	rs, ok := pending.Wait(ctx, timeout)
	if !ok {
		c.metrics.Request(observability.OutcomeTimeout, time.Since(start))
		c.log.Debug().Uint16("msg_id", env.ID).Dur("timeout", timeout).Msg("request got no response")
		return protocol.Envelope{}, false, nil
	}
	c.metrics.Request(observability.OutcomeOK, time.Since(start))
	return rs, true, nil
}

// correlatorErr maps a correlator closed by a racing shutdown onto the
// connection's illegal state error.
func (c *Conn) correlatorErr(op string, err error) error {
	if errors.Is(err, correlator.ErrClosed) {
		return fmt.Errorf("%w: %s in state %s", protocol.ErrIllegalState, op, c.State())
	}
	return err
}

func (c *Conn) requireConnected(op string) (session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != session.StateConnected {
		return session.Session{}, fmt.Errorf("%w: %s in state %s", protocol.ErrIllegalState, op, c.state)
	}
	return c.sess, nil
}
