package client

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/s7snet/internal/protocol"
	"github.com/danmuck/s7snet/internal/protocol/frame"
)

// dispatch is the only reader of the stream. It deposits every inbound
// envelope with the correlator in stream order until the peer closes, a read
// or decode fails, or Close is called.
func (c *Conn) dispatch(r *frame.Reader) {
	stopJanitor := make(chan struct{})
	defer close(stopJanitor)
	go c.janitor(stopJanitor)

	for {
		payload, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.log.Info().Msg("peer closed the stream")
				c.fail(nil)
				return
			}
			if errors.Is(err, frame.ErrMalformedFrame) || errors.Is(err, frame.ErrFrameTooLarge) {
				c.fail(fmt.Errorf("%w: %w", protocol.ErrDecode, err))
				return
			}
			c.fail(fmt.Errorf("%w: read: %w", protocol.ErrTransport, err))
			return
		}
		c.metrics.FrameReceived(len(payload))

		env, err := c.codec.UnmarshalEnvelope(payload)
		if err != nil {
			c.fail(err)
			return
		}
		c.log.Trace().Uint16("msg_id", env.ID).Int32("from", env.From).Int("size", len(env.Payload)).Msg("inbound envelope")
		c.corr.Deposit(env)
	}
}

// janitor expires unclaimed responses while the stream is idle.
func (c *Conn) janitor(stop <-chan struct{}) {
	interval := c.cfg.UnclaimedTTL / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.halt.ReqStop.Chan:
			return
		case now := <-ticker.C:
			c.corr.Sweep(now)
		}
	}
}
