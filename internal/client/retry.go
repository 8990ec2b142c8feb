package client

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"time"

	"github.com/danmuck/s7snet/internal/protocol"
	"github.com/danmuck/s7snet/internal/protocol/session"
)

// DialWithRetry builds a fresh Conn per attempt until one connects.
// maxAttempts <= 0 retries until ctx ends. Handshake rejections are not
// retried.
func DialWithRetry(ctx context.Context, cfg session.Config, maxAttempts int, opts ...Option) (*Conn, error) {
	cfg = cfg.WithDefaults()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var attempt int
	for {
		attempt++
		conn, err := New(cfg, opts...)
		if err != nil {
			return nil, err
		}
		ok, err := conn.Connect(ctx, 0)
		if ok {
			return conn, nil
		}
		_ = conn.Close()
		if err == nil {
			err = conn.Err()
		}
		if err == nil {
			err = errors.New("client: connect timed out")
		}
		conn.log.Warn().Int("attempt", attempt).Err(err).Msg("connect attempt failed")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isHandshakeRejection(err) || (maxAttempts > 0 && attempt >= maxAttempts) {
			return nil, err
		}
		if err := sleepBackoff(ctx, cfg.Backoff.Delay(attempt, rng)); err != nil {
			return nil, err
		}
	}
}

// isHandshakeRejection reports a server that answered but refused the
// handshake, as opposed to a transport failure worth retrying.
func isHandshakeRejection(err error) bool {
	if !errors.Is(err, protocol.ErrHandshake) || errors.Is(err, protocol.ErrTransport) {
		return false
	}
	return !errors.Is(err, io.ErrUnexpectedEOF) && !isTimeout(err)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func sleepBackoff(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
