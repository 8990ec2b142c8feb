// Package client is the connection side of the transport: it dials the
// server over TLS, performs the cvid handshake, and then multiplexes requests
// over the stream while one dispatcher goroutine routes every inbound
// envelope to the caller waiting on its id.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/danmuck/s7snet/internal/correlator"
	"github.com/danmuck/s7snet/internal/observability"
	"github.com/danmuck/s7snet/internal/protocol"
	"github.com/danmuck/s7snet/internal/protocol/frame"
	"github.com/danmuck/s7snet/internal/protocol/session"
	"github.com/glycerine/idem"
	"github.com/rs/zerolog"
)

type Option func(*Conn)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Conn) { c.log = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Conn) { c.metrics = m }
}

// WithCodec overrides the codec named by the config.
func WithCodec(codec protocol.Codec) Option {
	return func(c *Conn) { c.codec = codec }
}

func WithDialer(dial DialFunc) Option {
	return func(c *Conn) { c.dial = dial }
}

// Conn is one client connection. It moves NEW -> CONNECTED -> CLOSED, or
// straight from NEW to CLOSED when the dial or handshake fails.
type Conn struct {
	cfg     session.Config
	codec   protocol.Codec
	log     zerolog.Logger
	metrics *observability.Metrics
	dial    DialFunc
	corr    *correlator.Correlator
	halt    *idem.Halter
	rng     *rand.Rand

	mu        sync.Mutex
	state     session.State
	sess      session.Session
	conn      net.Conn
	err       error
	started   bool
	handshook bool
	connected chan struct{}
	closed    chan struct{}
	cancel    context.CancelFunc

	writeMu sync.Mutex
}

func New(cfg session.Config, opts ...Option) (*Conn, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}
	c := &Conn{
		cfg:       cfg,
		log:       zerolog.Nop(),
		halt:      idem.NewHalter(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		state:     session.StateNew,
		connected: make(chan struct{}),
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.codec == nil {
		codec, err := protocol.CodecByName(cfg.Codec)
		if err != nil {
			return nil, err
		}
		c.codec = codec
	}
	if c.dial == nil {
		dialer := &net.Dialer{}
		c.dial = dialer.DialContext
	}
	c.log = c.log.With().Str("component", "client").Str("addr", cfg.Address).Logger()
	c.corr = correlator.New(correlator.Options{
		TTL:          cfg.UnclaimedTTL,
		MaxUnclaimed: cfg.MaxUnclaimed,
		Logger:       c.log,
		Metrics:      c.metrics,
	})
	return c, nil
}

// Connect starts the connection goroutine and blocks until the handshake
// completes, the connection closes, timeout elapses or ctx ends. A timeout
// <= 0 uses the configured connect and handshake timeouts. ok is true once
// the handshake succeeded, even if the connection has closed since. An
// attempt that closed before the handshake returns the cause.
func (c *Conn) Connect(ctx context.Context, timeout time.Duration) (bool, error) {
	c.mu.Lock()
	if c.state != session.StateNew || c.started || c.stopping() {
		state := c.state
		c.mu.Unlock()
		return false, fmt.Errorf("%w: connect in state %s", protocol.ErrIllegalState, state)
	}
	c.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	c.log.Info().Msg("attempting connection")
	go c.run(runCtx)

	if timeout <= 0 {
		timeout = c.cfg.ConnectTimeout + c.cfg.HandshakeTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.connected:
	case <-timer.C:
	case <-ctx.Done():
		return c.State() == session.StateConnected, ctx.Err()
	}
	return c.connectResult()
}

// connectResult reports how the attempt left NEW. A timed out attempt still
// in NEW returns false with no error.
func (c *Conn) connectResult() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handshook {
		return true, nil
	}
	if c.state == session.StateClosed {
		return false, c.err
	}
	return false, nil
}

// Send writes env to the stream. A failed write closes the connection.
func (c *Conn) Send(env protocol.Envelope) error {
	c.mu.Lock()
	state, conn := c.state, c.conn
	c.mu.Unlock()
	if state != session.StateConnected {
		return fmt.Errorf("%w: send in state %s", protocol.ErrIllegalState, state)
	}

	body, err := c.codec.MarshalEnvelope(env)
	if err != nil {
		return err
	}
	if err := c.writeFrame(conn, body); err != nil {
		err = fmt.Errorf("%w: write: %v", protocol.ErrTransport, err)
		c.fail(err)
		return err
	}
	return nil
}

func (c *Conn) writeFrame(conn net.Conn, body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		defer conn.SetWriteDeadline(time.Time{})
	}
	if err := frame.WriteFrame(conn, body, c.cfg.FrameLimits()); err != nil {
		return err
	}
	c.metrics.FrameSent(len(body))
	return nil
}

func (c *Conn) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the negotiated identifiers. ok is false until the
// handshake has completed.
func (c *Conn) Session() (session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess, c.sess.ServerCVID != 0
}

// Done is closed once the connection reaches CLOSED.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Err returns the error that closed the connection. It is nil while open and
// after a clean Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close stops the connection and waits for the dispatcher to exit. Blocked
// callers are released with no response. Calling Close again is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.halt.ReqStop.IsClosed() {
		c.mu.Unlock()
		<-c.halt.Done.Chan
		return nil
	}
	c.halt.ReqStop.Close()
	started, conn, cancel := c.started, c.conn, c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if !started {
		c.transition(session.StateClosed, nil, nil)
		c.halt.Done.Close()
		return nil
	}
	<-c.halt.Done.Chan
	return nil
}

func (c *Conn) stopping() bool {
	return c.halt.ReqStop.IsClosed()
}

// transition moves the state machine forward. It returns false when the move
// is not allowed from the current state.
func (c *Conn) transition(next session.State, sess *session.Session, cause error) bool {
	c.mu.Lock()
	prev := c.state
	if !prev.CanTransition(next) {
		c.mu.Unlock()
		return false
	}
	c.state = next
	if sess != nil {
		c.sess = *sess
	}
	if next == session.StateClosed {
		c.err = cause
		close(c.closed)
	}
	if prev == session.StateNew {
		c.handshook = next == session.StateConnected
		close(c.connected)
	}
	c.mu.Unlock()

	c.metrics.Transition(next.String())
	c.log.Debug().Str("state", next.String()).Str("from", prev.String()).Msg("state transition")
	if next == session.StateClosed {
		c.corr.Close()
	}
	return true
}

// fail closes the connection because of err. Errors caused by a requested
// shutdown are not recorded.
func (c *Conn) fail(err error) {
	if c.stopping() {
		err = nil
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if !c.transition(session.StateClosed, nil, err) {
		return
	}
	if err != nil {
		c.log.Error().Err(err).Msg("connection closed")
		return
	}
	c.log.Info().Msg("connection closed")
}

func (c *Conn) run(ctx context.Context) {
	defer c.halt.Done.Close()

	conn, err := c.dialTLS(ctx)
	if err != nil {
		c.metrics.Handshake(observability.OutcomeError)
		c.fail(fmt.Errorf("%w: dial %s: %v", protocol.ErrTransport, c.cfg.Address, err))
		return
	}
	c.mu.Lock()
	if c.stopping() {
		c.mu.Unlock()
		_ = conn.Close()
		c.fail(nil)
		return
	}
	c.conn = conn
	c.mu.Unlock()

	reader := frame.NewReader(conn, c.cfg.ReadBufferSize, c.cfg.FrameLimits())
	sess, err := c.handshake(conn, reader)
	if err != nil {
		outcome := observability.OutcomeError
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			outcome = observability.OutcomeTimeout
		}
		c.metrics.Handshake(outcome)
		c.fail(err)
		return
	}
	c.metrics.Handshake(observability.OutcomeOK)
	if !c.transition(session.StateConnected, &sess, nil) {
		return
	}
	c.log.Info().
		Int32("server_cvid", sess.ServerCVID).
		Int32("sid", sess.SID).
		Str("server_uuid", sess.ServerUUID).
		Msg("connected")

	c.dispatch(reader)
}
