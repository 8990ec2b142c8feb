// Package correlator matches inbound response envelopes to the callers
// waiting on their message ids.
//
// Each in-flight id owns one Pending handle with a single-slot channel. A
// deposit for an id nobody waits on is parked as unclaimed until a caller
// awaits it, its ttl passes, or the table reaches capacity and it is the
// oldest entry.
package correlator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/danmuck/s7snet/internal/observability"
	"github.com/danmuck/s7snet/internal/protocol"
	"github.com/rs/zerolog"
)

var (
	ErrIDInFlight = errors.New("correlator: id already in flight")
	ErrNoFreeID   = errors.New("correlator: no free id")
	ErrClosed     = errors.New("correlator: closed")
)

const (
	DefaultTTL          = 30 * time.Second
	DefaultMaxUnclaimed = 1024
)

type Options struct {
	TTL          time.Duration
	MaxUnclaimed int
	Logger       zerolog.Logger
	Metrics      *observability.Metrics
	Now          func() time.Time
}

type unclaimed struct {
	env protocol.Envelope
	at  time.Time
}

type Correlator struct {
	opts Options

	mu        sync.Mutex
	waiters   map[uint16]*Pending
	unclaimed map[uint16]unclaimed
	next      uint16
	closed    bool
}

func New(opts Options) *Correlator {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxUnclaimed <= 0 {
		opts.MaxUnclaimed = DefaultMaxUnclaimed
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Correlator{
		opts:      opts,
		waiters:   make(map[uint16]*Pending),
		unclaimed: make(map[uint16]unclaimed),
		next:      1,
	}
}

// Pending is the completion handle for one in-flight id.
type Pending struct {
	c    *Correlator
	id   uint16
	ch   chan protocol.Envelope
	done chan struct{}
	once sync.Once
}

func (p *Pending) ID() uint16 {
	return p.id
}

// Wait blocks until the response arrives, timeout elapses, ctx ends or the
// correlator closes. ok is false unless a response was delivered. A
// non-positive timeout waits on ctx alone. The handle is released either way.
func (p *Pending) Wait(ctx context.Context, timeout time.Duration) (protocol.Envelope, bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case env := <-p.ch:
		return env, true
	case <-p.done:
	case <-expired:
	case <-ctx.Done():
	}
	p.Cancel()
	select {
	case env := <-p.ch:
		return env, true
	default:
		return protocol.Envelope{}, false
	}
}

// Cancel withdraws interest in the id. A response arriving afterwards is
// parked as unclaimed.
func (p *Pending) Cancel() {
	p.c.release(p)
	p.once.Do(func() { close(p.done) })
}

// Reserve allocates the next free id and registers a waiter for it. Ids come
// from a wrapping counter that skips zero and every id currently waiting or
// unclaimed.
func (c *Correlator) Reserve() (*Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	c.sweepLocked(c.opts.Now())
	for range 1 << 16 {
		id := c.next
		c.next++
		if id == 0 || c.takenLocked(id) {
			continue
		}
		return c.registerLocked(id), nil
	}
	return nil, ErrNoFreeID
}

// Register claims a caller-chosen id. It fails with ErrIDInFlight when the id
// is already waiting or holds an unclaimed response.
func (c *Correlator) Register(id uint16) (*Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	c.sweepLocked(c.opts.Now())
	if c.takenLocked(id) {
		return nil, ErrIDInFlight
	}
	return c.registerLocked(id), nil
}

// Await returns the response for id, consuming an unclaimed one immediately
// or blocking like Pending.Wait. ok is false on timeout.
func (c *Correlator) Await(ctx context.Context, id uint16, timeout time.Duration) (protocol.Envelope, bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.Envelope{}, false, ErrClosed
	}
	c.sweepLocked(c.opts.Now())
	if u, ok := c.unclaimed[id]; ok {
		delete(c.unclaimed, id)
		c.mu.Unlock()
		return u.env, true, nil
	}
	if _, ok := c.waiters[id]; ok {
		c.mu.Unlock()
		return protocol.Envelope{}, false, ErrIDInFlight
	}
	p := c.registerLocked(id)
	c.mu.Unlock()

	env, ok := p.Wait(ctx, timeout)
	return env, ok, nil
}

// Deposit hands env to the waiter registered for env.ID, or parks it as
// unclaimed, replacing any earlier unclaimed response with the same id.
func (c *Correlator) Deposit(env protocol.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	now := c.opts.Now()
	c.sweepLocked(now)

	if p, ok := c.waiters[env.ID]; ok {
		delete(c.waiters, env.ID)
		c.opts.Metrics.Waiting(-1)
		p.ch <- env
		return
	}

	c.opts.Logger.Debug().Uint16("msg_id", env.ID).Msg("parking unclaimed response")
	c.unclaimed[env.ID] = unclaimed{env: env, at: now}
	if len(c.unclaimed) > c.opts.MaxUnclaimed {
		c.evictOldestLocked()
	}
}

// Sweep drops unclaimed responses older than the ttl and reports how many.
func (c *Correlator) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

// Close releases every waiter with ok=false and drops unclaimed responses.
func (c *Correlator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	waiters := make([]*Pending, 0, len(c.waiters))
	for _, p := range c.waiters {
		waiters = append(waiters, p)
	}
	c.waiters = make(map[uint16]*Pending)
	c.unclaimed = make(map[uint16]unclaimed)
	c.opts.Metrics.Waiting(-len(waiters))
	c.mu.Unlock()

	for _, p := range waiters {
		p.once.Do(func() { close(p.done) })
	}
}

// Len reports the number of blocked waiters and parked responses.
func (c *Correlator) Len() (waiting, parked int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters), len(c.unclaimed)
}

func (c *Correlator) takenLocked(id uint16) bool {
	if _, ok := c.waiters[id]; ok {
		return true
	}
	_, ok := c.unclaimed[id]
	return ok
}

func (c *Correlator) registerLocked(id uint16) *Pending {
	p := &Pending{
		c:    c,
		id:   id,
		ch:   make(chan protocol.Envelope, 1),
		done: make(chan struct{}),
	}
	c.waiters[id] = p
	c.opts.Metrics.Waiting(1)
	return p
}

func (c *Correlator) release(p *Pending) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.waiters[p.id]; ok && cur == p {
		delete(c.waiters, p.id)
		c.opts.Metrics.Waiting(-1)
	}
}

func (c *Correlator) sweepLocked(now time.Time) int {
	evicted := 0
	for id, u := range c.unclaimed {
		if now.Sub(u.at) >= c.opts.TTL {
			delete(c.unclaimed, id)
			evicted++
		}
	}
	if evicted > 0 {
		c.opts.Metrics.Evicted(evicted)
		c.opts.Logger.Debug().Int("evicted", evicted).Msg("expired unclaimed responses")
	}
	return evicted
}

func (c *Correlator) evictOldestLocked() {
	var (
		oldestID uint16
		oldestAt time.Time
		found    bool
	)
	for id, u := range c.unclaimed {
		if !found || u.at.Before(oldestAt) {
			oldestID, oldestAt, found = id, u.at, true
		}
	}
	if found {
		delete(c.unclaimed, oldestID)
		c.opts.Metrics.Evicted(1)
	}
}
