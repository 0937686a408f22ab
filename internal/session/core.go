package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pongnet/internal/rtc"
	"github.com/1ureka/pongnet/internal/signaling"
	"github.com/1ureka/pongnet/internal/util"
)

const eventBufferSize = 64

// core is the role-independent part of a session: identity, state machine,
// event loop, and candidate trickle. Host and Client embed it and supply the
// handshake.
type core struct {
	role      Role
	traceID   string
	transport signaling.Transport
	conn      rtc.Connection
	channels  *rtc.Channels
	stats     *util.Stats
	log       *util.Logger
	onState   func(State)

	ctx    context.Context
	cancel context.CancelFunc
	events chan event

	mu         sync.RWMutex
	state      State
	localName  string
	remoteName string
	err        error
	started    bool
	closing    bool

	wg           sync.WaitGroup
	connected    chan struct{}
	connOnce     sync.Once
	done         chan struct{}
	teardownOnce sync.Once

	outbound *candidateQueue
	gate     chan struct{} // closed once the local name is registered on the relay
	gateOnce sync.Once
}

func newCore(role Role, opts Options) (*core, error) {
	if opts.Transport == nil {
		return nil, errors.New("session: nil transport")
	}
	if opts.Connection == nil {
		return nil, errors.New("session: nil connection")
	}

	traceID := uuid.NewString()
	log := opts.Logger
	if log == nil {
		log = util.NewLogger()
	}
	log = log.With("role", role.String(), "trace", traceID[:8])

	stats := &util.Stats{}
	ctx, cancel := context.WithCancel(context.Background())

	c := &core{
		role:      role,
		traceID:   traceID,
		transport: opts.Transport,
		conn:      opts.Connection,
		stats:     stats,
		log:       log,
		onState:   opts.OnStateChange,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan event, eventBufferSize),
		connected: make(chan struct{}),
		done:      make(chan struct{}),
		outbound:  newCandidateQueue(),
		gate:      make(chan struct{}),
	}
	c.channels = rtc.NewChannels(rtc.ChannelOptions{
		Dispatcher: opts.Dispatcher,
		Stats:      stats,
		Logger:     log,
	})

	c.conn.OnICECandidate(func(cand *webrtc.ICECandidateInit) {
		c.post(localCandidate{c: cand})
	})
	c.conn.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.post(connectionState{s: s})
	})

	return c, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────────────────────────────────

func (c *core) Role() Role                 { return c.role }
func (c *core) TraceID() string            { return c.traceID }
func (c *core) Channels() *rtc.Channels    { return c.channels }
func (c *core) Stats() *util.Stats         { return c.stats }
func (c *core) Connected() <-chan struct{} { return c.connected }
func (c *core) Done() <-chan struct{}      { return c.done }

func (c *core) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *core) LocalName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localName
}

func (c *core) RemoteName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteName
}

func (c *core) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// setLocalName and setRemoteName record a name once; later values are ignored.
func (c *core) setLocalName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.localName == "" {
		c.localName = name
	} else if c.localName != name {
		c.log.Warn("ignoring local name %q, already %q", name, c.localName)
	}
}

func (c *core) setRemoteName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remoteName == "" {
		c.remoteName = name
	} else if c.remoteName != name {
		c.log.Warn("ignoring remote name %q, already %q", name, c.remoteName)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// State machine
// ──────────────────────────────────────────────────────────────────────────────

// advance moves the session forward to `to`. Backward moves and moves out of
// a terminal state are ignored.
func (c *core) advance(to State) bool {
	return c.transition(to, nil)
}

func (c *core) transition(to State, cause error) bool {
	c.mu.Lock()
	from := c.state
	if from.Terminal() || to <= from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	if cause != nil {
		c.err = cause
	}
	c.mu.Unlock()

	c.log.Debug("state %s -> %s", from, to)
	if to == Connected {
		c.connOnce.Do(func() { close(c.connected) })
	}
	if c.onState != nil {
		c.onState(to)
	}
	return true
}

// fail moves the session to Failed and starts teardown. Cancellation caused
// by teardown itself is not a failure.
func (c *core) fail(err error) {
	if c.ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return
	}
	if c.transition(Failed, err) {
		c.log.Error("session failed: %v", err)
	}
	c.cancel()
}

// ──────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────────────────────────────────

// start launches the loop, the candidate sender and the handshake. The
// session also ends when parent is cancelled.
func (c *core) start(parent context.Context, handshake func()) error {
	c.mu.Lock()
	switch {
	case c.closing:
		c.mu.Unlock()
		return ErrSessionClosed
	case c.started:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.wg.Add(3)
	c.mu.Unlock()

	stop := context.AfterFunc(parent, c.cancel)

	c.log.Info("session starting")
	go func() {
		defer c.wg.Done()
		defer stop()
		c.loop()
	}()
	go func() {
		defer c.wg.Done()
		c.sendCandidates()
	}()
	go func() {
		defer c.wg.Done()
		handshake()
	}()
	return nil
}

// Close cancels the session and waits until its own goroutines have exited
// and the primitive is closed. The transport's candidate listener stops on
// the cancelled context; its slot is released immediately.
func (c *core) Close() error {
	c.mu.Lock()
	c.closing = true
	started := c.started
	c.mu.Unlock()

	c.cancel()
	if started {
		c.wg.Wait()
	} else {
		c.teardown()
	}
	return nil
}

// teardown closes the channels and the primitive. It runs once, on the loop
// goroutine when the session was started.
func (c *core) teardown() {
	c.teardownOnce.Do(func() {
		if err := c.channels.Close(); err != nil {
			c.log.Debug("closing channels: %v", err)
		}
		if err := c.conn.Close(); err != nil {
			c.log.Warn("closing connection: %v", err)
		}
		c.transition(Closed, nil)
		c.log.Info("session ended (%s)", c.State())
		close(c.done)
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Event loop
// ──────────────────────────────────────────────────────────────────────────────

// post hands an event to the loop. It gives up once the session is done.
func (c *core) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// do runs fn on the loop and returns its error. The handshake uses it for
// every primitive mutation.
func (c *core) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.events <- op{fn: fn, reply: reply}:
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

func (c *core) loop() {
	defer c.teardown()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *core) handle(ev event) {
	switch ev := ev.(type) {
	case op:
		ev.reply <- ev.fn()

	case localCandidate:
		if ev.c == nil {
			c.log.Debug("local candidate gathering complete")
		}
		c.outbound.push(ev.c)

	case remoteCandidate:
		c.stats.AddCandidateRecv()
		if err := c.conn.AddICECandidate(ev.c); err != nil {
			c.log.Warn("add remote candidate: %v", err)
		}

	case connectionState:
		c.log.Info("connection state: %s", ev.s)
		switch ev.s {
		case webrtc.PeerConnectionStateConnected:
			c.advance(Connected)
		case webrtc.PeerConnectionStateFailed:
			c.fail(primitiveErr("connect", errors.New("connection failed")))
		case webrtc.PeerConnectionStateClosed:
			c.cancel()
		}

	case dataChannel:
		c.log.Info("received %s channel %q", ev.ch.Ordering(), ev.ch.Label())
	}
}

// onRemoteCandidate is the candidate listener callback.
func (c *core) onRemoteCandidate(cand webrtc.ICECandidateInit) {
	c.post(remoteCandidate{c: cand})
}

// ──────────────────────────────────────────────────────────────────────────────
// Outbound trickle
// ──────────────────────────────────────────────────────────────────────────────

// openGate releases queued local candidates once the relay knows our name.
func (c *core) openGate() {
	c.gateOnce.Do(func() { close(c.gate) })
}

// sendCandidates forwards local candidates to the relay in discovery order
// and posts the end sentinel exactly once. Send failures are logged only.
func (c *core) sendCandidates() {
	// Phase 1: wait until the local name is registered.
	select {
	case <-c.gate:
	case <-c.ctx.Done():
		return
	}
	self := c.LocalName()

	// Phase 2: drain the queue as candidates arrive.
	for {
		for _, cand := range c.outbound.drain() {
			if c.ctx.Err() != nil {
				return
			}
			err := c.transport.SendIceCandidate(c.ctx, self, cand)
			if cand == nil {
				if err != nil {
					c.log.Warn("send end of candidates: %v", err)
				}
				return
			}
			if err != nil {
				c.log.Warn("send candidate: %v", err)
				continue
			}
			c.stats.AddCandidateSent()
		}

		select {
		case <-c.outbound.ready():
		case <-c.ctx.Done():
			return
		}
	}
}

// candidateQueue is an unbounded FIFO of local candidates. Nothing is queued
// after the nil end marker.
type candidateQueue struct {
	mu     sync.Mutex
	items  []*webrtc.ICECandidateInit
	ended  bool
	notify chan struct{}
}

func newCandidateQueue() *candidateQueue {
	return &candidateQueue{notify: make(chan struct{}, 1)}
}

func (q *candidateQueue) push(c *webrtc.ICECandidateInit) {
	q.mu.Lock()
	if q.ended {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, c)
	q.ended = c == nil
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *candidateQueue) drain() []*webrtc.ICECandidateInit {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *candidateQueue) ready() <-chan struct{} { return q.notify }
