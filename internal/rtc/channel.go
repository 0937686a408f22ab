package rtc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pongnet/internal/util"
)

const (
	HighWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	LowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
)

// ErrChannelNotOpen is returned by sends on a channel that is not Open.
var ErrChannelNotOpen = errors.New("data channel not open")

// ChannelState is a channel's lifecycle position: Opening → Open → Closed.
type ChannelState int32

const (
	ChannelOpening ChannelState = iota
	ChannelOpen
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelOpening:
		return "opening"
	case ChannelOpen:
		return "open"
	case ChannelClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ChannelOptions configures a Channel.
type ChannelOptions struct {
	// Greeting is sent once when the channel opens. Empty sends nothing.
	Greeting   string
	Dispatcher *Dispatcher
	Stats      *util.Stats
	Logger     *util.Logger
}

// Channel wraps a DataChannel with lifecycle tracking, inbound dispatch and
// buffered-amount backpressure on sends.
type Channel struct {
	raw      DataChannel
	ordering Ordering
	opts     ChannelOptions

	state     atomic.Int32
	opened    chan struct{}
	closed    chan struct{}
	openOnce  sync.Once
	closeOnce sync.Once
	drain     chan struct{}
}

// NewChannel wraps raw and registers its callbacks. raw's existing open,
// close, message and buffered-amount handlers are replaced.
func NewChannel(raw DataChannel, opts ChannelOptions) *Channel {
	if opts.Logger == nil {
		opts.Logger = util.NewLogger("channel", raw.Label())
	}
	if opts.Stats == nil {
		opts.Stats = &util.Stats{}
	}

	c := &Channel{
		raw:      raw,
		ordering: OrderingOf(raw),
		opts:     opts,
		opened:   make(chan struct{}),
		closed:   make(chan struct{}),
		drain:    make(chan struct{}, 1),
	}

	raw.SetBufferedAmountLowThreshold(uint64(LowWaterMark))
	raw.OnBufferedAmountLow(func() {
		select {
		case c.drain <- struct{}{}:
		default:
		}
	})
	raw.OnOpen(c.handleOpen)
	raw.OnClose(c.handleClose)
	raw.OnMessage(c.handleMessage)

	return c
}

func (c *Channel) handleOpen() {
	c.openOnce.Do(func() {
		if !c.state.CompareAndSwap(int32(ChannelOpening), int32(ChannelOpen)) {
			return
		}
		close(c.opened)
		c.opts.Logger.Info("%s channel %q open", c.ordering, c.raw.Label())

		if c.opts.Greeting != "" {
			if err := c.raw.SendText(c.opts.Greeting); err != nil {
				c.opts.Logger.Warn("greeting on %q failed: %v", c.raw.Label(), err)
				return
			}
			c.opts.Stats.AddSent(len(c.opts.Greeting))
		}
	})
}

func (c *Channel) handleClose() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(ChannelClosed))
		close(c.closed)
		c.opts.Logger.Info("%s channel %q closed", c.ordering, c.raw.Label())
	})
}

func (c *Channel) handleMessage(msg webrtc.DataChannelMessage) {
	c.opts.Stats.AddRecv(len(msg.Data))
	if c.opts.Dispatcher == nil {
		return
	}
	m := Message{Ordering: c.ordering, Label: c.raw.Label(), Data: msg.Data, IsString: msg.IsString}
	if !c.opts.Dispatcher.Dispatch(m) {
		c.opts.Logger.Debug("no handler for %s message (%d bytes)", c.ordering, len(msg.Data))
	}
}

// Send writes data as a binary message, blocking while the buffered amount
// is above HighWaterMark until it drains, ctx ends, or the channel closes.
func (c *Channel) Send(ctx context.Context, data []byte) error {
	if err := c.waitWritable(ctx); err != nil {
		return err
	}
	if err := c.raw.Send(data); err != nil {
		return err
	}
	c.opts.Stats.AddSent(len(data))
	return nil
}

// SendText is Send for a text message.
func (c *Channel) SendText(ctx context.Context, text string) error {
	if err := c.waitWritable(ctx); err != nil {
		return err
	}
	if err := c.raw.SendText(text); err != nil {
		return err
	}
	c.opts.Stats.AddSent(len(text))
	return nil
}

func (c *Channel) waitWritable(ctx context.Context) error {
	if c.State() != ChannelOpen {
		return ErrChannelNotOpen
	}
	if c.raw.BufferedAmount() <= uint64(HighWaterMark) {
		return nil
	}
	select {
	case <-c.drain:
		return nil
	case <-c.closed:
		return ErrChannelNotOpen
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) State() ChannelState { return ChannelState(c.state.Load()) }
func (c *Channel) Ordering() Ordering   { return c.ordering }
func (c *Channel) Label() string        { return c.raw.Label() }

// Opened is closed when the channel reaches Open.
func (c *Channel) Opened() <-chan struct{} { return c.opened }

// Closed is closed when the channel reaches Closed.
func (c *Channel) Closed() <-chan struct{} { return c.closed }

// Close closes the underlying channel. The Closed transition follows from
// its close callback, or immediately if it never opened.
func (c *Channel) Close() error {
	err := c.raw.Close()
	if c.State() == ChannelOpening {
		c.handleClose()
	}
	return err
}
