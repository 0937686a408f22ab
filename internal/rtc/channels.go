package rtc

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Channels is a session's pair of data channels, one per Ordering. The
// offerer attaches the channels it creates; the answerer attaches those it
// receives and they are classified by their ordered flag.
type Channels struct {
	opts ChannelOptions

	mu    sync.Mutex
	slots [2]*Channel

	openCount atomic.Int32
	ready     chan struct{}
}

// NewChannels returns an empty pair. opts.Greeting is ignored; greetings are
// given per channel to Attach.
func NewChannels(opts ChannelOptions) *Channels {
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewDispatcher()
	}
	return &Channels{opts: opts, ready: make(chan struct{})}
}

// Attach wraps raw and stores it under its ordering. A second channel with
// the same ordering is rejected.
func (cs *Channels) Attach(raw DataChannel, greeting string) (*Channel, error) {
	o := OrderingOf(raw)

	cs.mu.Lock()
	if cs.slots[o] != nil {
		cs.mu.Unlock()
		return nil, fmt.Errorf("attach %q: %s channel already attached", raw.Label(), o)
	}
	opts := cs.opts
	opts.Greeting = greeting
	ch := NewChannel(raw, opts)
	cs.slots[o] = ch
	cs.mu.Unlock()

	go func() {
		select {
		case <-ch.Opened():
			if cs.openCount.Add(1) == int32(len(cs.slots)) {
				close(cs.ready)
			}
		case <-ch.Closed():
		}
	}()
	return ch, nil
}

// Get returns the channel for o, or nil if none is attached yet.
func (cs *Channels) Get(o Ordering) *Channel {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.slots[o]
}

// Dispatcher returns the route table inbound messages go through.
func (cs *Channels) Dispatcher() *Dispatcher { return cs.opts.Dispatcher }

// Ready is closed once both channels are Open.
func (cs *Channels) Ready() <-chan struct{} { return cs.ready }

// Close closes every attached channel.
func (cs *Channels) Close() error {
	cs.mu.Lock()
	slots := cs.slots
	cs.mu.Unlock()

	var errs []error
	for _, ch := range slots {
		if ch != nil {
			errs = append(errs, ch.Close())
		}
	}
	return errors.Join(errs...)
}
