// Package session drives WebRTC negotiation over the signaling relay.
//
// A session owns one connection primitive and one identity pair. Host is the
// offerer and Client the answerer; both share the same core, which runs a
// single event loop per session. Every primitive mutation and every primitive
// callback goes through that loop, so a connection is never mutated from two
// goroutines at once. The handshake and the candidate trickle run in their
// own goroutines and post work to the loop.
package session

import (
	"context"
	"time"

	"github.com/1ureka/pongnet/internal/rtc"
	"github.com/1ureka/pongnet/internal/signaling"
	"github.com/1ureka/pongnet/internal/util"
)

// Role is the side of the handshake a session plays.
type Role int

const (
	Offerer Role = iota
	Answerer
)

func (r Role) String() string {
	if r == Offerer {
		return "host"
	}
	return "client"
}

// State is a session's position in the negotiation. States only move
// forward; Failed and Closed are terminal.
type State int

const (
	Created State = iota
	LocalDescriptionSet
	RemoteDescriptionSet
	Negotiating
	Connected
	Failed
	Closed
)

var stateNames = [...]string{
	Created:              "created",
	LocalDescriptionSet:  "local-description-set",
	RemoteDescriptionSet: "remote-description-set",
	Negotiating:          "negotiating",
	Connected:            "connected",
	Failed:               "failed",
	Closed:               "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Failed || s == Closed }

// Session is one negotiation handle, owned by the caller.
type Session interface {
	// Start launches the handshake and returns immediately. A session can
	// be started once.
	Start(ctx context.Context) error

	Role() Role
	State() State
	LocalName() string
	RemoteName() string
	TraceID() string

	// Err is the error that moved the session to Failed, or nil.
	Err() error

	// Connected is closed when the primitive reports a connection.
	Connected() <-chan struct{}

	// Done is closed after teardown: polling stopped and the primitive closed.
	Done() <-chan struct{}

	Channels() *rtc.Channels
	Stats() *util.Stats

	// Close tears the session down and waits for its goroutines to exit.
	Close() error
}

// Default greetings the host sends as a liveness check when each channel opens.
const (
	DefaultOrderedGreeting   = "Hello from the host!"
	DefaultUnorderedGreeting = "Hello from the host (unordered)!"
)

// Options configures a session. Transport and Connection are required; the
// session takes ownership of Connection and closes it on teardown.
type Options struct {
	Transport  signaling.Transport
	Connection rtc.Connection

	// Dispatcher receives inbound channel messages. A fresh one is created
	// when nil; register handlers through Channels().Dispatcher().
	Dispatcher *rtc.Dispatcher

	// Greetings sent by the host on open. Nil selects the defaults; an empty
	// string disables that greeting. The client never greets.
	OrderedGreeting   *string
	UnorderedGreeting *string

	// OnStateChange is called after every transition. It must not call Close.
	OnStateChange func(State)

	Logger *util.Logger
}

// WaitConnected blocks until s is Connected, s ends, or ctx is done.
func WaitConnected(ctx context.Context, s Session) error {
	select {
	case <-s.Connected():
		return nil
	case <-s.Done():
		if err := s.Err(); err != nil {
			return err
		}
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitChannels blocks until both data channels of a connected session are open.
func WaitChannels(ctx context.Context, s Session, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-s.Channels().Ready():
		return nil
	case <-s.Done():
		if err := s.Err(); err != nil {
			return err
		}
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
