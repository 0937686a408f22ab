package session

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pongnet/internal/rtc"
	"github.com/1ureka/pongnet/internal/signaling"
)

// Host is the offerer. It registers under a chosen name, waits for the
// answer, then consumes the answerer's candidates.
type Host struct {
	*core

	orderedGreeting   string
	unorderedGreeting string
}

var _ Session = (*Host)(nil)

// NewHost creates an offerer session that will register as name.
func NewHost(name string, opts Options) (*Host, error) {
	if name == "" {
		return nil, errors.New("session: host name required")
	}
	c, err := newCore(Offerer, opts)
	if err != nil {
		return nil, err
	}
	c.localName = name

	h := &Host{
		core:              c,
		orderedGreeting:   greeting(opts.OrderedGreeting, DefaultOrderedGreeting),
		unorderedGreeting: greeting(opts.UnorderedGreeting, DefaultUnorderedGreeting),
	}
	return h, nil
}

// Start begins the offerer handshake in the background.
func (h *Host) Start(ctx context.Context) error {
	return h.start(ctx, h.handshake)
}

func (h *Host) handshake() {
	// Created: channels and offer, then LocalDescriptionSet.
	var offer webrtc.SessionDescription
	err := h.do(func() error {
		if err := h.createChannels(); err != nil {
			return err
		}
		var err error
		if offer, err = h.conn.CreateOffer(); err != nil {
			return primitiveErr("create offer", err)
		}
		if err := h.conn.SetLocalDescription(offer); err != nil {
			return primitiveErr("set local description", err)
		}
		h.advance(LocalDescriptionSet)
		return nil
	})
	if err != nil {
		h.fail(err)
		return
	}

	// Register and wait for the answer. Candidates may flow once registered.
	h.log.Info("registering offer as %q", h.LocalName())
	answer, err := h.transport.SendOffer(h.ctx, h.LocalName(), offer,
		signaling.OnRegistered(func(remote string) {
			h.setRemoteName(remote)
			h.openGate()
		}),
	)
	if err != nil {
		h.fail(err)
		return
	}
	h.log.Info("answer received from %q", answer.RemoteName)

	err = h.do(func() error {
		if err := h.conn.SetRemoteDescription(answer.Description); err != nil {
			return primitiveErr("set remote description", err)
		}
		h.setRemoteName(answer.RemoteName)
		h.advance(RemoteDescriptionSet)
		return nil
	})
	if err != nil {
		h.fail(err)
		return
	}

	if err := h.transport.RegisterIceCandidateListener(h.ctx, h.RemoteName(), h.onRemoteCandidate); err != nil {
		h.fail(err)
		return
	}
	h.advance(Negotiating)
}

// createChannels opens the ordered and unordered channels. Runs on the loop.
func (h *Host) createChannels() error {
	specs := []struct {
		label    string
		ordered  bool
		greeting string
	}{
		{rtc.LabelOrdered, true, h.orderedGreeting},
		{rtc.LabelUnordered, false, h.unorderedGreeting},
	}
	for _, s := range specs {
		dc, err := h.conn.CreateDataChannel(s.label, s.ordered)
		if err != nil {
			return primitiveErr("create data channel "+s.label, err)
		}
		if _, err := h.channels.Attach(dc, s.greeting); err != nil {
			return err
		}
	}
	return nil
}

func greeting(opt *string, def string) string {
	if opt == nil {
		return def
	}
	return *opt
}
