package session

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pongnet/internal/rtc"
)

// Client is the answerer. It fetches the offer registered under the host's
// name once; joining before the host registered fails with a
// signaling.NotFoundError and a new session must be created to try again.
type Client struct {
	*core
}

var _ Session = (*Client)(nil)

// NewClient creates an answerer session that will join host.
func NewClient(host string, opts Options) (*Client, error) {
	if host == "" {
		return nil, errors.New("session: host name required")
	}
	c, err := newCore(Answerer, opts)
	if err != nil {
		return nil, err
	}
	c.remoteName = host

	cl := &Client{core: c}
	c.conn.OnDataChannel(cl.acceptChannel)
	return cl, nil
}

// Start begins the answerer handshake in the background.
func (cl *Client) Start(ctx context.Context) error {
	return cl.start(ctx, cl.handshake)
}

func (cl *Client) handshake() {
	host := cl.RemoteName()

	cl.log.Info("fetching offer from %q", host)
	offer, err := cl.transport.GetOffer(cl.ctx, host)
	if err != nil {
		cl.fail(err)
		return
	}

	// Remote description first, then the answer. LocalDescriptionSet is
	// subsumed: the state stays at RemoteDescriptionSet.
	var answer webrtc.SessionDescription
	err = cl.do(func() error {
		if err := cl.conn.SetRemoteDescription(offer.Description); err != nil {
			return primitiveErr("set remote description", err)
		}
		cl.setLocalName(offer.SelfName)
		cl.advance(RemoteDescriptionSet)

		var err error
		if answer, err = cl.conn.CreateAnswer(); err != nil {
			return primitiveErr("create answer", err)
		}
		if err := cl.conn.SetLocalDescription(answer); err != nil {
			return primitiveErr("set local description", err)
		}
		return nil
	})
	if err != nil {
		cl.fail(err)
		return
	}

	// The relay registered our name together with the host's offer.
	cl.openGate()

	if err := cl.transport.SendAnswer(cl.ctx, host, answer); err != nil {
		cl.fail(err)
		return
	}
	cl.log.Info("answer sent as %q", cl.LocalName())

	if err := cl.transport.RegisterIceCandidateListener(cl.ctx, host, cl.onRemoteCandidate); err != nil {
		cl.fail(err)
		return
	}
	cl.advance(Negotiating)
}

// acceptChannel wraps an incoming channel before returning to the primitive
// so no early message is missed, then reports it to the loop.
func (cl *Client) acceptChannel(dc rtc.DataChannel) {
	ch, err := cl.channels.Attach(dc, "")
	if err != nil {
		cl.log.Warn("rejecting channel %q: %v", dc.Label(), err)
		dc.Close()
		return
	}
	cl.post(dataChannel{ch: ch})
}
