package signaling

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pongnet/internal/protocol"
)

// SendOffer registers selfName with the offer, then polls for the answer.
// A rejected registration (for example a name collision) fails immediately
// with a RelayError. Polling swallows NotFoundError, NetworkError and
// rejections that carry no relay envelope (a bare 502 from a proxy); it stops
// only on an answer, an explicit success:false, or ctx ending.
func (t *HTTPTransport) SendOffer(ctx context.Context, selfName string, offer webrtc.SessionDescription, opts ...OfferOption) (Answer, error) {
	var o offerOptions
	for _, opt := range opts {
		opt(&o)
	}

	payload, err := protocol.EncodeDescription(offer)
	if err != nil {
		return Answer{}, err
	}

	var resp protocol.PostResponse
	msg := protocol.PostRequest{MessageType: protocol.TypeOffer, PeerName: selfName, Payload: payload}
	if err := t.post(ctx, opRegisterOffer, msg, &resp); err != nil {
		return Answer{}, err
	}
	if resp.ClientName == "" {
		return Answer{}, &RelayError{Op: opRegisterOffer, Status: 200, Message: "no client name assigned"}
	}
	t.log.Debug("offer registered as %q, answerer will be %q", selfName, resp.ClientName)

	if o.onRegistered != nil {
		o.onRegistered(resp.ClientName)
	}

	desc, err := t.waitForAnswer(ctx, selfName)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Description: desc, RemoteName: resp.ClientName}, nil
}

// SendAnswer posts the answer for the offerer remoteName.
func (t *HTTPTransport) SendAnswer(ctx context.Context, remoteName string, answer webrtc.SessionDescription) error {
	payload, err := protocol.EncodeDescription(answer)
	if err != nil {
		return err
	}

	var resp protocol.PostResponse
	msg := protocol.PostRequest{MessageType: protocol.TypeAnswer, PeerName: remoteName, Payload: payload}
	return t.post(ctx, opSendAnswer, msg, &resp)
}

// SendIceCandidate posts one candidate, or the end-of-trickle sentinel when
// candidate is nil. Sending the sentinel once per session is the caller's job.
func (t *HTTPTransport) SendIceCandidate(ctx context.Context, selfName string, candidate *webrtc.ICECandidateInit) error {
	payload, err := protocol.EncodeCandidate(candidate)
	if err != nil {
		return err
	}

	var resp protocol.PostResponse
	msg := protocol.PostRequest{MessageType: protocol.TypeCandidate, PeerName: selfName, Payload: payload}
	return t.post(ctx, opSendCandidate, msg, &resp)
}
