// Package signaling exchanges session descriptions and trickled ICE candidates
// through an HTTP relay. The relay has no push channel: sends are one-shot
// POSTs and receives are fixed-interval polling loops. All retry policy lives
// here so the negotiation state machine above stays free of polling concerns.
package signaling

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Offer is a registered offer fetched from the relay, together with the
// identity the relay assigned to the caller.
type Offer struct {
	Description webrtc.SessionDescription
	SelfName    string
}

// Answer is the remote answer to a registered offer, together with the
// identity the relay assigned to the answerer.
type Answer struct {
	Description webrtc.SessionDescription
	RemoteName  string
}

// CandidateHandler receives remote candidates in discovery order. It is never
// called with the end-of-trickle sentinel.
type CandidateHandler func(webrtc.ICECandidateInit)

// Transport is a stateless client of the signaling relay.
type Transport interface {
	// SendOffer registers selfName with the offer and blocks, polling, until
	// a matching answer is posted.
	SendOffer(ctx context.Context, selfName string, offer webrtc.SessionDescription, opts ...OfferOption) (Answer, error)

	// GetOffer fetches the offer registered under remoteName. It does not
	// retry: a missing offer yields a NotFoundError.
	GetOffer(ctx context.Context, remoteName string) (Offer, error)

	// SendAnswer posts the answer for the offerer remoteName.
	SendAnswer(ctx context.Context, remoteName string, answer webrtc.SessionDescription) error

	// SendIceCandidate appends one candidate to selfName's queue on the relay.
	// A nil candidate posts the end-of-trickle sentinel.
	SendIceCandidate(ctx context.Context, selfName string, candidate *webrtc.ICECandidateInit) error

	// RegisterIceCandidateListener starts delivering remoteName's candidates to
	// fn. Polling stops after the end-of-trickle sentinel or when ctx ends.
	RegisterIceCandidateListener(ctx context.Context, remoteName string, fn CandidateHandler) error
}

// OfferOption customizes SendOffer.
type OfferOption func(*offerOptions)

type offerOptions struct {
	onRegistered func(remoteName string)
}

// OnRegistered sets a callback invoked once the relay has accepted the offer
// registration, before answer polling starts. It receives the name the relay
// assigned to the answerer.
func OnRegistered(fn func(remoteName string)) OfferOption {
	return func(o *offerOptions) { o.onRegistered = fn }
}
