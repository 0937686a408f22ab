package signaling

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pongnet/internal/protocol"
)

// GetOffer fetches the offer registered under remoteName. It is a single
// request; when the host has not registered yet the error is a NotFoundError.
func (t *HTTPTransport) GetOffer(ctx context.Context, remoteName string) (Offer, error) {
	var resp protocol.OfferResponse
	if err := t.get(ctx, opGetOffer, protocol.PathOffer, remoteName, &resp); err != nil {
		return Offer{}, err
	}
	if resp.Offer == "" {
		return Offer{}, &NotFoundError{Op: opGetOffer, Name: remoteName}
	}

	desc, err := protocol.DecodeDescription(resp.Offer)
	if err != nil {
		return Offer{}, &RelayError{Op: opGetOffer, Status: 200, Message: err.Error()}
	}
	return Offer{Description: desc, SelfName: resp.ClientName}, nil
}

// waitForAnswer polls until the answer to selfName's offer is posted.
func (t *HTTPTransport) waitForAnswer(ctx context.Context, selfName string) (webrtc.SessionDescription, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		var resp protocol.AnswerResponse
		err := t.get(ctx, opPollAnswer, protocol.PathAnswer, selfName, &resp)
		switch {
		case ctx.Err() != nil:
			return webrtc.SessionDescription{}, ctx.Err()

		case err == nil && resp.Answer != nil && *resp.Answer != "":
			desc, err := protocol.DecodeDescription(*resp.Answer)
			if err != nil {
				return desc, &RelayError{Op: opPollAnswer, Status: 200, Message: err.Error()}
			}
			return desc, nil

		case err == nil:
			// Not answered yet.

		case transient(err):
			t.log.Debug("answer poll: %v", err)

		default:
			return webrtc.SessionDescription{}, err
		}

		if !wait(ctx, ticker) {
			return webrtc.SessionDescription{}, ctx.Err()
		}
	}
}

// RegisterIceCandidateListener starts a goroutine that polls remoteName's
// candidate queue and delivers each candidate to fn in order. Only one
// listener per remote name may run on a transport at a time; a listener
// whose ctx has ended no longer holds its slot, even while its goroutine is
// still unwinding.
func (t *HTTPTransport) RegisterIceCandidateListener(ctx context.Context, remoteName string, fn CandidateHandler) error {
	l := &listener{ctx: ctx}

	t.mu.Lock()
	if prev, ok := t.listeners[remoteName]; ok && prev.ctx.Err() == nil {
		t.mu.Unlock()
		return ErrListenerRegistered
	}
	t.listeners[remoteName] = l
	t.mu.Unlock()

	go func() {
		defer func() {
			t.mu.Lock()
			if t.listeners[remoteName] == l {
				delete(t.listeners, remoteName)
			}
			t.mu.Unlock()
		}()
		t.listen(ctx, remoteName, fn)
	}()
	return nil
}

// listen is the candidate polling loop. Phase 1 fetches and drains a batch;
// phase 2 waits one interval. It returns after the sentinel or when ctx ends.
func (t *HTTPTransport) listen(ctx context.Context, remoteName string, fn CandidateHandler) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		var resp protocol.CandidatesResponse
		err := t.get(ctx, opPollCandidates, protocol.PathIceCandidates, remoteName, &resp)
		switch {
		case ctx.Err() != nil:
			return
		case err == nil:
			if t.deliver(ctx, remoteName, resp.Candidates, fn) {
				t.log.Debug("candidates from %q complete", remoteName)
				return
			}
		case transient(err):
			t.log.Debug("candidate poll: %v", err)
		default:
			t.log.Warn("candidate poll: %v", err)
		}

		if !wait(ctx, ticker) {
			return
		}
	}
}

// deliver hands a batch to fn and reports whether the sentinel was reached.
// Payloads after the sentinel are ignored.
func (t *HTTPTransport) deliver(ctx context.Context, remoteName string, batch []string, fn CandidateHandler) bool {
	for _, payload := range batch {
		if ctx.Err() != nil {
			return false
		}
		if protocol.IsEndOfCandidates(payload) {
			return true
		}
		c, err := protocol.DecodeCandidate(payload)
		if err != nil {
			t.log.Warn("dropping candidate from %q: %v", remoteName, err)
			continue
		}
		fn(*c)
	}
	return false
}
