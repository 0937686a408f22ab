package session

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pongnet/internal/rtc"
)

// event is a unit of work for the session loop.
type event interface{ isEvent() }

// localCandidate: the primitive discovered a candidate; nil ends gathering.
type localCandidate struct{ c *webrtc.ICECandidateInit }

// remoteCandidate: the listener fetched a candidate from the peer.
type remoteCandidate struct{ c webrtc.ICECandidateInit }

// connectionState: the primitive's connection state changed.
type connectionState struct{ s webrtc.PeerConnectionState }

// dataChannel: the answerer received a channel.
type dataChannel struct {
	ch *rtc.Channel
}

// op runs fn against the primitive on the loop and replies with its error.
type op struct {
	fn    func() error
	reply chan error
}

func (localCandidate) isEvent()  {}
func (remoteCandidate) isEvent() {}
func (connectionState) isEvent() {}
func (dataChannel) isEvent()     {}
func (op) isEvent()              {}
