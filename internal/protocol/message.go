// Package protocol defines the relay wire format: the JSON envelopes exchanged
// with the signaling relay and the double encoding of descriptions and ICE
// candidates inside them.
package protocol

// MessageType identifies the kind of payload posted to the relay.
type MessageType string

const (
	TypeOffer     MessageType = "offer"
	TypeAnswer    MessageType = "answer"
	TypeCandidate MessageType = "candidate"
)

// EndOfCandidates is the literal candidate payload that terminates a trickle.
const EndOfCandidates = "end"

// Relay endpoint paths and the header naming the peer a GET refers to.
const (
	PathPost          = "/webrtc"
	PathAnswer        = "/webrtc/answer"
	PathOffer         = "/webrtc/offer"
	PathIceCandidates = "/webrtc/ice_candidates"
	PathHealth        = "/health"

	HeaderPeerName = "peerName"
)

// PostRequest is the body of POST /webrtc. Payload is itself a JSON document
// (a description or candidate) serialized to a string, or EndOfCandidates.
type PostRequest struct {
	MessageType MessageType `json:"messageType"`
	PeerName    string      `json:"peerName"`
	Payload     string      `json:"payload"`
}

// Status is the outcome every relay response carries.
type Status struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Failure returns the relay's error text and true when the call did not succeed.
func (s *Status) Failure() (string, bool) {
	if s.Success {
		return "", false
	}
	if s.Error == "" {
		return "request rejected", true
	}
	return s.Error, true
}

// PostResponse answers POST /webrtc. ClientName is set only when an offer is
// registered and names the identity the relay assigns to the answerer.
type PostResponse struct {
	Status
	ClientName string `json:"clientName,omitempty"`
}

// AnswerResponse answers GET /webrtc/answer. A nil Answer means the answerer
// has not posted yet.
type AnswerResponse struct {
	Status
	Answer *string `json:"answer"`
}

// OfferResponse answers GET /webrtc/offer.
type OfferResponse struct {
	Status
	Offer      string `json:"offer,omitempty"`
	ClientName string `json:"clientName,omitempty"`
}

// CandidatesResponse answers GET /webrtc/ice_candidates. The slice is in
// discovery order; an EndOfCandidates element terminates the sequence.
type CandidatesResponse struct {
	Status
	Candidates []string `json:"candidates"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
