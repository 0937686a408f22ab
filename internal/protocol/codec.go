package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// EncodeDescription serializes a session description into the string payload
// carried inside the relay envelope.
func EncodeDescription(desc webrtc.SessionDescription) (string, error) {
	data, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("encode description: %w", err)
	}
	return string(data), nil
}

// DecodeDescription parses a description payload produced by EncodeDescription
// (or by a browser's JSON.stringify of an RTCSessionDescriptionInit).
func DecodeDescription(payload string) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if payload == "" {
		return desc, fmt.Errorf("decode description: empty payload")
	}
	if err := json.Unmarshal([]byte(payload), &desc); err != nil {
		return desc, fmt.Errorf("decode description: %w", err)
	}
	if desc.SDP == "" {
		return desc, fmt.Errorf("decode description: missing sdp")
	}
	return desc, nil
}

// EncodeCandidate serializes a candidate payload. A nil candidate encodes to
// EndOfCandidates.
func EncodeCandidate(c *webrtc.ICECandidateInit) (string, error) {
	if c == nil {
		return EndOfCandidates, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode candidate: %w", err)
	}
	return string(data), nil
}

// DecodeCandidate parses a candidate payload. It returns (nil, nil) for the
// EndOfCandidates sentinel.
func DecodeCandidate(payload string) (*webrtc.ICECandidateInit, error) {
	if IsEndOfCandidates(payload) {
		return nil, nil
	}
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("decode candidate: %w", err)
	}
	return &c, nil
}

// IsEndOfCandidates reports whether payload is the end-of-trickle sentinel.
func IsEndOfCandidates(payload string) bool {
	return payload == EndOfCandidates
}
