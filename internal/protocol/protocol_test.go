package protocol

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/pion/webrtc/v4"
)

func ptr[T any](v T) *T { return &v }

// TestCandidateRoundTrip verifies that encoding and decoding are inverse
// operations for candidates with and without optional fields.
func TestCandidateRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		c    webrtc.ICECandidateInit
	}{
		{
			name: "host candidate with mid and index",
			c: webrtc.ICECandidateInit{
				Candidate:     "candidate:1 1 udp 2130706431 10.0.0.1 50000 typ host",
				SDPMid:        ptr("0"),
				SDPMLineIndex: ptr(uint16(0)),
			},
		},
		{
			name: "srflx candidate with username fragment",
			c: webrtc.ICECandidateInit{
				Candidate:        "candidate:2 1 udp 1694498815 203.0.113.7 61000 typ srflx raddr 10.0.0.1 rport 50000",
				SDPMid:           ptr("0"),
				SDPMLineIndex:    ptr(uint16(0)),
				UsernameFragment: ptr("abcd"),
			},
		},
		{
			name: "bare candidate",
			c:    webrtc.ICECandidateInit{Candidate: "candidate:3 1 tcp 1 10.0.0.2 9 typ host tcptype active"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := EncodeCandidate(&tc.c)
			if err != nil {
				t.Fatalf("EncodeCandidate: %v", err)
			}
			got, err := DecodeCandidate(payload)
			if err != nil {
				t.Fatalf("DecodeCandidate: %v", err)
			}
			if got == nil || !reflect.DeepEqual(*got, tc.c) {
				t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, tc.c)
			}
		})
	}
}

func TestEndOfCandidates(t *testing.T) {
	payload, err := EncodeCandidate(nil)
	if err != nil {
		t.Fatalf("EncodeCandidate(nil): %v", err)
	}
	if payload != "end" {
		t.Fatalf("EncodeCandidate(nil) = %q, want %q", payload, "end")
	}
	if !IsEndOfCandidates(payload) {
		t.Fatal("IsEndOfCandidates(end) = false")
	}

	c, err := DecodeCandidate("end")
	if err != nil || c != nil {
		t.Fatalf("DecodeCandidate(end) = %v, %v; want nil, nil", c, err)
	}
}

func TestDecodeCandidateInvalid(t *testing.T) {
	if _, err := DecodeCandidate("{not json"); err == nil {
		t.Fatal("expected error for malformed candidate")
	}
}

func TestDescriptionRoundTrip(t *testing.T) {
	desc := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  "v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n",
	}
	payload, err := EncodeDescription(desc)
	if err != nil {
		t.Fatalf("EncodeDescription: %v", err)
	}

	// The payload is a JSON document in its own right.
	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if raw["type"] != "offer" {
		t.Fatalf("payload type = %v, want offer", raw["type"])
	}

	got, err := DecodeDescription(payload)
	if err != nil {
		t.Fatalf("DecodeDescription: %v", err)
	}
	if got.Type != desc.Type || got.SDP != desc.SDP {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestDecodeDescriptionInvalid(t *testing.T) {
	for _, payload := range []string{"", "null", `{"type":"answer"}`, "{"} {
		if _, err := DecodeDescription(payload); err == nil {
			t.Errorf("DecodeDescription(%q) succeeded, want error", payload)
		}
	}
}

// TestEnvelopeDoubleEncoding verifies that the payload survives as a string
// inside the outer envelope, byte for byte.
func TestEnvelopeDoubleEncoding(t *testing.T) {
	inner := `{"candidate":"candidate:1 1 udp 1 10.0.0.1 1 typ host","sdpMid":"0","sdpMLineIndex":0}`
	body, err := json.Marshal(PostRequest{MessageType: TypeCandidate, PeerName: "room1", Payload: inner})
	if err != nil {
		t.Fatal(err)
	}

	var generic map[string]any
	if err := json.Unmarshal(body, &generic); err != nil {
		t.Fatal(err)
	}
	if _, ok := generic["payload"].(string); !ok {
		t.Fatalf("payload should be a JSON string, got %T", generic["payload"])
	}

	var req PostRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatal(err)
	}
	if req.Payload != inner {
		t.Fatalf("payload altered:\n got  %s\n want %s", req.Payload, inner)
	}
}
