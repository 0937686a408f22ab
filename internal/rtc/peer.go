// Package rtc is the boundary to the WebRTC connection primitive. Sessions
// depend on the Connection and DataChannel interfaces; Peer adapts a pion
// PeerConnection to them.
package rtc

import (
	"github.com/pion/webrtc/v4"
)

// STUN servers used when none are configured. No TURN: connectivity is
// direct peer-to-peer or nothing.
var DefaultICEServers = []string{
	"stun:relay.metered.ca:80",
	"stun:stun.l.google.com:19302",
}

// Channel labels. The ordered channel is reliable; the unordered one is not.
const (
	LabelOrdered   = "orderedData"
	LabelUnordered = "unorderedData"
)

// Connection is the negotiation primitive a session drives. Implementations
// need not be safe for concurrent mutation; the session serializes calls.
type Connection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error

	// OnICECandidate receives each local candidate; nil marks the end of
	// gathering.
	OnICECandidate(func(*webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnDataChannel(func(DataChannel))

	CreateDataChannel(label string, ordered bool) (DataChannel, error)
	Close() error
}

// DataChannel is the subset of a pion DataChannel the lifecycle uses.
// *webrtc.DataChannel satisfies it directly.
type DataChannel interface {
	Label() string
	Ordered() bool
	ReadyState() webrtc.DataChannelState

	OnOpen(func())
	OnClose(func())
	OnMessage(func(webrtc.DataChannelMessage))

	Send([]byte) error
	SendText(string) error

	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(uint64)
	OnBufferedAmountLow(func())

	Close() error
}

var _ DataChannel = (*webrtc.DataChannel)(nil)

// Config selects the ICE servers and, optionally, a custom pion API (for
// example one bound to a virtual network).
type Config struct {
	ICEServers []string
	API        *webrtc.API
}

// Peer adapts *webrtc.PeerConnection to Connection.
type Peer struct {
	pc *webrtc.PeerConnection
}

var _ Connection = (*Peer)(nil)

// NewPeer creates a PeerConnection configured with cfg's ICE servers.
func NewPeer(cfg Config) (*Peer, error) {
	servers := cfg.ICEServers
	if servers == nil {
		servers = DefaultICEServers
	}

	config := webrtc.Configuration{}
	if len(servers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: servers}}
	}

	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if cfg.API != nil {
		pc, err = cfg.API.NewPeerConnection(config)
	} else {
		pc, err = webrtc.NewPeerConnection(config)
	}
	if err != nil {
		return nil, err
	}
	return &Peer{pc: pc}, nil
}

func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *Peer) SetLocalDescription(d webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(d)
}

func (p *Peer) SetRemoteDescription(d webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(d)
}

func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		fn(&init)
	})
}

func (p *Peer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(fn)
}

func (p *Peer) OnDataChannel(fn func(DataChannel)) {
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) { fn(dc) })
}

// CreateDataChannel creates an in-band negotiated channel; the remote side
// receives it through OnDataChannel.
func (p *Peer) CreateDataChannel(label string, ordered bool) (DataChannel, error) {
	dc, err := p.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}
	return dc, nil
}

func (p *Peer) Close() error {
	return p.pc.Close()
}
