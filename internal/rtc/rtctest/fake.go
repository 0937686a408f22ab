// Package rtctest provides in-memory Connection and DataChannel fakes for
// exercising negotiation and channel logic without a network.
package rtctest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/pongnet/internal/rtc"
)

// Sent is one message written to a fake channel.
type Sent struct {
	Data     []byte
	IsString bool
}

// DataChannel is a fake rtc.DataChannel. Linked pairs deliver each other's
// sends.
type DataChannel struct {
	label   string
	ordered bool

	mu        sync.Mutex
	state     webrtc.DataChannelState
	buffered  uint64
	threshold uint64
	sent      []Sent
	peer      *DataChannel

	onOpen    func()
	onClose   func()
	onMessage func(webrtc.DataChannelMessage)
	onLow     func()

	// SendErr, when set, fails every send.
	SendErr error
}

var _ rtc.DataChannel = (*DataChannel)(nil)

func NewDataChannel(label string, ordered bool) *DataChannel {
	return &DataChannel{label: label, ordered: ordered, state: webrtc.DataChannelStateConnecting}
}

// LinkChannels makes a and b deliver sends to each other.
func LinkChannels(a, b *DataChannel) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

func (d *DataChannel) Label() string { return d.label }
func (d *DataChannel) Ordered() bool { return d.ordered }

func (d *DataChannel) ReadyState() webrtc.DataChannelState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *DataChannel) OnOpen(fn func()) {
	d.mu.Lock()
	d.onOpen = fn
	open := d.state == webrtc.DataChannelStateOpen
	d.mu.Unlock()
	if open {
		go fn()
	}
}

func (d *DataChannel) OnClose(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClose = fn
}

func (d *DataChannel) OnMessage(fn func(webrtc.DataChannelMessage)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onMessage = fn
}

func (d *DataChannel) OnBufferedAmountLow(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onLow = fn
}

func (d *DataChannel) SetBufferedAmountLowThreshold(n uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = n
}

func (d *DataChannel) BufferedAmount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffered
}

// SetBufferedAmount simulates the send buffer filling or draining. Dropping
// to or below the threshold fires the low-water callback.
func (d *DataChannel) SetBufferedAmount(n uint64) {
	d.mu.Lock()
	prev := d.buffered
	d.buffered = n
	fire := prev > d.threshold && n <= d.threshold
	fn := d.onLow
	d.mu.Unlock()
	if fire && fn != nil {
		fn()
	}
}

func (d *DataChannel) Send(data []byte) error { return d.send(data, false) }

func (d *DataChannel) SendText(s string) error { return d.send([]byte(s), true) }

func (d *DataChannel) send(data []byte, isString bool) error {
	d.mu.Lock()
	if d.SendErr != nil {
		d.mu.Unlock()
		return d.SendErr
	}
	if d.state != webrtc.DataChannelStateOpen {
		d.mu.Unlock()
		return errors.New("fake data channel not open")
	}
	buf := append([]byte(nil), data...)
	d.sent = append(d.sent, Sent{Data: buf, IsString: isString})
	peer := d.peer
	d.mu.Unlock()

	if peer != nil {
		peer.Deliver(buf, isString)
	}
	return nil
}

// Sent returns a copy of every message written so far.
func (d *DataChannel) Sent() []Sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Sent(nil), d.sent...)
}

// Open moves the channel to open and fires the open callback.
func (d *DataChannel) Open() {
	d.mu.Lock()
	if d.state != webrtc.DataChannelStateConnecting {
		d.mu.Unlock()
		return
	}
	d.state = webrtc.DataChannelStateOpen
	fn := d.onOpen
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Deliver simulates an inbound message.
func (d *DataChannel) Deliver(data []byte, isString bool) {
	d.mu.Lock()
	fn := d.onMessage
	d.mu.Unlock()
	if fn != nil {
		fn(webrtc.DataChannelMessage{IsString: isString, Data: data})
	}
}

func (d *DataChannel) Close() error {
	d.mu.Lock()
	if d.state == webrtc.DataChannelStateClosed {
		d.mu.Unlock()
		return nil
	}
	d.state = webrtc.DataChannelStateClosed
	fn := d.onClose
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// Connection is a fake rtc.Connection. Setting a local description
// "gathers" Gather and then signals end of gathering. Once both descriptions
// are set and ConnectAfter remote candidates were added, it reports
// Connected and, when linked, opens mirrored data channels on the peer.
type Connection struct {
	Name string

	// Gather is the candidate sequence emitted after SetLocalDescription.
	Gather []webrtc.ICECandidateInit
	// ConnectAfter is the number of remote candidates required to connect.
	ConnectAfter int

	// Injected failures.
	CreateOfferErr  error
	CreateAnswerErr error
	SetLocalErr     error
	SetRemoteErr    error
	AddCandidateErr error

	mu         sync.Mutex
	calls      []string
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	channels   []*DataChannel
	peer       *Connection
	connected  bool
	closed     bool

	onICE   func(*webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	onDC    func(rtc.DataChannel)

	active  atomic.Int32
	overlap atomic.Bool
}

var _ rtc.Connection = (*Connection)(nil)

func NewConnection(name string) *Connection {
	return &Connection{Name: name, ConnectAfter: 1}
}

// Link pairs an offerer's and an answerer's connections so channels created
// on one appear on the other when they connect.
func Link(offerer, answerer *Connection) {
	offerer.mu.Lock()
	offerer.peer = answerer
	offerer.mu.Unlock()
	answerer.mu.Lock()
	answerer.peer = offerer
	answerer.mu.Unlock()
}

// enter records a mutating call and flags overlapping ones.
func (c *Connection) enter(name string) func() {
	if c.active.Add(1) > 1 {
		c.overlap.Store(true)
	}
	c.mu.Lock()
	c.calls = append(c.calls, name)
	c.mu.Unlock()
	time.Sleep(50 * time.Microsecond)
	return func() { c.active.Add(-1) }
}

// Overlapped reports whether two mutating calls ever ran concurrently.
func (c *Connection) Overlapped() bool { return c.overlap.Load() }

// Calls returns the mutating calls made so far, in order.
func (c *Connection) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	defer c.enter("CreateOffer")()
	if c.CreateOfferErr != nil {
		return webrtc.SessionDescription{}, c.CreateOfferErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\ns=" + c.Name + "-offer\r\n"}, nil
}

func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	defer c.enter("CreateAnswer")()
	if c.CreateAnswerErr != nil {
		return webrtc.SessionDescription{}, c.CreateAnswerErr
	}
	c.mu.Lock()
	hasRemote := c.remote != nil
	c.mu.Unlock()
	if !hasRemote {
		return webrtc.SessionDescription{}, errors.New("fake: answer without remote offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\ns=" + c.Name + "-answer\r\n"}, nil
}

func (c *Connection) SetLocalDescription(d webrtc.SessionDescription) error {
	defer c.enter("SetLocalDescription")()
	if c.SetLocalErr != nil {
		return c.SetLocalErr
	}
	c.mu.Lock()
	c.local = &d
	gather := append([]webrtc.ICECandidateInit(nil), c.Gather...)
	fn := c.onICE
	c.mu.Unlock()

	if fn != nil {
		go func() {
			for i := range gather {
				fn(&gather[i])
			}
			fn(nil)
		}()
	}
	c.maybeConnect()
	return nil
}

func (c *Connection) SetRemoteDescription(d webrtc.SessionDescription) error {
	defer c.enter("SetRemoteDescription")()
	if c.SetRemoteErr != nil {
		return c.SetRemoteErr
	}
	c.mu.Lock()
	c.remote = &d
	c.mu.Unlock()
	c.maybeConnect()
	return nil
}

func (c *Connection) AddICECandidate(cand webrtc.ICECandidateInit) error {
	defer c.enter("AddICECandidate")()
	if c.AddCandidateErr != nil {
		return c.AddCandidateErr
	}
	c.mu.Lock()
	c.candidates = append(c.candidates, cand)
	c.mu.Unlock()
	c.maybeConnect()
	return nil
}

// RemoteCandidates returns the candidates added so far.
func (c *Connection) RemoteCandidates() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), c.candidates...)
}

// LocalDescription returns the local description, if set.
func (c *Connection) LocalDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

// RemoteDescription returns the remote description, if set.
func (c *Connection) RemoteDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *Connection) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *Connection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *Connection) OnDataChannel(fn func(rtc.DataChannel)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDC = fn
}

func (c *Connection) CreateDataChannel(label string, ordered bool) (rtc.DataChannel, error) {
	defer c.enter("CreateDataChannel")()
	dc := NewDataChannel(label, ordered)
	c.mu.Lock()
	c.channels = append(c.channels, dc)
	c.mu.Unlock()
	return dc, nil
}

// Channels returns the channels created locally.
func (c *Connection) Channels() []*DataChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*DataChannel(nil), c.channels...)
}

// SetState fires the connection state callback.
func (c *Connection) SetState(s webrtc.PeerConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *Connection) maybeConnect() {
	c.mu.Lock()
	ready := !c.connected && !c.closed && c.local != nil && c.remote != nil && len(c.candidates) >= c.ConnectAfter
	if ready {
		c.connected = true
	}
	peer := c.peer
	channels := append([]*DataChannel(nil), c.channels...)
	c.mu.Unlock()
	if !ready {
		return
	}

	go func() {
		c.SetState(webrtc.PeerConnectionStateConnecting)
		c.SetState(webrtc.PeerConnectionStateConnected)
		if peer == nil {
			for _, dc := range channels {
				dc.Open()
			}
			return
		}
		for _, dc := range channels {
			peer.acceptChannel(dc)
		}
	}()
}

// acceptChannel mirrors a remote channel locally and opens both ends.
func (c *Connection) acceptChannel(remote *DataChannel) {
	local := NewDataChannel(remote.label, remote.ordered)
	LinkChannels(local, remote)

	c.mu.Lock()
	fn := c.onDC
	c.mu.Unlock()
	if fn != nil {
		fn(local)
	}
	local.Open()
	remote.Open()
}

func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	channels := append([]*DataChannel(nil), c.channels...)
	c.mu.Unlock()

	for _, dc := range channels {
		dc.Close()
	}
	c.SetState(webrtc.PeerConnectionStateClosed)
	return nil
}

// Closed reports whether Close was called.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) String() string {
	return fmt.Sprintf("fake(%s)", c.Name)
}
