package rtc

import (
	"sync"
)

// Ordering is a channel's delivery mode and the key inbound messages are
// dispatched by.
type Ordering int

const (
	Ordered Ordering = iota
	Unordered
)

func (o Ordering) String() string {
	if o == Ordered {
		return "ordered"
	}
	return "unordered"
}

// OrderingOf classifies a channel by its ordered flag.
func OrderingOf(dc DataChannel) Ordering {
	if dc.Ordered() {
		return Ordered
	}
	return Unordered
}

// Message is one inbound data channel message.
type Message struct {
	Ordering Ordering
	Label    string
	Data     []byte
	IsString bool
}

// Handler consumes inbound messages. It runs on the channel's callback
// goroutine and should not block.
type Handler func(Message)

// Dispatcher maintains the ordering → handler route table. Channels use it
// to hand inbound messages to whatever the application registered.
type Dispatcher struct {
	mu         sync.RWMutex
	routeTable map[Ordering]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{routeTable: make(map[Ordering]Handler)}
}

// Register installs h for o, replacing any previous handler.
func (d *Dispatcher) Register(o Ordering, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routeTable[o] = h
}

func (d *Dispatcher) Unregister(o Ordering) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.routeTable, o)
}

// Route looks up the handler for o.
func (d *Dispatcher) Route(o Ordering) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.routeTable[o]
	return h, ok
}

// Dispatch delivers m to its handler. It reports false when none is registered.
func (d *Dispatcher) Dispatch(m Message) bool {
	h, ok := d.Route(m.Ordering)
	if !ok {
		return false
	}
	h(m)
	return true
}
