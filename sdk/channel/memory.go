package channel

import (
	"sync"

	"github.com/google/uuid"
)

// Endpoint is an in-process MessageChannel half. Two endpoints created by
// Pair deliver to each other; an endpoint created by Loopback delivers to
// its own subscribers. Delivery is asynchronous, one goroutine per message,
// matching the event-queue semantics of the browser original.
type Endpoint struct {
	mu     sync.Mutex
	origin string
	peer   *Endpoint
	nextID int
	subs   map[int]Handler
}

// Pair creates two linked endpoints. Messages sent on parent arrive at
// child's subscribers stamped with parentOrigin, and vice versa.
func Pair(parentOrigin, childOrigin string) (parent, child *Endpoint) {
	parent = &Endpoint{origin: parentOrigin, subs: make(map[int]Handler)}
	child = &Endpoint{origin: childOrigin, subs: make(map[int]Handler)}
	parent.peer = child
	child.peer = parent
	return parent, child
}

// Loopback creates an endpoint whose sends are delivered to its own
// subscribers, stamped with origin. It wires same-process producers such as
// the local OAuth callback server to an in-process consumer.
func Loopback(origin string) *Endpoint {
	e := &Endpoint{origin: origin, subs: make(map[int]Handler)}
	e.peer = e
	return e
}

// Origin returns the origin this endpoint stamps on outbound messages.
func (e *Endpoint) Origin() string {
	return e.origin
}

// Send delivers msg to the peer endpoint's subscribers. The target origin
// must match the peer's origin unless it is WildcardOrigin; a mismatched
// send is dropped silently, as the browser does.
func (e *Endpoint) Send(msg Message, targetOrigin string) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Origin = e.origin
	peer := e.peer
	if peer == nil {
		return nil
	}
	if targetOrigin != WildcardOrigin && targetOrigin != peer.origin {
		return nil
	}
	peer.dispatch(msg)
	return nil
}

// Subscribe registers fn for inbound messages.
func (e *Endpoint) Subscribe(fn Handler) (cancel func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *Endpoint) dispatch(msg Message) {
	e.mu.Lock()
	handlers := make([]Handler, 0, len(e.subs))
	for _, fn := range e.subs {
		handlers = append(handlers, fn)
	}
	e.mu.Unlock()
	for _, fn := range handlers {
		go fn(msg)
	}
}
