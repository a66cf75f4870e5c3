// Package channel defines the cross-context messaging capability used for
// the parent-frame handshake and the authorization-window result protocol.
// A channel stands in for browser postMessage: every inbound message carries
// the origin its sender claims, and subscribers decide what to trust.
package channel

// WildcardOrigin targets any origin on Send, mirroring postMessage("*").
const WildcardOrigin = "*"

// Message is the JSON envelope exchanged between contexts.
type Message struct {
	// ID is a transport-assigned identifier, useful for tracing.
	ID string `json:"id,omitempty"`
	// Type discriminates the protocol message kind.
	Type string `json:"type"`
	// Origin is the sender's origin as observed by the transport. It is
	// metadata, never part of the serialized payload.
	Origin string `json:"-"`
	// Data holds the raw JSON payload, if any.
	Data []byte `json:"data,omitempty"`
}

// Handler receives inbound messages. Handlers run on the transport's
// delivery goroutine and must not block.
type Handler func(Message)

// MessageChannel is one endpoint of a cross-context message link.
type MessageChannel interface {
	// Send delivers msg to the peer context. targetOrigin restricts which
	// peer origin may receive it; WildcardOrigin disables the restriction.
	Send(msg Message, targetOrigin string) error
	// Subscribe registers a handler for inbound messages and returns a
	// function that unregisters it. After cancel returns no new deliveries
	// reach the handler; in-flight deliveries may still complete.
	Subscribe(fn Handler) (cancel func())
}
