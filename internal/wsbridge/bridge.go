// Package wsbridge carries the cross-context message protocol over a
// websocket, so an application embedded by a separate host process can run
// the parent-session handshake against it. Both halves of the link expose
// the channel.MessageChannel capability.
package wsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/classplan-dev/authbridge/sdk/channel"
)

// envelope is the wire form of a channel.Message. Unlike the in-memory
// channel, origin travels inside the frame: each side stamps its own and
// filters on the advertised target.
type envelope struct {
	ID           string          `json:"id,omitempty"`
	Type         string          `json:"type"`
	Origin       string          `json:"origin,omitempty"`
	TargetOrigin string          `json:"targetOrigin,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// Bridge is one endpoint of a websocket message link.
type Bridge struct {
	conn       *websocket.Conn
	selfOrigin string

	writeMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]channel.Handler
	nextID int

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to a host bridge endpoint. selfOrigin is stamped on every
// outbound message.
func Dial(ctx context.Context, url, selfOrigin string) (*Bridge, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("wsbridge: dial %s failed: %w", url, err)
	}
	return newBridge(conn, selfOrigin), nil
}

// Upgrade accepts an inbound bridge connection on the host side.
func Upgrade(w http.ResponseWriter, r *http.Request, selfOrigin string) (*Bridge, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wsbridge: upgrade failed: %w", err)
	}
	return newBridge(conn, selfOrigin), nil
}

func newBridge(conn *websocket.Conn, selfOrigin string) *Bridge {
	b := &Bridge{
		conn:       conn,
		selfOrigin: selfOrigin,
		subs:       make(map[int]channel.Handler),
		done:       make(chan struct{}),
	}
	go b.readPump()
	return b
}

// Send writes msg to the peer, stamped with this side's origin.
func (b *Bridge) Send(msg channel.Message, targetOrigin string) error {
	env := envelope{
		ID:           msg.ID,
		Type:         msg.Type,
		Origin:       b.selfOrigin,
		TargetOrigin: targetOrigin,
		Data:         msg.Data,
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("wsbridge: marshal failed: %w", err)
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err = b.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("wsbridge: write failed: %w", err)
	}
	return nil
}

// Subscribe registers fn for inbound messages.
func (b *Bridge) Subscribe(fn channel.Handler) (cancel func()) {
	b.subMu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.subMu.Unlock()
	return func() {
		b.subMu.Lock()
		delete(b.subs, id)
		b.subMu.Unlock()
	}
}

// Close tears the link down. Pending reads finish with an error that ends
// the read pump.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		_ = b.conn.Close()
	})
}

// Done is closed when the link has shut down.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

func (b *Bridge) readPump() {
	defer b.Close()
	for {
		_, raw, err := b.conn.ReadMessage()
		if err != nil {
			select {
			case <-b.done:
			default:
				log.Debugf("wsbridge: read ended: %v", err)
			}
			return
		}
		var env envelope
		if errUnmarshal := json.Unmarshal(raw, &env); errUnmarshal != nil {
			log.Warnf("wsbridge: dropping malformed frame: %v", errUnmarshal)
			continue
		}
		if env.TargetOrigin != "" && env.TargetOrigin != channel.WildcardOrigin && env.TargetOrigin != b.selfOrigin {
			continue
		}
		msg := channel.Message{
			ID:     env.ID,
			Type:   env.Type,
			Origin: env.Origin,
			Data:   env.Data,
		}
		b.subMu.Lock()
		handlers := make([]channel.Handler, 0, len(b.subs))
		for _, fn := range b.subs {
			handlers = append(handlers, fn)
		}
		b.subMu.Unlock()
		for _, fn := range handlers {
			go fn(msg)
		}
	}
}
