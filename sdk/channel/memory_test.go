package channel

import (
	"testing"
	"time"
)

func TestPairDelivery(t *testing.T) {
	t.Parallel()

	parent, child := Pair("https://host.example", "https://app.example")
	got := make(chan Message, 1)
	cancel := parent.Subscribe(func(msg Message) { got <- msg })
	defer cancel()

	if err := child.Send(Message{Type: "REQUEST_API_VALUES"}, WildcardOrigin); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case msg := <-got:
		if msg.Type != "REQUEST_API_VALUES" {
			t.Errorf("Type = %q", msg.Type)
		}
		if msg.Origin != "https://app.example" {
			t.Errorf("Origin = %q, want sender origin", msg.Origin)
		}
		if msg.ID == "" {
			t.Error("ID not assigned by transport")
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestSendToMismatchedOriginIsDropped(t *testing.T) {
	t.Parallel()

	parent, child := Pair("https://host.example", "https://app.example")
	got := make(chan Message, 1)
	cancel := parent.Subscribe(func(msg Message) { got <- msg })
	defer cancel()

	if err := child.Send(Message{Type: "x"}, "https://other.example"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case <-got:
		t.Fatal("mismatched target origin delivered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	t.Parallel()

	parent, child := Pair("a", "b")
	got := make(chan Message, 4)
	cancel := parent.Subscribe(func(msg Message) { got <- msg })
	cancel()

	_ = child.Send(Message{Type: "x"}, WildcardOrigin)

	select {
	case <-got:
		t.Fatal("cancelled subscriber received message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoopback(t *testing.T) {
	t.Parallel()

	e := Loopback("https://app.example")
	got := make(chan Message, 1)
	cancel := e.Subscribe(func(msg Message) { got <- msg })
	defer cancel()

	_ = e.Send(Message{Type: "GOOGLE_AUTH_SUCCESS"}, WildcardOrigin)

	select {
	case msg := <-got:
		if msg.Origin != "https://app.example" {
			t.Errorf("Origin = %q, want own origin", msg.Origin)
		}
	case <-time.After(time.Second):
		t.Fatal("loopback message not delivered")
	}
}
