package callback

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/classplan-dev/authbridge/sdk/channel"
	"github.com/classplan-dev/authbridge/sdk/googleauth"
)

func TestHandleCallbackSuccess(t *testing.T) {
	t.Parallel()

	messages := channel.Loopback("https://app.local")
	got := make(chan channel.Message, 1)
	cancel := messages.Subscribe(func(msg channel.Message) { got <- msg })
	defer cancel()

	w := &window{id: "w1", messages: messages}
	srv := httptest.NewServer(http.HandlerFunc(w.handleCallback))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "?code=auth-code-9")
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	_ = resp.Body.Close()

	select {
	case msg := <-got:
		if msg.Type != googleauth.MsgTypeAuthSuccess {
			t.Errorf("Type = %q", msg.Type)
		}
		if code := gjson.GetBytes(msg.Data, "code").String(); code != "auth-code-9" {
			t.Errorf("code = %q", code)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestHandleCallbackError(t *testing.T) {
	t.Parallel()

	messages := channel.Loopback("https://app.local")
	got := make(chan channel.Message, 1)
	cancel := messages.Subscribe(func(msg channel.Message) { got <- msg })
	defer cancel()

	w := &window{id: "w1", messages: messages}
	srv := httptest.NewServer(http.HandlerFunc(w.handleCallback))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "?error=access_denied")
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	_ = resp.Body.Close()

	select {
	case msg := <-got:
		if msg.Type != googleauth.MsgTypeAuthError {
			t.Errorf("Type = %q", msg.Type)
		}
		if reason := gjson.GetBytes(msg.Data, "error").String(); reason != "access_denied" {
			t.Errorf("error = %q", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}
