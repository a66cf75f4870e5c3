// Package callback is the production PopupLauncher: it opens the provider's
// authorization page in the system browser and runs a local HTTP server
// that converts the OAuth redirect into the same success/error messages an
// embedding host's window would post.
package callback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"github.com/classplan-dev/authbridge/internal/browser"
	"github.com/classplan-dev/authbridge/sdk/channel"
	"github.com/classplan-dev/authbridge/sdk/googleauth"
)

const callbackPath = "/oauth2callback"

// Launcher opens authorization windows backed by the system browser.
type Launcher struct {
	// Port is the local callback server port. It must match the port in
	// the registered OAuth redirect URL.
	Port int
	// Messages receives the converted GOOGLE_AUTH_SUCCESS / GOOGLE_AUTH_ERROR
	// messages; share the endpoint with the flow controller.
	Messages channel.MessageChannel
	// NoBrowser prints the URL instead of opening a browser.
	NoBrowser bool
}

// Open starts the callback server and presents the authorization URL.
func (l *Launcher) Open(authURL string) (googleauth.Popup, error) {
	w := &window{
		id:       uuid.NewString(),
		messages: l.Messages,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, w.handleCallback)
	w.server = &http.Server{Addr: fmt.Sprintf(":%d", l.Port), Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	// Give a port conflict a moment to surface before involving the browser.
	select {
	case err := <-errCh:
		return nil, fmt.Errorf("callback: server start failed: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	if l.NoBrowser || !browser.IsAvailable() {
		fmt.Printf("Visit the following URL to continue authentication:\n%s\n", authURL)
	} else if err := browser.OpenURL(authURL); err != nil {
		log.Warnf("callback: browser open failed: %v", err)
		fmt.Printf("Visit the following URL to continue authentication:\n%s\n", authURL)
	}

	return w, nil
}

// window is one in-flight authorization attempt.
type window struct {
	id       string
	messages channel.MessageChannel
	server   *http.Server

	mu     sync.Mutex
	closed bool
}

func (w *window) handleCallback(rw http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var msg channel.Message
	if reason := query.Get("error"); reason != "" {
		data, _ := sjson.SetBytes([]byte(`{}`), "error", reason)
		msg = channel.Message{ID: w.id, Type: googleauth.MsgTypeAuthError, Data: data}
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(rw, "<html><body><h3>Authentication failed: %s</h3>You can close this window.</body></html>", reason)
	} else {
		data, _ := sjson.SetBytes([]byte(`{}`), "code", query.Get("code"))
		msg = channel.Message{ID: w.id, Type: googleauth.MsgTypeAuthSuccess, Data: data}
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(rw, "<html><body><h3>Authentication complete.</h3>You can close this window.</body></html>")
	}

	if err := w.messages.Send(msg, channel.WildcardOrigin); err != nil {
		log.Warnf("callback: deliver result failed: %v", err)
	}
}

// Closed reports whether the attempt has been torn down. Browser tabs offer
// no liveness signal, so abandonment is only observed through Close.
func (w *window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close stops the callback server.
func (w *window) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.server.Shutdown(ctx); err != nil {
		log.Warnf("callback: server shutdown failed: %v", err)
	}
}
