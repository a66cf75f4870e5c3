package session

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/classplan-dev/authbridge/sdk/channel"
)

// Handshake message types exchanged with the embedding host.
const (
	msgTypeRequestAPIValues  = "REQUEST_API_VALUES"
	msgTypeAPIValuesResponse = "API_VALUES_RESPONSE"
)

// InheritParentSession runs the embedded-context handshake: it asks the
// host context for an already-authenticated identity plus secrets, and
// installs them if the supplied auth token validates against the supplied
// backend. It returns the inherited session, or nil when the instance is
// not embedded, the host does not answer within the timeout, the payload is
// incomplete, or validation fails.
//
// One call makes exactly one attempt and resolves exactly once. The request
// is sent with an unrestricted target origin; the host is not authenticated
// beyond the token validation below.
func (m *Manager) InheritParentSession(ctx context.Context) *Session {
	if !m.IsEmbedded() {
		return nil
	}

	responses := make(chan channel.Message, 1)
	var once sync.Once
	cancel := m.host.Subscribe(func(msg channel.Message) {
		if msg.Type != msgTypeAPIValuesResponse {
			return
		}
		once.Do(func() { responses <- msg })
	})
	defer cancel()

	if err := m.host.Send(channel.Message{Type: msgTypeRequestAPIValues}, channel.WildcardOrigin); err != nil {
		log.Warnf("handshake: request send failed: %v", err)
		return nil
	}

	timer := time.NewTimer(m.handshakeTimeout)
	defer timer.Stop()

	select {
	case msg := <-responses:
		return m.acceptHostPayload(ctx, msg.Data)
	case <-timer.C:
		log.Debugf("handshake: no response within %s", m.handshakeTimeout)
		return nil
	case <-ctx.Done():
		return nil
	}
}

// acceptHostPayload applies one API_VALUES_RESPONSE payload. The backend
// params switch happens before token validation; if validation then fails,
// the switched params stay in effect.
func (m *Manager) acceptHostPayload(ctx context.Context, data []byte) *Session {
	payload := gjson.ParseBytes(data)
	authToken := payload.Get("authToken").String()
	endpointURL := payload.Get("SUPABASE_URL").String()
	anonKey := payload.Get("SUPABASE_ANON_KEY").String()
	if authToken == "" || endpointURL == "" || anonKey == "" {
		log.Debug("handshake: response payload incomplete")
		return nil
	}

	m.mu.Lock()
	m.backend = BackendParams{EndpointURL: endpointURL, AnonKey: anonKey}
	m.mu.Unlock()

	sess := m.validateToken(ctx, authToken)
	if sess == nil {
		log.Debug("handshake: auth token did not validate")
		return nil
	}

	// Missing optional keys are stored as empty strings here; direct login
	// leaves absent keys out of the bundle entirely.
	secrets := SecretBundle{
		KeyOpenAI:    payload.Get(KeyOpenAI).String(),
		KeyClaude:    payload.Get(KeyClaude).String(),
		KeyGemini:    payload.Get(KeyGemini).String(),
		KeyReplicate: payload.Get(KeyReplicate).String(),
	}

	m.setAuthenticated(sess, secrets)
	log.Infof("handshake: inherited session for %s", sess.Username)
	return m.CurrentUser()
}
