package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/classplan-dev/authbridge/internal/backend"
	"github.com/classplan-dev/authbridge/sdk/channel"
	"github.com/classplan-dev/authbridge/sdk/store"
)

// DefaultHandshakeTimeout bounds the wait for the host's handshake response.
const DefaultHandshakeTimeout = 2000 * time.Millisecond

// Options configures a Manager.
type Options struct {
	// Store is the durable key-value backing of the credential cache. Required.
	Store store.KeyValue
	// Host is the message channel to the embedding host context. A nil Host
	// means the instance is running standalone; the handshake is then
	// unavailable and IsEmbedded reports false.
	Host channel.MessageChannel
	// HTTPClient is used for all backend queries. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
	// HandshakeTimeout overrides DefaultHandshakeTimeout. Zero keeps the
	// default.
	HandshakeTimeout time.Duration
	// Backend overrides the built-in fallback backend params. A cached
	// handshake override still takes precedence once hydrated.
	Backend *BackendParams
	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Manager owns the process's session state: the current Session, its secret
// bundle, and the backend connection params. It is constructed explicitly
// and passed to consumers; there is no package-level instance.
//
// Concurrent overlapping Login/InheritParentSession calls are not
// serialized: whichever finishes last wins.
type Manager struct {
	mu      sync.Mutex
	session *Session
	secrets SecretBundle
	backend BackendParams

	// fallbackBackend is what logout and an empty cache reset to: the
	// configured override when one was given, the built-in params otherwise.
	fallbackBackend BackendParams

	cache            credentialCache
	host             channel.MessageChannel
	httpClient       *http.Client
	handshakeTimeout time.Duration
	now              func() time.Time
}

// NewManager builds a manager and hydrates it from the credential cache.
func NewManager(opts Options) *Manager {
	m := &Manager{
		backend:          DefaultBackendParams(),
		cache:            credentialCache{kv: opts.Store},
		host:             opts.Host,
		httpClient:       opts.HTTPClient,
		handshakeTimeout: opts.HandshakeTimeout,
		now:              opts.Now,
	}
	if m.httpClient == nil {
		m.httpClient = http.DefaultClient
	}
	if m.handshakeTimeout <= 0 {
		m.handshakeTimeout = DefaultHandshakeTimeout
	}
	if m.now == nil {
		m.now = time.Now
	}
	if opts.Backend != nil {
		m.backend = *opts.Backend
	}
	m.fallbackBackend = m.backend

	m.Reload()
	return m
}

// Reload rehydrates state from the credential cache, picking up a cache
// rewritten by another process. In-memory state is replaced wholesale; an
// empty cache leaves the manager logged out on the fallback backend.
func (m *Manager) Reload() {
	state := m.cache.load()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = state.Session
	m.secrets = state.Secrets
	m.backend = m.fallbackBackend
	if state.Backend != nil {
		m.backend = *state.Backend
	}
}

// CurrentUser returns a copy of the current session, or nil when nobody is
// logged in.
func (m *Manager) CurrentUser() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	sess := *m.session
	return &sess
}

// APIKey returns the secret stored under name. An empty name falls back to
// OPENAI_API_KEY. The second return value reports whether the key is
// provisioned at all.
func (m *Manager) APIKey(name string) (string, bool) {
	if name == "" {
		name = KeyOpenAI
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.secrets[name]
	return value, ok
}

// BackendParams returns the connection params currently in effect.
func (m *Manager) BackendParams() BackendParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend
}

// IsEmbedded reports whether a host context channel is attached.
func (m *Manager) IsEmbedded() bool {
	return m.host != nil
}

// Logout clears the session, the secret bundle, the backend params (back to
// the built-in fallback), and the credential cache. It is synchronous and
// unconditional; no network call is involved.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.session = nil
	m.secrets = nil
	m.backend = m.fallbackBackend
	m.mu.Unlock()
	m.cache.clear()
	log.Debug("session: logged out")
}

// backendClient builds a REST client for the params currently in effect.
func (m *Manager) backendClient() *backend.Client {
	params := m.BackendParams()
	return backend.New(params.EndpointURL, params.AnonKey, m.httpClient)
}

// validateToken checks token against the backend's auth_tokens table and
// returns the session it proves, or nil. Transport and parse failures are
// logged and reported the same as a missing row.
func (m *Manager) validateToken(ctx context.Context, token string) *Session {
	rec, found, err := m.backendClient().LookupToken(ctx, token, m.now())
	if err != nil {
		log.Warnf("session: token validation failed: %v", err)
		return nil
	}
	if !found {
		return nil
	}
	return &Session{Username: rec.Username, IsAdmin: rec.IsAdmin, Authenticated: true}
}

// setAuthenticated installs a freshly proven session plus its secrets and
// persists the result. Backend params are persisted as-is so a handshake
// override survives restarts.
func (m *Manager) setAuthenticated(sess *Session, secrets SecretBundle) {
	m.mu.Lock()
	m.session = sess
	m.secrets = secrets
	backendCopy := m.backend
	m.mu.Unlock()
	m.cache.save(cachedState{Session: sess, Secrets: secrets, Backend: &backendCopy})
}
