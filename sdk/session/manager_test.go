package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/classplan-dev/authbridge/sdk/store"
)

// fakeBackend serves the three tables the login flow touches.
func fakeBackend(t *testing.T, users, secrets, tokens string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/users_login":
			_, _ = w.Write([]byte(users))
		case "/rest/v1/secrets":
			_, _ = w.Write([]byte(secrets))
		case "/rest/v1/auth_tokens":
			_, _ = w.Write([]byte(tokens))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func managerForBackend(srv *httptest.Server, kv store.KeyValue) *Manager {
	m := NewManager(Options{Store: kv})
	m.mu.Lock()
	m.backend = BackendParams{EndpointURL: srv.URL, AnonKey: "anon"}
	m.mu.Unlock()
	return m
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()

	srv := fakeBackend(t,
		`[{"username":"alice","password":"pw1"}]`,
		`[{"value":"sk-openai"}]`,
		`[]`,
	)
	kv := store.NewMemoryStore()
	m := managerForBackend(srv, kv)

	sess := m.Login(context.Background(), "alice", "pw1")
	if sess == nil {
		t.Fatal("Login() = nil, want session")
	}
	if sess.Username != "alice" || !sess.Authenticated {
		t.Errorf("Login() = %+v", sess)
	}
	if sess.IsAdmin {
		t.Error("direct login granted admin")
	}
	if key, ok := m.APIKey(""); !ok || key != "sk-openai" {
		t.Errorf("APIKey(\"\") = %q, %v, want default OPENAI_API_KEY", key, ok)
	}
	if _, ok := m.APIKey(KeyClaude); ok {
		t.Error("unfetched key reported as provisioned")
	}
	if _, ok := kv.Get("authbridge.session"); !ok {
		t.Error("session not persisted to cache")
	}
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		users string
	}{
		{"wrong password", `[{"username":"alice","password":"other"}]`},
		{"unknown user", `[]`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := fakeBackend(t, tt.users, `[]`, `[]`)
			m := managerForBackend(srv, store.NewMemoryStore())
			if sess := m.Login(context.Background(), "alice", "pw1"); sess != nil {
				t.Errorf("Login() = %+v, want nil", sess)
			}
			if m.CurrentUser() != nil {
				t.Error("failed login left a session behind")
			}
		})
	}
}

func TestLoginTransportFailureLooksLikeRejection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	m := managerForBackend(srv, store.NewMemoryStore())
	if sess := m.Login(context.Background(), "alice", "pw1"); sess != nil {
		t.Errorf("Login() = %+v, want nil on transport failure", sess)
	}
}

func TestValidateTokenRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	srv := fakeBackend(t, `[]`, `[]`, `[{`)
	m := managerForBackend(srv, store.NewMemoryStore())

	if sess := m.validateToken(context.Background(), "tok-1"); sess != nil {
		t.Errorf("validateToken() = %+v, want nil for truncated response", sess)
	}
}

func TestLoginSucceedsWhenSecretMissing(t *testing.T) {
	t.Parallel()

	srv := fakeBackend(t,
		`[{"username":"alice","password":"pw1"}]`,
		`[]`,
		`[]`,
	)
	m := managerForBackend(srv, store.NewMemoryStore())

	if sess := m.Login(context.Background(), "alice", "pw1"); sess == nil {
		t.Fatal("Login() = nil, want session despite missing secret")
	}
	if _, ok := m.APIKey(KeyOpenAI); ok {
		t.Error("missing secret reported as provisioned")
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	t.Parallel()

	srv := fakeBackend(t,
		`[{"username":"alice","password":"pw1"}]`,
		`[{"value":"sk-openai"}]`,
		`[]`,
	)
	kv := store.NewMemoryStore()
	// Seed the legacy artifact of the old key-only scheme.
	_ = kv.Set("openai_api_key", "sk-legacy")

	m := managerForBackend(srv, kv)
	if m.Login(context.Background(), "alice", "pw1") == nil {
		t.Fatal("Login() failed")
	}

	m.Logout()

	if m.CurrentUser() != nil {
		t.Error("CurrentUser() non-nil after Logout()")
	}
	if _, ok := m.APIKey(""); ok {
		t.Error("APIKey() still provisioned after Logout()")
	}
	if got := m.BackendParams(); got != DefaultBackendParams() {
		t.Errorf("BackendParams() = %+v, want fallback", got)
	}
	for _, key := range []string{"authbridge.session", "authbridge.secrets", "authbridge.backend", "openai_api_key"} {
		if _, ok := kv.Get(key); ok {
			t.Errorf("residual cache entry %q after Logout()", key)
		}
	}
}

func TestManagerHydratesFromCache(t *testing.T) {
	t.Parallel()

	kv := store.NewMemoryStore()
	_ = kv.Set("authbridge.session", `{"username":"carol","isAdmin":true,"authenticated":true}`)
	_ = kv.Set("authbridge.secrets", `{"OPENAI_API_KEY":"sk-cached"}`)
	_ = kv.Set("authbridge.backend", `{"endpointUrl":"https://cached.example","anonymousKey":"cached-anon"}`)

	m := NewManager(Options{Store: kv})

	sess := m.CurrentUser()
	if sess == nil || sess.Username != "carol" || !sess.IsAdmin {
		t.Errorf("CurrentUser() = %+v, want cached session", sess)
	}
	if key, ok := m.APIKey(""); !ok || key != "sk-cached" {
		t.Errorf("APIKey() = %q, %v", key, ok)
	}
	if got := m.BackendParams().EndpointURL; got != "https://cached.example" {
		t.Errorf("BackendParams().EndpointURL = %q", got)
	}
}

func TestReloadPicksUpExternalCacheWrites(t *testing.T) {
	t.Parallel()

	kv := store.NewMemoryStore()
	m := NewManager(Options{Store: kv})
	if m.CurrentUser() != nil {
		t.Fatal("fresh manager has a session")
	}

	// Another process writes the shared cache.
	_ = kv.Set("authbridge.session", `{"username":"dave","authenticated":true}`)
	_ = kv.Set("authbridge.secrets", `{"OPENAI_API_KEY":"sk-other-proc"}`)

	m.Reload()

	sess := m.CurrentUser()
	if sess == nil || sess.Username != "dave" {
		t.Fatalf("CurrentUser() after Reload() = %+v, want external session", sess)
	}
	if key, ok := m.APIKey(""); !ok || key != "sk-other-proc" {
		t.Errorf("APIKey() after Reload() = %q, %v", key, ok)
	}

	// And clears it again.
	_ = kv.Delete("authbridge.session")
	_ = kv.Delete("authbridge.secrets")

	m.Reload()
	if m.CurrentUser() != nil {
		t.Error("CurrentUser() non-nil after reloading an emptied cache")
	}
	if got := m.BackendParams(); got != DefaultBackendParams() {
		t.Errorf("BackendParams() = %+v, want fallback", got)
	}
}

func TestManagerIgnoresCorruptCache(t *testing.T) {
	t.Parallel()

	kv := store.NewMemoryStore()
	_ = kv.Set("authbridge.session", `{broken`)

	m := NewManager(Options{Store: kv})
	if m.CurrentUser() != nil {
		t.Error("corrupt cached session was hydrated")
	}
	if got := m.BackendParams(); got != DefaultBackendParams() {
		t.Errorf("BackendParams() = %+v, want fallback", got)
	}
}

func TestIsEmbedded(t *testing.T) {
	t.Parallel()

	if NewManager(Options{Store: store.NewMemoryStore()}).IsEmbedded() {
		t.Error("IsEmbedded() = true without host channel")
	}
}
