// Package session implements the primary authentication state of the
// scheduling client: the in-memory session record, the durable credential
// cache, direct username/password login against the hosted store, and the
// handshake that lets an embedded instance inherit its host's session.
package session

// Well-known secret bundle keys.
const (
	KeyOpenAI    = "OPENAI_API_KEY"
	KeyClaude    = "CLAUDE_API_KEY"
	KeyGemini    = "GEMINI_API_KEY"
	KeyReplicate = "REPLICATE_API_KEY"
)

// Built-in fallback connection parameters, used until a handshake that also
// proves identity supplies replacements.
const (
	DefaultEndpointURL = "https://wqzkfbxhpemgqdjtanxc.supabase.co"
	DefaultAnonKey     = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.classplan-anon"
)

// Session is the authoritative record of who is logged in. It is replaced
// wholesale on every successful login or handshake and cleared wholesale on
// logout; individual fields are never mutated in place.
type Session struct {
	Username      string `json:"username"`
	IsAdmin       bool   `json:"isAdmin"`
	Authenticated bool   `json:"authenticated"`
}

// SecretBundle maps named API keys to opaque values. A key absent from the
// bundle means "not provisioned"; an empty string value is still a present
// key. A bundle is only trusted when it arrived alongside a successfully
// validated Session.
type SecretBundle map[string]string

// Clone returns an independent copy of the bundle.
func (b SecretBundle) Clone() SecretBundle {
	if b == nil {
		return nil
	}
	out := make(SecretBundle, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// BackendParams addresses the remote credential/validation store.
type BackendParams struct {
	EndpointURL string `json:"endpointUrl"`
	AnonKey     string `json:"anonymousKey"`
}

// DefaultBackendParams returns the built-in fallback pair.
func DefaultBackendParams() BackendParams {
	return BackendParams{EndpointURL: DefaultEndpointURL, AnonKey: DefaultAnonKey}
}
