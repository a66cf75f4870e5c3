package session

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/classplan-dev/authbridge/sdk/store"
)

// Storage keys written by the session side of the subsystem.
const (
	storeKeySession = "authbridge.session"
	storeKeySecrets = "authbridge.secrets"
	storeKeyBackend = "authbridge.backend"

	// storeKeyLegacyAPIKey is the single-key artifact of the old key-only
	// storage scheme. It is never written anymore, only cleared.
	storeKeyLegacyAPIKey = "openai_api_key"
)

// cachedState is the partial snapshot the credential cache can hold. Nil
// pointers and nil maps mean "nothing cached" for that field.
type cachedState struct {
	Session *Session
	Secrets SecretBundle
	Backend *BackendParams
}

// credentialCache reads and writes the durable snapshot of session state.
// Its methods never fail outward: deserialization problems are logged and
// reported as an empty field, and save skips empty fields so a blank value
// cannot clobber a previously good one.
type credentialCache struct {
	kv store.KeyValue
}

func (c *credentialCache) load() cachedState {
	var state cachedState
	if raw, ok := c.kv.Get(storeKeySession); ok {
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			log.Warnf("credential cache: discarding unreadable session: %v", err)
		} else {
			state.Session = &sess
		}
	}
	if raw, ok := c.kv.Get(storeKeySecrets); ok {
		var secrets SecretBundle
		if err := json.Unmarshal([]byte(raw), &secrets); err != nil {
			log.Warnf("credential cache: discarding unreadable secrets: %v", err)
		} else {
			state.Secrets = secrets
		}
	}
	if raw, ok := c.kv.Get(storeKeyBackend); ok {
		var backend BackendParams
		if err := json.Unmarshal([]byte(raw), &backend); err != nil {
			log.Warnf("credential cache: discarding unreadable backend params: %v", err)
		} else {
			state.Backend = &backend
		}
	}
	return state
}

func (c *credentialCache) save(state cachedState) {
	if state.Session != nil {
		c.set(storeKeySession, state.Session)
	}
	if len(state.Secrets) > 0 {
		c.set(storeKeySecrets, state.Secrets)
	}
	if state.Backend != nil && state.Backend.EndpointURL != "" {
		c.set(storeKeyBackend, state.Backend)
	}
}

func (c *credentialCache) set(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Warnf("credential cache: marshal %s failed: %v", key, err)
		return
	}
	if err = c.kv.Set(key, string(raw)); err != nil {
		log.Warnf("credential cache: write %s failed: %v", key, err)
	}
}

// clear removes every key the session side ever wrote, including the legacy
// single-key artifact.
func (c *credentialCache) clear() {
	for _, key := range []string{storeKeySession, storeKeySecrets, storeKeyBackend, storeKeyLegacyAPIKey} {
		if err := c.kv.Delete(key); err != nil {
			log.Warnf("credential cache: delete %s failed: %v", key, err)
		}
	}
}
