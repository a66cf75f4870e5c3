package session

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Login performs direct username/password login against the hosted store.
// It returns the new session on success and nil on any failure; callers
// cannot distinguish bad credentials from transport trouble, which keeps
// the calling UI a single "login failed" branch.
//
// The stored password is compared with plain equality; the hosted table
// holds it unhashed.
//
// Direct login never grants admin, and provisions exactly one secret
// (OPENAI_API_KEY) fetched from the secrets table.
func (m *Manager) Login(ctx context.Context, username, password string) *Session {
	client := m.backendClient()

	rec, found, err := client.FindUser(ctx, username)
	if err != nil {
		log.Warnf("session: login query failed: %v", err)
		return nil
	}
	if !found || rec.Password != password {
		log.Debugf("session: login rejected for %q", username)
		return nil
	}

	secrets := SecretBundle{}
	value, ok, err := client.FetchSecret(ctx, KeyOpenAI)
	if err != nil {
		log.Warnf("session: secret fetch failed: %v", err)
	} else if ok {
		secrets[KeyOpenAI] = value
	}

	sess := &Session{Username: username, IsAdmin: false, Authenticated: true}
	m.setAuthenticated(sess, secrets)
	log.Infof("session: %s logged in", username)
	return m.CurrentUser()
}
