// Package store defines the key-value persistence capability used by the
// session and calendar-auth subsystems. Implementations back the credential
// cache; the core logic never touches the filesystem or any browser-style
// storage API directly.
package store

// KeyValue abstracts durable string storage across restarts.
type KeyValue interface {
	// Get returns the stored value for key. The second return value reports
	// whether the key is present; an absent key must never be conflated with
	// an empty value.
	Get(key string) (string, bool)
	// Set persists value under key, replacing any existing entry.
	Set(key, value string) error
	// Delete removes the entry for key. Deleting an absent key is not an error.
	Delete(key string) error
}
