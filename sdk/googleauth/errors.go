// Package googleauth manages the Google OAuth2 authorization-code flow used
// for calendar access: the external authorization window lifecycle, the
// token exchange, expiry tracking, and silent refresh. Its token set is
// deliberately independent of the primary session in sdk/session.
package googleauth

import (
	"errors"
	"fmt"
)

// ConfigError indicates the OAuth client credentials are absent or still
// set to their placeholder defaults. It is fatal to the calling flow.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	if e == nil || e.Reason == "" {
		return "google auth: client credentials not configured"
	}
	return fmt.Sprintf("google auth: %s", e.Reason)
}

// CancelledError indicates the user closed the authorization window before
// the flow completed. Callers surface it as "cancelled", not as a failure.
type CancelledError struct{}

func (e *CancelledError) Error() string {
	return "google auth: sign-in cancelled by user"
}

// ProviderError carries the error code relayed by an authorization window
// that finished unsuccessfully.
type ProviderError struct {
	Code string
}

func (e *ProviderError) Error() string {
	if e == nil || e.Code == "" {
		return "google auth: authorization failed"
	}
	return fmt.Sprintf("google auth: authorization failed: %s", e.Code)
}

// ErrNoRefreshToken is returned by RefreshAccessToken when no refresh token
// is stored.
var ErrNoRefreshToken = errors.New("google auth: no refresh token available")

// errAuthenticationFailed is the generic mapping for any non-success token
// endpoint response. Upstream error bodies are not parsed or surfaced.
var errAuthenticationFailed = errors.New("google auth: authentication failed")

// IsCancelled reports whether err is a user cancellation.
func IsCancelled(err error) bool {
	var cancelled *CancelledError
	return errors.As(err, &cancelled)
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var cfg *ConfigError
	return errors.As(err, &cfg)
}
