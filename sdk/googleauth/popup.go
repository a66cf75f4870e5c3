package googleauth

// Popup is a handle to a running external authorization window.
type Popup interface {
	// Closed reports whether the window has gone away. The controller polls
	// this; there is no push notification for window closure.
	Closed() bool
	// Close tears the window down. Closing an already-closed window is a
	// no-op.
	Close()
}

// PopupLauncher opens the provider's authorization page in an external
// window. Implementations range from a real browser window plus local
// callback server (internal/callback) to fakes in tests.
type PopupLauncher interface {
	Open(url string) (Popup, error)
}
