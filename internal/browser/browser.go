// Package browser opens URLs in the user's default web browser. The
// calendar sign-in flow uses it to present the provider's authorization
// page when no embedding host supplies a window of its own.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

var linuxOpeners = []string{"xdg-open", "x-www-browser", "firefox", "chromium", "google-chrome"}

// OpenURL opens url in the default browser, falling back to OS-specific
// commands when the portable path fails.
func OpenURL(url string) error {
	if err := open.Run(url); err == nil {
		return nil
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		for _, candidate := range linuxOpeners {
			if _, err := exec.LookPath(candidate); err == nil {
				cmd = exec.Command(candidate, url)
				break
			}
		}
	}
	if cmd == nil {
		return fmt.Errorf("browser: no way to open URLs on %s", runtime.GOOS)
	}
	if err := cmd.Start(); err != nil {
		log.Warnf("browser: open failed: %v", err)
		return fmt.Errorf("browser: open failed: %w", err)
	}
	return nil
}

// IsAvailable reports whether some mechanism for opening a browser exists.
func IsAvailable() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	default:
		for _, candidate := range linuxOpeners {
			if _, err := exec.LookPath(candidate); err == nil {
				return true
			}
		}
		return false
	}
}
