// Package config loads the application configuration from a YAML file with
// environment-variable overrides for the secret-bearing fields.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration, loaded from a YAML file.
type Config struct {
	// BackendURL overrides the built-in fallback endpoint of the hosted
	// credential store.
	BackendURL string `yaml:"backend-url"`

	// BackendAnonKey is the anonymous key sent with every backend query.
	BackendAnonKey string `yaml:"backend-anon-key"`

	// GoogleClientID and GoogleClientSecret are the OAuth client
	// credentials for calendar access. Placeholder values leave the flow
	// unconfigured.
	GoogleClientID     string `yaml:"google-client-id"`
	GoogleClientSecret string `yaml:"google-client-secret"`

	// GoogleRedirectURL is where the authorization window returns to.
	// Defaults to the local callback server.
	GoogleRedirectURL string `yaml:"google-redirect-url"`

	// CallbackPort is the port of the local OAuth callback server.
	CallbackPort int `yaml:"callback-port"`

	// StorePath is the credential cache file. Defaults to
	// ~/.authbridge/credentials.json.
	StorePath string `yaml:"store-path"`

	// HostBridgeURL, when set, connects the session manager to an embedding
	// host over websocket for the parent-session handshake.
	HostBridgeURL string `yaml:"host-bridge-url"`

	// ProxyURL routes outbound HTTP through a SOCKS5 or HTTP(S) proxy.
	ProxyURL string `yaml:"proxy-url"`

	// LogDir enables rotated file logging when non-empty.
	LogDir string `yaml:"log-dir"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`
}

// DefaultCallbackPort is used when the config does not set one.
const DefaultCallbackPort = 53682

// Load reads the config file at path. A missing file yields defaults rather
// than an error; a malformed file is an error. Environment variables
// GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET, BACKEND_URL, and BACKEND_ANON_KEY
// override their file counterparts.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err == nil {
		if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("config: parse %s failed: %w", path, errUnmarshal)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s failed: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.GoogleClientSecret = v
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("BACKEND_ANON_KEY"); v != "" {
		cfg.BackendAnonKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.CallbackPort <= 0 {
		cfg.CallbackPort = DefaultCallbackPort
	}
	if cfg.GoogleRedirectURL == "" {
		cfg.GoogleRedirectURL = fmt.Sprintf("http://localhost:%d/oauth2callback", cfg.CallbackPort)
	}
	if cfg.StorePath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.StorePath = filepath.Join(home, ".authbridge", "credentials.json")
		} else {
			cfg.StorePath = "credentials.json"
		}
	}
}
