package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CallbackPort != DefaultCallbackPort {
		t.Errorf("CallbackPort = %d", cfg.CallbackPort)
	}
	if cfg.GoogleRedirectURL != "http://localhost:53682/oauth2callback" {
		t.Errorf("GoogleRedirectURL = %q", cfg.GoogleRedirectURL)
	}
	if cfg.StorePath == "" {
		t.Error("StorePath empty")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend-url: "https://store.example"
backend-anon-key: "anon-1"
google-client-id: "cid"
google-client-secret: "csecret"
callback-port: 12345
debug: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BackendURL != "https://store.example" || cfg.BackendAnonKey != "anon-1" {
		t.Errorf("backend config = %q / %q", cfg.BackendURL, cfg.BackendAnonKey)
	}
	if cfg.GoogleClientID != "cid" || !cfg.Debug {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.GoogleRedirectURL != "http://localhost:12345/oauth2callback" {
		t.Errorf("GoogleRedirectURL = %q", cfg.GoogleRedirectURL)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("backend-url: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil for malformed file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "env-cid")
	t.Setenv("BACKEND_ANON_KEY", "env-anon")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(`google-client-id: "file-cid"`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GoogleClientID != "env-cid" {
		t.Errorf("GoogleClientID = %q, want env override", cfg.GoogleClientID)
	}
	if cfg.BackendAnonKey != "env-anon" {
		t.Errorf("BackendAnonKey = %q, want env override", cfg.BackendAnonKey)
	}
}
