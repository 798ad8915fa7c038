package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWritesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected path %s, got %s", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Port != DefaultPort || cfg.ReconnectInterval != 3*time.Second || cfg.AuthFailureLimit != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read default config: %v", err)
	}
	for _, key := range []string{"host:", "port:", "data_dir:", "reconnect_interval:", "auth_failure_limit:"} {
		if !strings.Contains(string(written), key) {
			t.Fatalf("default config missing %s:\n%s", key, written)
		}
	}
	if strings.Contains(string(written), "domain") {
		t.Fatalf("default config carries unused keys:\n%s", written)
	}
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	content := "host: chat.example.org\nport: 6000\nreconnect_interval: 500ms\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WIRECHAT_PORT", "7000")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "chat.example.org" {
		t.Fatalf("expected host from file, got %s", cfg.Host)
	}
	if cfg.Port != 7000 {
		t.Fatalf("expected port from env, got %d", cfg.Port)
	}
	if cfg.ReconnectInterval != 500*time.Millisecond {
		t.Fatalf("unexpected reconnect interval: %v", cfg.ReconnectInterval)
	}
	if cfg.DataDir != "data" {
		t.Fatalf("expected default data dir, got %s", cfg.DataDir)
	}
}

func TestLoadRelayAccounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	content := "addr: \":9000\"\naccounts:\n  qasim: secret1\n  jazim: secret2\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := LoadRelay(nil, path)
	if err != nil {
		t.Fatalf("load relay: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.TokenTTL != time.Hour {
		t.Fatalf("unexpected relay config: %+v", cfg)
	}
	if len(cfg.Accounts) != 2 || cfg.Accounts["jazim"] != "secret2" {
		t.Fatalf("unexpected accounts: %v", cfg.Accounts)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected port error")
	}

	cfg = Default()
	cfg.UpdateFrom(Config{Host: "relay.local", Port: 443, TLS: true})
	if cfg.Host != "relay.local" || cfg.Port != 443 || !cfg.TLS || cfg.DataDir != "data" {
		t.Fatalf("unexpected merged config: %+v", cfg)
	}
}
