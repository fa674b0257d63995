package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndFile(t *testing.T) {
	path := writeTempConfig(t, `
bridge:
  id: site-7
  node_id: 42
tls:
  cert_file: /data/Cert.pem
  key_file: /data/Key.pem
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Bridge.ID != "site-7" || cfg.Bridge.NodeID != 42 {
		t.Fatalf("file values not applied: %+v", cfg.Bridge)
	}
	if cfg.Cache.Addr != "localhost:6379" {
		t.Fatalf("default not applied: %q", cfg.Cache.Addr)
	}
	if cfg.Timers.Valve.Seconds() != 20 {
		t.Fatalf("default valve timer wrong: %v", cfg.Timers.Valve)
	}
}

func TestLoadMissingTLSIsFatal(t *testing.T) {
	path := writeTempConfig(t, `
bridge:
  id: site-7
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing TLS cert/key")
	}
}

func TestEnvOverridesSecrets(t *testing.T) {
	path := writeTempConfig(t, `
bridge:
  id: site-7
tls:
  cert_file: /data/Cert.pem
  key_file: /data/Key.pem
`)

	t.Setenv("DOMOBRIDGE_CACHE_PASSWORD", "s3cret")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Password != "s3cret" {
		t.Fatalf("env override not applied: %q", cfg.Cache.Password)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := defaultConfig()
	cfg.TLS.CertFile = "cert"
	cfg.TLS.KeyFile = "key"
	cfg.G2Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}
