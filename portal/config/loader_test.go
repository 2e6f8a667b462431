package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/dexlend-labs/dexlend-hub/portal/config"
)

// helper to reset env vars with PORTAL_ prefix between tests
func unsetPortalEnv() {
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "PORTAL_") {
			if idx := strings.Index(e, "="); idx != -1 {
				_ = os.Unsetenv(e[:idx])
			}
		}
	}
}

func TestLoadPortalConfig_FromEnv_Success(t *testing.T) {
	unsetPortalEnv()
	_ = os.Setenv("PORTAL_PORT", "8080")
	_ = os.Setenv("PORTAL_HOST", "0.0.0.0")
	_ = os.Setenv("PORTAL_ALLOWED_ORIGINS", "*")
	_ = os.Setenv("PORTAL_MANIFEST_PATH", "deploy/manifest.toml")

	cfg, err := LoadPortalConfig(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 8080 || cfg.Host != "0.0.0.0" {
		t.Errorf("unexpected port/host: %v %v", cfg.Port, cfg.Host)
	}
	if cfg.ManifestPath != "deploy/manifest.toml" {
		t.Errorf("unexpected manifest path: %v", cfg.ManifestPath)
	}
}

func TestLoadPortalConfig_FromEnv_FailVerification(t *testing.T) {
	unsetPortalEnv()
	// Run in empty dir so godotenv.Load() inside the loader doesn't set PORTAL_* from a .env file
	origWd, _ := os.Getwd()
	defer os.Chdir(origWd)
	_ = os.Chdir(t.TempDir())

	// missing HOST
	_ = os.Setenv("PORTAL_PORT", "8080")
	_ = os.Setenv("PORTAL_ALLOWED_ORIGINS", "*")
	_ = os.Setenv("PORTAL_MANIFEST_PATH", "deploy/manifest.toml")

	_, err := LoadPortalConfig(nil)
	if err == nil {
		t.Fatalf("expected error due to missing host, got nil")
	}
}

func TestLoadPortalConfig_FromFile_Success(t *testing.T) {
	unsetPortalEnv()

	dir := t.TempDir()
	path := filepath.Join(dir, "portal_config.toml")
	content := `
port = 9090
host = "127.0.0.1"
allowed_origins = ["https://example.com"]
manifest_path = "deploy/manifest.toml"
poll_interval_minutes = 5
sweep_overdue_loans = true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing temp config: %v", err)
	}

	cfgPath := path
	cfg, err := LoadPortalConfig(&cfgPath)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 9090 || cfg.Host != "127.0.0.1" {
		t.Errorf("unexpected values: %+v", cfg)
	}
	if cfg.PollIntervalMinutes != 5 || !cfg.SweepOverdueLoans {
		t.Errorf("unexpected sync values: %+v", cfg)
	}
}

func TestLoadPortalConfig_FromFile_WrongExtension(t *testing.T) {
	unsetPortalEnv()
	p := "config.yaml"
	_, err := LoadPortalConfig(&p)
	if err == nil {
		t.Fatalf("expected error for non-toml file")
	}
}

func TestLoadManifest_Local(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.toml")
	content := `
endpoints = ["http://127.0.0.1:7545", "ws://127.0.0.1:7545"]
defi_contract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
nft_contract = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
mint_price_wei = "100000000000000"
receipt_timeout_seconds = 90
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing temp manifest: %v", err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(m.Endpoints) != 2 {
		t.Errorf("expected 2 endpoints, got %d", len(m.Endpoints))
	}
	price, err := m.MintPrice()
	if err != nil {
		t.Fatalf("unexpected mint price error: %v", err)
	}
	if price.String() != "100000000000000" {
		t.Errorf("unexpected mint price: %v", price)
	}
}

func TestLoadManifest_RejectsBadAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.toml")
	content := `
endpoints = ["http://127.0.0.1:7545"]
defi_contract = "not-an-address"
nft_contract = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing temp manifest: %v", err)
	}

	if _, err := LoadManifest(path); err == nil {
		t.Fatalf("expected error for bad contract address")
	}
}
