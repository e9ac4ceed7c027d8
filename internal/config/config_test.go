package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("transport: memory\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/bridgerpc.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "bridgerpc.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridgerpc.yaml")
	os.WriteFile(path, []byte("transport: memory\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "bridgerpc.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "bridgerpc.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridgerpc.yaml")
	os.WriteFile(path, []byte("transport: websocket\nendpoint: ws://localhost:9000\nheaders:\n  authorization: ${BRIDGERPC_TEST_TOKEN}\n"), 0600)
	os.Setenv("BRIDGERPC_TEST_TOKEN", "secret123")
	defer os.Unsetenv("BRIDGERPC_TEST_TOKEN")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Headers["authorization"] != "secret123" {
		t.Errorf("authorization = %q, want %q", cfg.Headers["authorization"], "secret123")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridgerpc.yaml")
	os.WriteFile(path, []byte("transport: websocket\nendpoint: ws://localhost:9000\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Timeout <= 0 {
		t.Errorf("expected default timeout to be applied, got %v", cfg.Timeout)
	}
	if cfg.Reconnect.MaxReconnects != 5 {
		t.Errorf("expected default max_reconnects 5, got %d", cfg.Reconnect.MaxReconnects)
	}
}

func TestValidate_UnknownTransport(t *testing.T) {
	cfg := Default()
	cfg.Transport = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestValidate_MissingEndpoint(t *testing.T) {
	cfg := Default()
	cfg.Transport = TransportWebSocket
	cfg.Endpoint = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestValidate_MemoryTransportNoEndpointNeeded(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error for memory transport: %v", err)
	}
}

func TestValidate_RateLimitRequiresRate(t *testing.T) {
	cfg := Default()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for rate_limit enabled with zero rate")
	}
}

func TestValidate_NegativeTimeout(t *testing.T) {
	cfg := Default()
	cfg.Timeout = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}
