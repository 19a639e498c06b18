package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `prefix: "app."
service: com.example.app
access_group: TEAMID.com.example.shared
synchronizable: true
backend: keyring
socket: /tmp/keyguard.sock
rate_limit: 5
rate_burst: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Prefix != "app." {
		t.Errorf("Prefix = %q, want %q", cfg.Prefix, "app.")
	}
	if cfg.Service != "com.example.app" {
		t.Errorf("Service = %q, want %q", cfg.Service, "com.example.app")
	}
	if cfg.AccessGroup != "TEAMID.com.example.shared" {
		t.Errorf("AccessGroup = %q", cfg.AccessGroup)
	}
	if !cfg.Synchronizable {
		t.Error("Synchronizable = false, want true")
	}
	if cfg.Backend != BackendKeyring {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendKeyring)
	}
	if cfg.Socket != "/tmp/keyguard.sock" {
		t.Errorf("Socket = %q", cfg.Socket)
	}
	if cfg.RateLimit != 5 || cfg.RateBurst != 10 {
		t.Errorf("rate = %v/%d, want 5/10", cfg.RateLimit, cfg.RateBurst)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	want := Default()
	if *cfg != *want {
		t.Errorf("got %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, "access_group: shared\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AccessGroup != "shared" {
		t.Errorf("AccessGroup = %q, want %q", cfg.AccessGroup, "shared")
	}
	if cfg.Prefix != "keyguard." {
		t.Errorf("Prefix = %q, want default", cfg.Prefix)
	}
	if cfg.Backend != BackendSystem {
		t.Errorf("Backend = %q, want default", cfg.Backend)
	}
}

func TestLoadCommentsOnly(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, `# prefix: other.
# backend: memory
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Prefix != "keyguard." {
		t.Errorf("Prefix = %q, want default", cfg.Prefix)
	}
}

func TestLoadEmptyPrefixAllowed(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, "prefix: \"\"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Prefix != "" {
		t.Errorf("Prefix = %q, want empty", cfg.Prefix)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"unknown backend": "backend: vault\n",
		"negative rate":   "rate_limit: -1\n",
		"zero burst":      "rate_limit: 5\nrate_burst: 0\n",
		"bad yaml":        "prefix: [unterminated\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), path) {
				t.Errorf("error %q should name the file", err)
			}
		})
	}
}
