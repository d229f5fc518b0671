package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-feedgate
upstream:
  base_url: https://venue.example.com/api
  api_key: abc123
tenants:
  - id: acme
    name: Acme Capital
  - id: globex
    status: suspended
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-feedgate" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-feedgate")
	}
	if cfg.Upstream.BaseURL != "https://venue.example.com/api" {
		t.Errorf("Upstream.BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if len(cfg.Tenants) != 2 || cfg.Tenants[1].Status != "suspended" {
		t.Errorf("Tenants = %+v", cfg.Tenants)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_VENUE_KEY", "secret123")

	yaml := `
instance:
  id: test-feedgate
upstream:
  base_url: https://venue.example.com/api
  api_key: ${TEST_VENUE_KEY}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Upstream.APIKey != "secret123" {
		t.Errorf("Upstream.APIKey = %q, want %q", cfg.Upstream.APIKey, "secret123")
	}
}

func TestLoadAndValidateAppliesDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-feedgate
upstream:
  base_url: https://venue.example.com/api
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if cfg.Polling.TickCadence != 100*time.Millisecond {
		t.Errorf("TickCadence = %v, want 100ms", cfg.Polling.TickCadence)
	}
	if cfg.Polling.FailureBackoff != 10 {
		t.Errorf("FailureBackoff = %d, want 10", cfg.Polling.FailureBackoff)
	}
	if cfg.Polling.TickTTL != time.Second {
		t.Errorf("TickTTL = %v, want 1s", cfg.Polling.TickTTL)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.History.BatchSize != 500 {
		t.Errorf("History.BatchSize = %d, want 500", cfg.History.BatchSize)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	yaml := `
instance:
  id: test-feedgate
upstream:
  base_url: https://venue.example.com/api
  basurl: typo
`
	path := writeTempFile(t, yaml)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing instance id",
			yaml: "upstream:\n  base_url: https://x\n",
			want: "instance.id",
		},
		{
			name: "missing upstream url",
			yaml: "instance:\n  id: x\n",
			want: "upstream.base_url",
		},
		{
			name: "duplicate tenant",
			yaml: "instance:\n  id: x\nupstream:\n  base_url: https://x\ntenants:\n  - id: acme\n  - id: acme\n",
			want: "duplicated",
		},
		{
			name: "bad tenant status",
			yaml: "instance:\n  id: x\nupstream:\n  base_url: https://x\ntenants:\n  - id: acme\n    status: paused\n",
			want: "status",
		},
		{
			name: "history enabled without db",
			yaml: "instance:\n  id: x\nupstream:\n  base_url: https://x\nhistory:\n  enabled: true\n",
			want: "history.postgres.host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, tt.yaml)
			_, err := LoadAndValidate(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
