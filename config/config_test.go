package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadFromAppliesDefaultsAndOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
jwt:
  secret: base-secret
funding:
  featured_cache_ttl: 45s
`)
	writeConfig(t, dir, "test.yaml", `
storage:
  driver: memory
`)

	cfg, err := LoadFrom("test", dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Fatalf("expected memory driver, got %q", cfg.Storage.Driver)
	}
	if cfg.Funding.FeaturedCacheTTL != 45*time.Second {
		t.Fatalf("expected yaml ttl, got %s", cfg.Funding.FeaturedCacheTTL)
	}
	if cfg.Funding.FeaturedDefaultLimit != 6 || cfg.Funding.MaxGoal != 100_000_000_00 {
		t.Fatalf("expected defaults kept, got %+v", cfg.Funding)
	}
}

func TestLoadFromEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
jwt:
  secret: base-secret
`)
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := LoadFrom("local", dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.Secret != "env-secret" || cfg.Storage.Driver != StorageMemory {
		t.Fatalf("expected env overrides, got secret=%q driver=%q", cfg.JWT.Secret, cfg.Storage.Driver)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"missing secret", func(c *Config) { c.JWT.Secret = "" }},
		{"unresolved secret", func(c *Config) { c.JWT.Secret = "${JWT_SECRET}" }},
		{"inverted goals", func(c *Config) { c.Funding.MaxGoal = 1 }},
		{"zero retries", func(c *Config) { c.Funding.ConflictRetries = 0 }},
		{"featured max below default", func(c *Config) { c.Funding.FeaturedMaxLimit = 1 }},
		{"sub-second outbox lease", func(c *Config) { c.Outbox.Lease = 0 }},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.JWT.Secret = "x"
		tt.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tt.name)
		}
	}
}
