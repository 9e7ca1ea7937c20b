package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reverie.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("REVERIE_PG_DSN", "postgres://test/reverie")
	path := writeConfig(t, `{
		"database": {"postgres": {"dsn": "${REVERIE_PG_DSN}"}},
		"server": {"port": 9000}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Postgres.DSN != "postgres://test/reverie" {
		t.Errorf("dsn = %q, want substituted value", cfg.Database.Postgres.DSN)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
}

func TestLoadUsesDefaultWhenEnvUnset(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"redis": {"url": "${REVERIE_MISSING_URL:redis://localhost:6379}"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Redis.URL != "redis://localhost:6379" {
		t.Errorf("redis url = %q, want fallback default", cfg.Database.Redis.URL)
	}
}

func TestDefaultsApplied(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.RateLimit.WindowCap != 20 {
		t.Errorf("window cap = %d, want 20", cfg.RateLimit.WindowCap)
	}
	if cfg.Contact.MinQuestionPriority != 8 || cfg.Contact.MinIntensity != 7 {
		t.Errorf("contact thresholds = %d/%d, want 8/7",
			cfg.Contact.MinQuestionPriority, cfg.Contact.MinIntensity)
	}
	if cfg.Consolidation.LogRetentionDays != 7 {
		t.Errorf("log retention = %d days, want 7", cfg.Consolidation.LogRetentionDays)
	}
	if got := cfg.Cognition.CallTimeout().Seconds(); got != 30 {
		t.Errorf("call timeout = %vs, want 30s", got)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"server": `)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed config")
	}
}
