package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Research.CycleBudget != 2 {
		t.Errorf("expected default cycle_budget 2, got %d", cfg.Research.CycleBudget)
	}
	if cfg.Research.MaxQueriesPerCycle != 5 {
		t.Errorf("expected default max_queries_per_cycle 5, got %d", cfg.Research.MaxQueriesPerCycle)
	}
	if cfg.Research.MaxConcurrentScrapes != 8 {
		t.Errorf("expected default max_concurrent_scrapes 8, got %d", cfg.Research.MaxConcurrentScrapes)
	}
	if cfg.Scrape.MaxChars != 80000 {
		t.Errorf("expected default scrape.max_chars 80000, got %d", cfg.Scrape.MaxChars)
	}
	if cfg.Search.Provider != "serper" {
		t.Errorf("expected default search provider serper, got %q", cfg.Search.Provider)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
research:
  cycle_budget: 4
  max_sources: 3
search:
  provider: brave
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Research.CycleBudget != 4 {
		t.Errorf("expected cycle_budget 4, got %d", cfg.Research.CycleBudget)
	}
	if cfg.Research.MaxSources != 3 {
		t.Errorf("expected max_sources 3, got %d", cfg.Research.MaxSources)
	}
	if cfg.Search.Provider != "brave" {
		t.Errorf("expected search provider brave, got %q", cfg.Search.Provider)
	}
	// untouched keys keep defaults
	if cfg.Research.MaxQueriesPerCycle != 5 {
		t.Errorf("expected max_queries_per_cycle default 5, got %d", cfg.Research.MaxQueriesPerCycle)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
research:
  max_queries_per_cycle: 0
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for max_queries_per_cycle = 0")
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", DBName: "delver", User: "u", Password: "p"}
	dsn, err := p.DSN()
	if err != nil {
		t.Fatalf("DSN failed: %v", err)
	}
	want := "postgres://u:p@db:5432/delver?sslmode=disable"
	if dsn != want {
		t.Errorf("DSN = %q, want %q", dsn, want)
	}

	if _, err := (PostgresConfig{}).DSN(); err == nil {
		t.Fatal("expected error for unconfigured postgres")
	}
}
