package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConnectionStringPrefersDSN(t *testing.T) {
	c := DatabaseConfig{DSN: "postgres://explicit", Host: "ignored"}
	if got := c.ConnectionString(); got != "postgres://explicit" {
		t.Fatalf("expected explicit DSN to win, got %q", got)
	}
}

func TestConnectionStringBuildsFromParts(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "h51", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=h51 sslmode=disable"
	if got := c.ConnectionString(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestLoadFileAppliesDefaultsThenOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "server:\n  host: 0.0.0.0\n  port: 9090\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected the file override to apply, got port=%d", cfg.Server.Port)
	}
	if cfg.Limits.Timezone != "UTC" {
		t.Fatalf("expected the default timezone to survive a partial override, got %q", cfg.Limits.Timezone)
	}
}

func TestLoadFileMissingPathKeepsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Fatalf("expected the default redis addr, got %q", cfg.Redis.Addr)
	}
}

func TestLoadFileHonorsDatabaseURLOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://from-env")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Database.DSN != "postgres://from-env" {
		t.Fatalf("expected DATABASE_URL to override the DSN, got %q", cfg.Database.DSN)
	}
}
