package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Ingest.BatchSize != 500_000 {
		t.Errorf("BatchSize = %d, want 500000", cfg.Ingest.BatchSize)
	}
	if cfg.Field.Length != 120 || cfg.Field.Width != 53.3 {
		t.Errorf("Field = %+v", cfg.Field)
	}
	if cfg.Redis.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v", cfg.Redis.CacheTTL)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "custom.yaml")
	yaml := "ingest:\n  batch_size: 1000\n  weeks: 3\ndatabase:\n  dsn: from-file.db\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("BATCH_SIZE", "250")
	t.Setenv("REDIS_CACHE_TTL", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Ingest.BatchSize != 250 {
		t.Errorf("BatchSize = %d, want env value 250", cfg.Ingest.BatchSize)
	}
	if cfg.Ingest.Weeks != 3 {
		t.Errorf("Weeks = %d, want file value 3", cfg.Ingest.Weeks)
	}
	if cfg.Database.DSN != "from-file.db" {
		t.Errorf("DSN = %q", cfg.Database.DSN)
	}
	if cfg.Redis.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v", cfg.Redis.CacheTTL)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero batch", func(c *Config) { c.Ingest.BatchSize = 0 }, "BatchSize"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "Driver"},
		{"bad conflict policy", func(c *Config) { c.Ingest.OnConflict = "upsert" }, "OnConflict"},
		{"zero field width", func(c *Config) { c.Field.Width = 0 }, "Width"},
		{"fps too high", func(c *Config) { c.Server.PlaybackFPS = 500 }, "PlaybackFPS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestEnvTransformIgnoresUnknown(t *testing.T) {
	if got := envTransform("HOME"); got != "" {
		t.Errorf("envTransform(HOME) = %q, want empty", got)
	}
	if got := envTransform("DATA_DIR"); got != "ingest.data_dir" {
		t.Errorf("envTransform(DATA_DIR) = %q", got)
	}
}
