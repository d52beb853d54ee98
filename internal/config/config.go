// Package config loads metapitch configuration from built-in defaults, an
// optional YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"metapitch.yaml",
	"metapitch.yml",
	"/etc/metapitch/config.yaml",
}

// Config is the full application configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Field    FieldConfig    `koanf:"field"`
	Server   ServerConfig   `koanf:"server"`
	Redis    RedisConfig    `koanf:"redis"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `koanf:"dsn" validate:"required"`
}

// IngestConfig controls the rebuild pipeline.
type IngestConfig struct {
	DataDir    string `koanf:"data_dir" validate:"required"`
	BatchSize  int    `koanf:"batch_size" validate:"min=1"`
	Weeks      int    `koanf:"weeks" validate:"min=1"`
	SourceTag  string `koanf:"source_tag" validate:"required"`
	OnConflict string `koanf:"on_conflict" validate:"oneof=fail ignore"`
}

// FieldConfig is the playing-surface geometry used for mirroring, in yards.
type FieldConfig struct {
	Length float64 `koanf:"length" validate:"gt=0"`
	Width  float64 `koanf:"width" validate:"gt=0"`
}

// ServerConfig configures the read API and playback servers.
type ServerConfig struct {
	RESTPort    string `koanf:"rest_port" validate:"required"`
	WSPort      string `koanf:"ws_port" validate:"required"`
	PlaybackFPS int    `koanf:"playback_fps" validate:"min=1,max=60"`
}

// RedisConfig is optional; an empty URL disables caching and run events.
type RedisConfig struct {
	URL      string        `koanf:"url"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
	Stream   string        `koanf:"stream"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "data/metapitch.db",
		},
		Ingest: IngestConfig{
			DataDir:    "data/nfl-big-data-bowl-2025",
			BatchSize:  500_000,
			Weeks:      9,
			SourceTag:  "kaggle",
			OnConflict: "fail",
		},
		Field: FieldConfig{
			Length: 120.0,
			Width:  53.3,
		},
		Server: ServerConfig{
			RESTPort:    "8080",
			WSPort:      "8081",
			PlaybackFPS: 10,
		},
		Redis: RedisConfig{
			CacheTTL: 10 * time.Minute,
			Stream:   "metapitch.ingest",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults, then the config file if one is
// found, then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"db_driver":       "database.driver",
	"database_dsn":    "database.dsn",
	"data_dir":        "ingest.data_dir",
	"batch_size":      "ingest.batch_size",
	"tracking_weeks":  "ingest.weeks",
	"source_tag":      "ingest.source_tag",
	"on_conflict":     "ingest.on_conflict",
	"field_length":    "field.length",
	"field_width":     "field.width",
	"rest_port":       "server.rest_port",
	"ws_port":         "server.ws_port",
	"playback_fps":    "server.playback_fps",
	"redis_url":       "redis.url",
	"redis_cache_ttl": "redis.cache_ttl",
	"redis_stream":    "redis.stream",
	"log_level":       "logging.level",
	"log_format":      "logging.format",
}

// envTransform maps known environment variables onto config paths and drops
// everything else.
func envTransform(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
