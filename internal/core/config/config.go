package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/chronicle-lab/chronicle/internal/core/partition"
	"github.com/chronicle-lab/chronicle/internal/journal"
)

// Config represents the top-level application config.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Journal  JournalConfig  `koanf:"journal"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type JournalConfig struct {
	// DeletePolicy selects soft (tombstone) or hard (physical) deletion.
	DeletePolicy string `koanf:"delete_policy"`
	// DecodePolicy selects whether a message stream fails or skips on a row
	// the serializer cannot decode.
	DecodePolicy string `koanf:"decode_policy"`
	// PruneReads enables the metadata-assisted partition pruning read path.
	PruneReads bool `koanf:"prune_reads"`
	// MaxBatchSize caps one write batch; 0 disables the cap.
	MaxBatchSize int `koanf:"max_batch_size"`
	// MetadataShards is the fixed shard count of the summary table.
	MetadataShards int `koanf:"metadata_shards"`
}

// DaoOptions maps the journal section onto the DAO configuration surface.
func (c JournalConfig) DaoOptions() journal.Options {
	return journal.Options{
		DeletePolicy: journal.DeletePolicy(c.DeletePolicy),
		DecodePolicy: journal.DecodePolicy(c.DecodePolicy),
		PruneReads:   c.PruneReads,
		MaxBatchSize: c.MaxBatchSize,
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}
	if c.Database.Type != "" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	switch journal.DeletePolicy(c.Journal.DeletePolicy) {
	case journal.DeleteSoft, journal.DeleteHard:
	default:
		return fmt.Errorf("invalid journal.delete_policy %q (must be soft or hard)", c.Journal.DeletePolicy)
	}
	switch journal.DecodePolicy(c.Journal.DecodePolicy) {
	case journal.DecodeFail, journal.DecodeSkip:
	default:
		return fmt.Errorf("invalid journal.decode_policy %q (must be fail or skip)", c.Journal.DecodePolicy)
	}
	if c.Journal.MaxBatchSize < 0 {
		return fmt.Errorf("journal.max_batch_size must be >= 0")
	}
	if c.Journal.MetadataShards <= 0 {
		return fmt.Errorf("journal.metadata_shards must be > 0")
	}

	return nil
}

// Load parses config from file + env and validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.max_body_size_mb": 1,
		"server.mode":             "release",
		"database.type":           "postgres",
		"database.dsn":            "",
		"database.max_open_conns": 25,
		"database.max_idle_conns": 25,
		"database.auto_migrate":   true,
		"journal.delete_policy":   string(journal.DeleteSoft),
		"journal.decode_policy":   string(journal.DecodeFail),
		"journal.prune_reads":     true,
		"journal.max_batch_size":  1000,
		"journal.metadata_shards": partition.DefaultShards,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("CHRONICLE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CHRONICLE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
