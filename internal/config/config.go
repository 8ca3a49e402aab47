// Package config loads runtime configuration from an optional YAML file
// with ODOOVEC_* environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Odoo struct {
		URL      string        `yaml:"url"`
		Database string        `yaml:"database"`
		Username string        `yaml:"username"`
		APIKey   string        `yaml:"api_key"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"odoo"`

	Vector struct {
		URL        string `yaml:"url"`
		APIKey     string `yaml:"api_key"`
		Collection string `yaml:"collection"`
	} `yaml:"vector"`

	Embeddings struct {
		URL       string `yaml:"url"`
		APIKey    string `yaml:"api_key"`
		Model     string `yaml:"model"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"embeddings"`

	Sync struct {
		// ProtocolVersion selects the wire format: 2 numeric or
		// 3 dynamic. Version 1 (letter) decodes legacy strings only
		// and is rejected here.
		ProtocolVersion int      `yaml:"protocol_version"`
		Models          []string `yaml:"models"`
		BatchSize       int      `yaml:"batch_size"`
		MaxRetries      int      `yaml:"max_retries"`
		// Schedule is a cron expression; empty disables scheduled syncs.
		Schedule string `yaml:"schedule"`
	} `yaml:"sync"`

	Paths struct {
		SchemaFile   string `yaml:"schema_file"`
		ChecksumFile string `yaml:"checksum_file"`
		HistoryDB    string `yaml:"history_db"`
	} `yaml:"paths"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	var c Config
	c.Odoo.Timeout = 60 * time.Second
	c.Vector.URL = "http://localhost:6333"
	c.Vector.Collection = "odoovec"
	c.Embeddings.URL = "https://api.openai.com"
	c.Embeddings.Model = "text-embedding-3-small"
	c.Embeddings.BatchSize = 96
	c.Sync.ProtocolVersion = 3
	c.Sync.BatchSize = 200
	c.Sync.MaxRetries = 5
	c.Paths.ChecksumFile = "checksums.json"
	c.Paths.HistoryDB = "history.db"
	return c
}

// Load builds the configuration: defaults, then the YAML file at path
// (missing file is fine when path came from the default), then
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// no file, defaults + env only
		case err != nil:
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("ODOOVEC_ODOO_URL", &cfg.Odoo.URL)
	setString("ODOOVEC_ODOO_DATABASE", &cfg.Odoo.Database)
	setString("ODOOVEC_ODOO_USERNAME", &cfg.Odoo.Username)
	setString("ODOOVEC_ODOO_API_KEY", &cfg.Odoo.APIKey)
	setString("ODOOVEC_VECTOR_URL", &cfg.Vector.URL)
	setString("ODOOVEC_VECTOR_API_KEY", &cfg.Vector.APIKey)
	setString("ODOOVEC_VECTOR_COLLECTION", &cfg.Vector.Collection)
	setString("ODOOVEC_EMBEDDINGS_URL", &cfg.Embeddings.URL)
	setString("ODOOVEC_EMBEDDINGS_API_KEY", &cfg.Embeddings.APIKey)
	setString("ODOOVEC_EMBEDDINGS_MODEL", &cfg.Embeddings.Model)
	setInt("ODOOVEC_EMBEDDINGS_BATCH_SIZE", &cfg.Embeddings.BatchSize)
	setInt("ODOOVEC_SYNC_PROTOCOL_VERSION", &cfg.Sync.ProtocolVersion)
	setInt("ODOOVEC_SYNC_BATCH_SIZE", &cfg.Sync.BatchSize)
	setInt("ODOOVEC_SYNC_MAX_RETRIES", &cfg.Sync.MaxRetries)
	setString("ODOOVEC_SYNC_SCHEDULE", &cfg.Sync.Schedule)
	setString("ODOOVEC_SCHEMA_FILE", &cfg.Paths.SchemaFile)
	setString("ODOOVEC_CHECKSUM_FILE", &cfg.Paths.ChecksumFile)
	setString("ODOOVEC_HISTORY_DB", &cfg.Paths.HistoryDB)

	if v, ok := os.LookupEnv("ODOOVEC_SYNC_MODELS"); ok {
		var models []string
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				models = append(models, m)
			}
		}
		cfg.Sync.Models = models
	}
}

// Validate checks the invariants every entry point relies on. It gathers
// all problems instead of stopping at the first.
func (c Config) Validate() error {
	var problems []string

	if c.Odoo.URL == "" && c.Paths.SchemaFile == "" {
		problems = append(problems, "either odoo.url or paths.schema_file must be set (no schema source)")
	}
	if c.Odoo.URL != "" {
		if c.Odoo.Database == "" {
			problems = append(problems, "odoo.database is required when odoo.url is set")
		}
		if c.Odoo.Username == "" {
			problems = append(problems, "odoo.username is required when odoo.url is set")
		}
		if c.Odoo.APIKey == "" {
			problems = append(problems, "odoo.api_key is required when odoo.url is set")
		}
	}
	if c.Vector.URL == "" {
		problems = append(problems, "vector.url is required")
	}
	if c.Vector.Collection == "" {
		problems = append(problems, "vector.collection is required")
	}
	if c.Embeddings.URL == "" {
		problems = append(problems, "embeddings.url is required")
	}
	if c.Embeddings.Model == "" {
		problems = append(problems, "embeddings.model is required")
	}
	if c.Sync.ProtocolVersion < 1 || c.Sync.ProtocolVersion > 3 {
		problems = append(problems, fmt.Sprintf("sync.protocol_version %d is not a known wire format (1, 2 or 3)", c.Sync.ProtocolVersion))
	} else if c.Sync.ProtocolVersion == 1 {
		// The letter format's coordinates come from a fixed table that
		// neither the schema file nor ERP metadata can produce; it exists
		// for decoding legacy strings only.
		problems = append(problems, "sync.protocol_version 1 (letter) cannot load a schema; use version 2 or 3")
	}
	if c.Sync.BatchSize <= 0 {
		problems = append(problems, "sync.batch_size must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
