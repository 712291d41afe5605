// Package config loads settings for the erpkeeper CLI.
//
// Sources, later ones winning:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file named by --config.
//  3. Environment variables ERPKEEPER_SERVER, ERPKEEPER_SESSION_DB and
//     ERPKEEPER_TIMEOUT.
//
// Command flags are applied on top by the cli package.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/timex"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	// ServerURL is the base URL of the erpkeeper API.
	ServerURL string `env:"ERPKEEPER_SERVER, overwrite"`
	// SessionDB is the SQLite file that caches the token pair.
	SessionDB string        `env:"ERPKEEPER_SESSION_DB, overwrite"`
	Timeout   time.Duration `env:"ERPKEEPER_TIMEOUT, overwrite"`
}

type fileConfig struct {
	ServerURL string         `json:"server_url"`
	SessionDB string         `json:"session_db"`
	Timeout   timex.Duration `json:"timeout"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.SessionDB = defaultSessionDB()
	c.Timeout = 15 * time.Second
}

func defaultSessionDB() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "erpkeeper-session.db"
	}
	return filepath.Join(dir, "erpkeeper", "session.db")
}

// Load applies defaults, then the JSON file at path (if any), then the
// environment.
func Load(ctx context.Context, path string, lookup envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if path != "" {
		if err := parseFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: cfg, Lookuper: lookup}); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}
	return cfg, nil
}

func parseFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.ServerURL != "" {
		cfg.ServerURL = fc.ServerURL
	}
	if fc.SessionDB != "" {
		cfg.SessionDB = fc.SessionDB
	}
	if fc.Timeout.Duration > 0 {
		cfg.Timeout = fc.Timeout.Duration
	}
	return nil
}
