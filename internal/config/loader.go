package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".langrepl"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file. LANGREPL_CONFIG
// overrides the default ~/.langrepl/config.json; a leading ~ expands
// to the home directory.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("LANGREPL_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load builds the effective configuration: defaults, then the config
// file if present, then LANGREPL_* environment overrides per group.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	envconfig.Process("LANGREPL_PATHS", &cfg.Paths)
	envconfig.Process("LANGREPL_MODEL", &cfg.Model)
	envconfig.Process("LANGREPL_APPROVAL", &cfg.Approval)
	envconfig.Process("LANGREPL_SESSION", &cfg.Session)
	envconfig.Process("LANGREPL_COMPRESSION", &cfg.Compression)

	applyPathDefaults(cfg)
	return cfg, nil
}

// Save writes the config file, creating the directory if needed.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DatabasePath returns the thread database location under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "threads.db")
}

// RulesPath returns the approval rules location, honoring an explicit
// override.
func (c *Config) RulesPath() string {
	if c.Approval.RulesFile != "" {
		return c.Approval.RulesFile
	}
	return filepath.Join(c.Paths.DataDir, "approvals.json")
}

func applyPathDefaults(cfg *Config) {
	if cfg.Paths.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			cfg.Paths.DataDir = "." + string(filepath.Separator) + ConfigDir
			return
		}
		cfg.Paths.DataDir = filepath.Join(home, ConfigDir)
	}
}
