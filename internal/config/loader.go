package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape of a connection configuration. Pointer fields
// distinguish "absent" from zero so the file only overrides what it names.
type fileConfig struct {
	Path        *string `yaml:"path"`
	BusyTimeout *string `yaml:"busy_timeout"`
	JournalMode *string `yaml:"journal_mode"`
	Synchronous *string `yaml:"synchronous"`
	ForeignKeys *bool   `yaml:"foreign_keys"`
	CacheKB     *int    `yaml:"cache_kb"`
	ReadOnly    *bool   `yaml:"read_only"`
}

// Load reads a YAML connection configuration. Fields absent from the file
// keep their Default values. The result is validated before returning.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes on top of Default.
func Parse(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if fc.Path != nil {
		cfg.Path = *fc.Path
	}
	if fc.BusyTimeout != nil {
		d, err := time.ParseDuration(*fc.BusyTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse config: busy_timeout: %w", err)
		}
		cfg.BusyTimeout = d
	}
	if fc.JournalMode != nil {
		cfg.JournalMode = *fc.JournalMode
	}
	if fc.Synchronous != nil {
		cfg.Synchronous = *fc.Synchronous
	}
	if fc.ForeignKeys != nil {
		cfg.ForeignKeys = *fc.ForeignKeys
	}
	if fc.CacheKB != nil {
		cfg.CacheKB = *fc.CacheKB
	}
	if fc.ReadOnly != nil {
		cfg.ReadOnly = *fc.ReadOnly
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
