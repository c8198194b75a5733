// Package config loads the engine's tunables from a YAML file: page size,
// node capacity, the inline/lazy value threshold, buffer pool size, and
// the background compaction schedule (SPEC_FULL.md §10.3).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the engine needs to open a store and tree.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Tree    TreeConfig    `yaml:"tree"`
	Compact CompactConfig `yaml:"compaction"`
}

// StoreConfig configures the underlying record manager (internal/record).
type StoreConfig struct {
	DBPath        string `yaml:"db_path"`
	WALPath       string `yaml:"wal_path"`
	PageSize      int    `yaml:"page_size"`
	MaxCachePages int    `yaml:"max_cache_pages"`
}

// TreeConfig configures the B+Tree page layout (internal/bplus.Context).
type TreeConfig struct {
	Cap                 int  `yaml:"cap"`
	MaxInlineRecordSize int  `yaml:"max_inline_record_size"`
	LoadValues          bool `yaml:"load_values"`
}

// CompactConfig configures the optional background scheduler
// (internal/compaction).
type CompactConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CheckpointCron  string `yaml:"checkpoint_cron"`
	GCCron          string `yaml:"gc_cron"`
	CheckpointEvery string `yaml:"checkpoint_every"` // alternative to CheckpointCron: a duration like "30s"
}

// Default returns a Config whose store values match the record package's
// own fallbacks for zero fields and whose tree values match
// bplus.DefaultMaxInlineRecordSize and the capacity the bundled tools use;
// bplus itself has no fallback for a zero Cap or MaxInlineRecordSize.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			PageSize:      8192,
			MaxCachePages: 1024,
		},
		Tree: TreeConfig{
			Cap:                 64,
			MaxInlineRecordSize: 512,
			LoadValues:          true,
		},
		Compact: CompactConfig{
			Enabled:        false,
			CheckpointCron: "@every 1m",
			GCCron:         "@every 15m",
		},
	}
}

// Load reads and parses a YAML config file, filling any zero-valued field
// from Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the tunables for internal consistency: a capacity that
// isn't a power of two breaks the HALF-based split/merge arithmetic
// throughout internal/bplus.
func (c *Config) Validate() error {
	if c.Store.DBPath == "" {
		return fmt.Errorf("config: store.db_path is required")
	}
	if c.Tree.Cap < 4 || c.Tree.Cap&(c.Tree.Cap-1) != 0 {
		return fmt.Errorf("config: tree.cap (%d) must be a power of two >= 4", c.Tree.Cap)
	}
	if c.Store.PageSize < 4096 || c.Store.PageSize&(c.Store.PageSize-1) != 0 {
		return fmt.Errorf("config: store.page_size (%d) must be a power of two >= 4096", c.Store.PageSize)
	}
	return nil
}

// CheckpointInterval parses CheckpointEvery, if set, as a time.Duration.
func (c *CompactConfig) CheckpointInterval() (time.Duration, error) {
	if c.CheckpointEvery == "" {
		return 0, nil
	}
	return time.ParseDuration(c.CheckpointEvery)
}
