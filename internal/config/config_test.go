package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FillsDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	body := `
store:
  db_path: ` + filepath.Join(dir, "data.db") + `
  page_size: 16384
tree:
  cap: 128
compaction:
  enabled: true
  checkpoint_every: 30s
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.PageSize != 16384 {
		t.Fatalf("page size = %d, want 16384", cfg.Store.PageSize)
	}
	if cfg.Tree.Cap != 128 {
		t.Fatalf("cap = %d, want 128", cfg.Tree.Cap)
	}
	if cfg.Tree.MaxInlineRecordSize != 512 {
		t.Fatalf("max inline record size = %d, want default 512", cfg.Tree.MaxInlineRecordSize)
	}
	if !cfg.Compact.Enabled {
		t.Fatalf("compaction.enabled = false, want true")
	}
	d, err := cfg.Compact.CheckpointInterval()
	if err != nil {
		t.Fatalf("checkpoint interval: %v", err)
	}
	if d.Seconds() != 30 {
		t.Fatalf("checkpoint interval = %v, want 30s", d)
	}
}

func TestValidate_RejectsNonPowerOfTwoCap(t *testing.T) {
	cfg := Default()
	cfg.Store.DBPath = "x.db"
	cfg.Tree.Cap = 100
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for cap=100")
	}
}

func TestValidate_RequiresDBPath(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for missing db_path")
	}
}
