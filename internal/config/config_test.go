package config

import (
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Statuses) != 3 {
		t.Errorf("got %d default statuses, want 3", len(cfg.Statuses))
	}
	if cfg.DefaultStatus != "To Do" {
		t.Errorf("DefaultStatus = %q, want %q", cfg.DefaultStatus, "To Do")
	}
	if cfg.TaskPrefix != DefaultTaskPrefix {
		t.Errorf("TaskPrefix = %q, want %q", cfg.TaskPrefix, DefaultTaskPrefix)
	}
	if cfg.MaxSearchResults <= 0 {
		t.Errorf("MaxSearchResults = %d, want > 0", cfg.MaxSearchResults)
	}
}

func TestWriteAndLoad(t *testing.T) {
	root := t.TempDir()
	if Exists(root) {
		t.Fatal("Exists() true before Write")
	}
	if err := Write(root, "Demo Project"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !Exists(root) {
		t.Fatal("Exists() false after Write")
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ProjectName != "Demo Project" {
		t.Errorf("ProjectName = %q, want %q", cfg.ProjectName, "Demo Project")
	}
}

func TestIsValidStatus(t *testing.T) {
	cfg := &Config{Statuses: []string{"To Do", "Done"}}
	if !cfg.IsValidStatus("Done") {
		t.Error("Done should be valid")
	}
	if cfg.IsValidStatus("Blocked") {
		t.Error("Blocked should be invalid")
	}
}
