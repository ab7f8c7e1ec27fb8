package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_LocalOverlayWinsOverGlobal(t *testing.T) {
	root := t.TempDir()
	global := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", global)

	globalPath := filepath.Join(global, "vt", "config")
	if err := os.MkdirAll(filepath.Dir(globalPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(globalPath, []byte("api_key = \"global-key\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(filepath.Join(root, ".vt"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, LocalConfigRelPath), []byte("api_key = \"local-key\"\n\n[dangerous_operations]\nconfirmation = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "local-key" {
		t.Errorf("APIKey = %q, want local-key", cfg.APIKey)
	}
	if !cfg.Confirmation {
		t.Errorf("Confirmation = false, want true")
	}
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("VT_API_KEY", "env-key")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env-key", cfg.APIKey)
	}
}

func TestSaveThenLoad(t *testing.T) {
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	want := &Config{APIKey: "saved-key", Confirmation: true}
	if err := Save(root, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.APIKey != want.APIKey || got.Confirmation != want.Confirmation {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
