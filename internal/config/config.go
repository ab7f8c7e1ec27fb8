// Package config implements the Config collaborator: an api key
// and dangerous-operations confirmation flag, discovered from a local
// .vt/config overlay merged over a process-wide global config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

const (
	// LocalConfigRelPath is the local overlay, relative to a working tree root.
	LocalConfigRelPath = ".vt/config"

	envAPIKey       = "VT_API_KEY"
	envConfirmation = "VT_CONFIRMATION"
)

// Config is the collaborator engine operations read api_key and
// dangerous_operations.confirmation from.
type Config struct {
	APIKey string

	// Confirmation, when true, tells the CLI to prompt before a destructive
	// operation; the engine itself never blocks on it.
	Confirmation bool
}

// fileShape is the on-disk TOML layout for both the local and global config
// files.
type fileShape struct {
	APIKey              string `toml:"api_key"`
	DangerousOperations struct {
		Confirmation bool `toml:"confirmation"`
	} `toml:"dangerous_operations"`
}

// GlobalConfigPath returns the process-wide config file location,
// $XDG_CONFIG_HOME/vt/config or ~/.config/vt/config.
func GlobalConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "vt", "config"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "vt", "config"), nil
}

// Load reads the global config file, merges the local <root>/.vt/config
// overlay on top, then applies environment variable overrides, mirroring
// a layered feature-flag style (env-var overrides of file config) but
// generalized to a file-backed viper merge.
func Load(root string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	globalPath, err := GlobalConfigPath()
	if err != nil {
		return nil, err
	}
	if err := mergeFile(v, globalPath); err != nil {
		return nil, err
	}

	localPath := filepath.Join(root, LocalConfigRelPath)
	if err := mergeFile(v, localPath); err != nil {
		return nil, err
	}

	cfg := &Config{
		APIKey:       v.GetString("api_key"),
		Confirmation: v.GetBool("dangerous_operations.confirmation"),
	}

	if key := os.Getenv(envAPIKey); key != "" {
		cfg.APIKey = key
	}
	if v := os.Getenv(envConfirmation); v != "" {
		cfg.Confirmation = v == "1" || v == "true" || v == "yes" || v == "on"
	}

	return cfg, nil
}

// mergeFile reads a TOML file at path into v, setting only the keys the
// file defines so later calls layer over earlier ones. A missing file is not an error:
// both the global and local config are optional.
func mergeFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var parsed fileShape
	md, err := toml.Decode(string(data), &parsed)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	v.Set("api_key", coalesce(parsed.APIKey, v.GetString("api_key")))
	if md.IsDefined("dangerous_operations", "confirmation") {
		v.Set("dangerous_operations.confirmation", parsed.DangerousOperations.Confirmation)
	}
	return nil
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Save writes cfg as the local <root>/.vt/config overlay.
func Save(root string, cfg *Config) error {
	dir := filepath.Dir(filepath.Join(root, LocalConfigRelPath))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	var shape fileShape
	shape.APIKey = cfg.APIKey
	shape.DangerousOperations.Confirmation = cfg.Confirmation

	f, err := os.OpenFile(filepath.Join(root, LocalConfigRelPath), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open config for write: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(shape); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
