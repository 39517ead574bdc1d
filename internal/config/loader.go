package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global
// config, defaults. Missing files are not errors; malformed JSON is.
func Load(globalPath, projectPath string) (*EngineConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.workorder/config.json
// Project: .workorder/config.json (relative to cwd)
func LoadDefault() (*EngineConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".workorder", "config.json")
	projectPath := filepath.Join(".workorder", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile overlays a JSON config file onto the base config.
// Fields absent from the file keep their current values.
func mergeConfigFile(base *EngineConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // missing file is not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}
