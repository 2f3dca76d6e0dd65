package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadConfig loads and parses a configuration file. The format follows the
// extension: .yaml, .yml, .json or .lua.
func LoadConfig(path string) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".lua" {
		cfg, err := LoadLua(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg *Config
	switch ext {
	case ".yaml", ".yml":
		cfg, err = ParseConfigYAML(data)
	case ".json":
		cfg, err = ParseConfigJSON(data)
	default:
		return nil, fmt.Errorf("%w: unsupported config extension %q", ErrInvalidConfig, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}
