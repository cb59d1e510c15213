package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Load reads, parses, normalizes, and validates a config file. Relative paths
// inside the file resolve against the project root that owns it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, err
	}
	Normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	Resolve(&cfg, RootFromConfigPath(path))
	return cfg, nil
}

// LoadOrDefault loads an explicit config path, or the nearest discovered
// config, or falls back to defaults rooted at startDir.
func LoadOrDefault(explicit, startDir string) (Config, string, error) {
	if explicit != "" {
		cfg, err := Load(explicit)
		return cfg, explicit, err
	}
	path, err := FindConfigPath(startDir)
	if err == nil {
		cfg, loadErr := Load(path)
		return cfg, path, loadErr
	}
	if err != ErrConfigNotFound {
		return Config{}, "", err
	}
	root := startDir
	if root == "" {
		if root, err = os.Getwd(); err != nil {
			return Config{}, "", fmt.Errorf("get working directory: %w", err)
		}
	}
	cfg := Default()
	Resolve(&cfg, root)
	return cfg, "", nil
}

// Resolve makes relative paths absolute against root.
func Resolve(cfg *Config, root string) {
	cfg.DataRoot = resolvePath(root, cfg.DataRoot)
	cfg.ResultsDir = resolvePath(root, cfg.ResultsDir)
	cfg.Catalog = resolvePath(root, cfg.Catalog)
}

func resolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
