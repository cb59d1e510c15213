package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config path constants used by the CLI and loaders.
const (
	ConfigDirName  = ".soulbench"
	ConfigFileName = "config.yml"
)

// ErrConfigNotFound is returned when no config exists in any parent directory.
var ErrConfigNotFound = errors.New("config not found")

// ConfigPath returns the config file path under a project root.
func ConfigPath(root string) string {
	return filepath.Join(root, ConfigDirName, ConfigFileName)
}

// RootFromConfigPath derives the project root from a config file path.
func RootFromConfigPath(configPath string) string {
	dir := filepath.Dir(configPath)
	if filepath.Base(dir) == ConfigDirName {
		return filepath.Dir(dir)
	}
	return dir
}

// FindConfigPath searches upward from a directory for a config file.
func FindConfigPath(startDir string) (string, error) {
	dir := strings.TrimSpace(startDir)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve start directory: %w", err)
	}
	dir = abs

	for {
		configPath := ConfigPath(dir)
		info, err := os.Stat(configPath)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config path %q is a directory", configPath)
			}
			return configPath, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("stat config path %q: %w", configPath, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrConfigNotFound
		}
		dir = parent
	}
}

// ModelSlug makes a model id safe for file names.
func ModelSlug(model string) string {
	return strings.ReplaceAll(strings.TrimSpace(model), "/", "_")
}

// TaskResultsDir returns the results area for a task.
func (c Config) TaskResultsDir(task string) string {
	if c.ResultsDir != "" {
		return filepath.Join(c.ResultsDir, task)
	}
	return filepath.Join(c.DataRoot, task, "results")
}

// EvalOutputPath derives the default eval output file.
func (c Config) EvalOutputPath(task, tag, model, persona string) string {
	name := fmt.Sprintf("eval_results_%s_%s_%s.jsonl", tag, ModelSlug(model), strings.ToLower(persona))
	return filepath.Join(c.TaskResultsDir(task), name)
}

// RevisionOutputDir derives the default run directory for iterative revision.
func (c Config) RevisionOutputDir(task, persona, evalModel, revisionModel string) string {
	name := fmt.Sprintf("%s_eval-%s_rev-%s", strings.ToLower(persona), ModelSlug(evalModel), ModelSlug(revisionModel))
	return filepath.Join(c.TaskResultsDir(task), "iterative_revision", name)
}
