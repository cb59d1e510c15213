package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"soulbench/internal/artifacts"
	"soulbench/internal/evaluation"
)

// LoadRun reads the manifest, round lines and selected document of a run
// directory. A missing document is not an error.
func LoadRun(dir string) (Run, error) {
	var run Run
	data, err := os.ReadFile(filepath.Join(dir, artifacts.ManifestFile))
	if err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal(data, &run.Manifest); err != nil {
		return Run{}, fmt.Errorf("decode %s: %w", artifacts.ManifestFile, err)
	}
	rounds, err := loadRounds(filepath.Join(dir, artifacts.RoundsFile))
	if err != nil {
		return Run{}, err
	}
	run.Rounds = rounds
	doc, err := os.ReadFile(filepath.Join(dir, artifacts.BestDocumentFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Run{}, err
	}
	run.Document = string(doc)
	return run, nil
}

func loadRounds(path string) ([]evaluation.Summary, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	var rounds []evaluation.Summary
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var summary evaluation.Summary
		if err := json.Unmarshal(scanner.Bytes(), &summary); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), line, err)
		}
		rounds = append(rounds, summary)
	}
	return rounds, scanner.Err()
}
