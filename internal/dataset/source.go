package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPattern lays out datasets when a task has no explicit pattern.
const DefaultPattern = "{task}/data/{split}/{task}_{persona_lower}.jsonl"

// Source resolves the records for a task, persona and split.
type Source interface {
	Load(ctx context.Context, task, persona, split string) (Dataset, error)
}

// FileSource reads JSONL datasets below Root using per-task path patterns.
type FileSource struct {
	Root     string
	Patterns map[string]string
}

// Path expands the dataset location for a task, persona and split.
func (s FileSource) Path(task, persona, split string) string {
	pattern := s.Patterns[task]
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultPattern
	}
	rel := ExpandPattern(pattern, task, persona, split)
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(s.Root, filepath.FromSlash(rel))
}

// Exists reports whether the split file is present.
func (s FileSource) Exists(task, persona, split string) bool {
	info, err := os.Stat(s.Path(task, persona, split))
	return err == nil && !info.IsDir()
}

// Load reads and validates one dataset split.
func (s FileSource) Load(ctx context.Context, task, persona, split string) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return Dataset{}, err
	}
	path := s.Path(task, persona, split)
	records, err := LoadFile(path, persona)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Dataset{}, fmt.Errorf("dataset not found: %s: %w", path, os.ErrNotExist)
		}
		return Dataset{}, err
	}
	return Dataset{
		Task:    task,
		Persona: persona,
		Split:   split,
		Path:    path,
		Records: records,
	}, nil
}

// ExpandPattern substitutes {task}, {persona}, {persona_lower} and {split}.
func ExpandPattern(pattern, task, persona, split string) string {
	replacer := strings.NewReplacer(
		"{task}", task,
		"{persona}", persona,
		"{persona_lower}", strings.ToLower(persona),
		"{split}", split,
	)
	return replacer.Replace(pattern)
}

// MemorySource serves fixed datasets keyed by task/persona/split.
type MemorySource map[string][]Record

// MemoryKey builds the lookup key used by MemorySource.
func MemoryKey(task, persona, split string) string {
	return task + "/" + strings.ToLower(persona) + "/" + split
}

// Load returns a copy of the stored records.
func (s MemorySource) Load(ctx context.Context, task, persona, split string) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return Dataset{}, err
	}
	records, ok := s[MemoryKey(task, persona, split)]
	if !ok {
		return Dataset{}, fmt.Errorf("dataset %s: %w", MemoryKey(task, persona, split), os.ErrNotExist)
	}
	if len(records) == 0 {
		return Dataset{}, ErrEmpty
	}
	if err := CheckUnique(records); err != nil {
		return Dataset{}, err
	}
	copied := make([]Record, len(records))
	copy(copied, records)
	return Dataset{Task: task, Persona: persona, Split: split, Records: copied}, nil
}
