package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yml
var defaultCatalog []byte

// ErrUnknownKey is returned for tasks, personas, documents or prompts that
// the catalog does not define.
var ErrUnknownKey = errors.New("unknown catalog key")

const soulPlaceholder = "{soul_doc}"

// Catalog is a read-only lookup of prompt material keyed by task.
type Catalog struct {
	revisionTemplate string
	tasks            map[string]Task
	root             string
}

// Default returns the built-in catalog rooted at dataRoot.
func Default(dataRoot string) (*Catalog, error) {
	file, err := parse(defaultCatalog)
	if err != nil {
		return nil, fmt.Errorf("parse built-in catalog: %w", err)
	}
	return build(file, dataRoot)
}

// Load returns the built-in catalog with the override file merged on top.
// An empty path yields the built-in catalog.
func Load(overridePath, dataRoot string) (*Catalog, error) {
	base, err := parse(defaultCatalog)
	if err != nil {
		return nil, fmt.Errorf("parse built-in catalog: %w", err)
	}
	if strings.TrimSpace(overridePath) != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		override, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", overridePath, err)
		}
		base = merge(base, override)
	}
	return build(base, dataRoot)
}

func parse(data []byte) (File, error) {
	var file File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if err == io.EOF {
			return File{}, nil
		}
		return File{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return File{}, fmt.Errorf("parse yaml: multiple documents are not supported")
		}
		return File{}, fmt.Errorf("parse yaml: %w", err)
	}
	return file, nil
}

func merge(base, override File) File {
	if strings.TrimSpace(override.RevisionTemplate) != "" {
		base.RevisionTemplate = override.RevisionTemplate
	}
	if base.Tasks == nil {
		base.Tasks = map[string]Task{}
	}
	for name, task := range override.Tasks {
		current, ok := base.Tasks[name]
		if !ok {
			base.Tasks[name] = task
			continue
		}
		if task.PersonaKind != "" {
			current.PersonaKind = task.PersonaKind
		}
		if len(task.Personas) > 0 {
			current.Personas = task.Personas
		}
		if task.DatasetPattern != "" {
			current.DatasetPattern = task.DatasetPattern
		}
		if task.References != "" {
			current.References = task.References
		}
		if task.ReferenceAnswerKey != "" {
			current.ReferenceAnswerKey = task.ReferenceAnswerKey
		}
		if task.SoulDir != "" {
			current.SoulDir = task.SoulDir
		}
		if task.SoulTemplate != "" {
			current.SoulTemplate = task.SoulTemplate
		}
		current.Souls = mergeStrings(current.Souls, task.Souls)
		current.StaticPrompts = mergeStrings(current.StaticPrompts, task.StaticPrompts)
		base.Tasks[name] = current
	}
	return base
}

func mergeStrings(base, override map[string]string) map[string]string {
	if len(override) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(override))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range override {
		merged[key] = value
	}
	return merged
}

func build(file File, root string) (*Catalog, error) {
	if err := validate(file); err != nil {
		return nil, err
	}
	return &Catalog{
		revisionTemplate: file.RevisionTemplate,
		tasks:            file.Tasks,
		root:             root,
	}, nil
}

// Tasks lists task names in sorted order.
func (c *Catalog) Tasks() []string {
	names := make([]string, 0, len(c.tasks))
	for name := range c.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Task returns the task definition.
func (c *Catalog) Task(name string) (Task, error) {
	task, ok := c.tasks[name]
	if !ok {
		return Task{}, fmt.Errorf("%w: task %q (available: %s)", ErrUnknownKey, name, strings.Join(c.Tasks(), ", "))
	}
	return task, nil
}

// ResolvePersona matches persona case-insensitively and returns the
// catalog spelling.
func (c *Catalog) ResolvePersona(taskName, persona string) (string, error) {
	task, err := c.Task(taskName)
	if err != nil {
		return "", err
	}
	for _, candidate := range task.Personas {
		if strings.EqualFold(candidate, strings.TrimSpace(persona)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: persona %q for %s must be one of: %s", ErrUnknownKey, persona, taskName, strings.Join(task.Personas, ", "))
}

// PersonaInfo returns the display name and descriptive phrase used in
// generation and revision prompts.
func (c *Catalog) PersonaInfo(taskName, persona string) (string, string, error) {
	task, err := c.Task(taskName)
	if err != nil {
		return "", "", err
	}
	if task.PersonaKind == KindPolitical {
		name := capitalize(persona)
		return name, name + "s in the United States", nil
	}
	return persona, "the people of " + persona, nil
}

// StaticPrompt returns a baseline system prompt with persona placeholders
// filled in.
func (c *Catalog) StaticPrompt(taskName, key, persona string) (string, error) {
	task, err := c.Task(taskName)
	if err != nil {
		return "", err
	}
	prompt, ok := task.StaticPrompts[key]
	if !ok {
		return "", fmt.Errorf("%w: static prompt %q for %s (available: %s)", ErrUnknownKey, key, taskName, strings.Join(sortedKeys(task.StaticPrompts), ", "))
	}
	replacer := strings.NewReplacer(
		"{political_party}", capitalize(persona),
		"{country}", persona,
	)
	return replacer.Replace(prompt), nil
}

// SoulDoc returns a named persona document, inline entries first, then
// <soul_dir>/<key>.md or <key>.txt under the data root.
func (c *Catalog) SoulDoc(taskName, key string) (string, error) {
	task, err := c.Task(taskName)
	if err != nil {
		return "", err
	}
	if doc, ok := task.Souls[key]; ok {
		return strings.TrimSpace(doc), nil
	}
	if strings.TrimSpace(key) != "" && task.SoulDir != "" && !strings.ContainsAny(key, `/\`) {
		dir := c.resolve(task.SoulDir)
		for _, ext := range []string{".md", ".txt"} {
			data, err := os.ReadFile(filepath.Join(dir, key+ext))
			if err == nil {
				return strings.TrimSpace(string(data)), nil
			}
			if !errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("read soul document: %w", err)
			}
		}
	}
	return "", fmt.Errorf("%w: soul document %q for %s", ErrUnknownKey, key, taskName)
}

// SoulPrompt wraps doc in the task's evaluation template.
func (c *Catalog) SoulPrompt(taskName, doc string) (string, error) {
	task, err := c.Task(taskName)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(task.SoulTemplate, soulPlaceholder, doc), nil
}

// RevisionPrompt wraps doc in the template used by revision runs.
func (c *Catalog) RevisionPrompt(doc string) string {
	return strings.ReplaceAll(c.revisionTemplate, soulPlaceholder, doc)
}

// DatasetPatterns maps each task to its dataset path pattern.
func (c *Catalog) DatasetPatterns() map[string]string {
	patterns := make(map[string]string, len(c.tasks))
	for name, task := range c.tasks {
		if task.DatasetPattern != "" {
			patterns[name] = task.DatasetPattern
		}
	}
	return patterns
}

// References returns the reference Q&A path and the answer key for persona.
func (c *Catalog) References(taskName, persona string) (string, string, error) {
	task, err := c.Task(taskName)
	if err != nil {
		return "", "", err
	}
	if task.References == "" {
		return "", "", fmt.Errorf("%w: %s has no reference questions", ErrUnknownKey, taskName)
	}
	key := strings.NewReplacer(
		"{persona_lower}", strings.ToLower(persona),
		"{persona}", persona,
	).Replace(task.ReferenceAnswerKey)
	return c.resolve(task.References), key, nil
}

func (c *Catalog) resolve(path string) string {
	if filepath.IsAbs(path) || c.root == "" {
		return filepath.FromSlash(path)
	}
	return filepath.Join(c.root, filepath.FromSlash(path))
}

func capitalize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + strings.ToLower(value[1:])
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
