package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Issue captures a problem in a catalog file.
type Issue struct {
	Field   string
	Message string
}

// ValidationError reports every catalog issue found.
type ValidationError struct {
	Issues []Issue
}

func (err *ValidationError) Error() string {
	if err == nil || len(err.Issues) == 0 {
		return ""
	}
	parts := make([]string, 0, len(err.Issues))
	for _, issue := range err.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return fmt.Sprintf("catalog validation failed: %s", strings.Join(parts, "; "))
}

func validate(file File) error {
	var issues []Issue
	add := func(field, message string) {
		issues = append(issues, Issue{Field: field, Message: message})
	}
	if file.Version != 0 && file.Version != 1 {
		add("version", fmt.Sprintf("unsupported version %d", file.Version))
	}
	if !strings.Contains(file.RevisionTemplate, soulPlaceholder) {
		add("revision_template", "must contain "+soulPlaceholder)
	}
	if len(file.Tasks) == 0 {
		add("tasks", "must include at least one entry")
	}
	names := make([]string, 0, len(file.Tasks))
	for name := range file.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		task := file.Tasks[name]
		prefix := "tasks." + name
		switch task.PersonaKind {
		case KindPolitical, KindCountry:
		default:
			add(prefix+".persona_kind", fmt.Sprintf("must be %q or %q", KindPolitical, KindCountry))
		}
		if len(task.Personas) == 0 {
			add(prefix+".personas", "must include at least one entry")
		}
		if !strings.Contains(task.SoulTemplate, soulPlaceholder) {
			add(prefix+".soul_template", "must contain "+soulPlaceholder)
		}
		if task.DatasetPattern != "" && !strings.Contains(task.DatasetPattern, "{split}") {
			add(prefix+".dataset_pattern", "must contain {split}")
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
