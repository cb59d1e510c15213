package revision

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"soulbench/internal/grading"
)

// ErrValidation reports a revision response that did not yield a usable
// document.
var ErrValidation = errors.New("revision validation failed")

const documentKey = "soul_doc"

var fencedObject = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)```")

// ParseObject decodes a JSON object from a model response. It tries the
// text directly, then a fenced block, then the first-brace to last-brace
// span.
func ParseObject(raw string) (map[string]any, error) {
	text := grading.StripThinking(raw)
	var object map[string]any
	if err := json.Unmarshal([]byte(text), &object); err == nil {
		return object, nil
	}
	if match := fencedObject.FindStringSubmatch(text); match != nil {
		if err := json.Unmarshal([]byte(strings.TrimSpace(match[1])), &object); err == nil {
			return object, nil
		}
	}
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first >= 0 && last > first {
		if err := json.Unmarshal([]byte(text[first:last+1]), &object); err == nil {
			return object, nil
		}
	}
	return nil, fmt.Errorf("%w: could not parse json from response: %s", ErrValidation, preview(raw, 200))
}

// ExtractDocument returns the trimmed persona document from a response.
// A missing soul_doc key falls back to the first string value whose key
// contains "soul".
func ExtractDocument(raw string, maxChars int) (string, error) {
	object, err := ParseObject(raw)
	if err != nil {
		return "", err
	}
	if _, ok := object[documentKey]; !ok {
		if key, value, found := soulLikeValue(object); found {
			object[documentKey] = value
			delete(object, key)
		}
	}
	if err := validateObject(object); err != nil {
		return "", err
	}
	doc := strings.TrimSpace(object[documentKey].(string))
	if doc == "" {
		return "", fmt.Errorf("%w: document is empty", ErrValidation)
	}
	if maxChars > 0 {
		if count := utf8.RuneCountInString(doc); count > maxChars {
			return "", fmt.Errorf("%w: document has %d characters, limit is %d", ErrValidation, count, maxChars)
		}
	}
	return doc, nil
}

func soulLikeValue(object map[string]any) (string, string, bool) {
	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}
	// Map order is random; pick deterministically.
	sort.Strings(keys)
	for _, key := range keys {
		if !strings.Contains(strings.ToLower(key), "soul") {
			continue
		}
		if value, ok := object[key].(string); ok {
			return key, value, true
		}
	}
	return "", "", false
}

func preview(text string, limit int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
