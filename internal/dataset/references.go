package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Reference is one question with the persona's reference answer, used to
// ground a freshly generated persona document.
type Reference struct {
	Question string
	Answer   string
}

// LoadReferences reads questions.jsonl and picks the answer stored under
// answerKey for every row.
func LoadReferences(path, answerKey string) ([]Reference, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open references: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var refs []Reference
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		question, _ := stringField(fields, "question")
		answer, _ := stringField(fields, answerKey)
		refs = append(refs, Reference{
			Question: strings.TrimSpace(question),
			Answer:   strings.TrimSpace(answer),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read references: %w", err)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return refs, nil
}

// FormatReferences renders numbered question and answer pairs.
func FormatReferences(refs []Reference) string {
	parts := make([]string, 0, len(refs))
	for i, ref := range refs {
		parts = append(parts, fmt.Sprintf("Question %d: %s\nAnswer %d: %s", i+1, ref.Question, i+1, ref.Answer))
	}
	return strings.Join(parts, "\n\n")
}
