package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	ErrEmpty          = errors.New("dataset has no records")
	ErrDuplicateID    = errors.New("duplicate record id")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidLabel   = errors.New("invalid label")
	ErrUnsupportedRow = errors.New("record is not a json object")
)

var (
	idKeys    = []string{"record_id", "id", "qid"}
	claimKeys = []string{"choice_agree", "choice", "claim"}
	labelKeys = []string{"label", "ground_truth", "answer"}
)

const maxLineBytes = 4 << 20

// LoadFile reads a JSONL dataset from disk.
func LoadFile(path, persona string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()
	records, err := Decode(file, persona)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Decode parses JSONL records. Blank lines are skipped. Records without an id
// get a positional id derived from the persona.
func Decode(reader io.Reader, persona string) ([]Record, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var records []Record
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		record, err := decodeRecord(raw, persona, len(records))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}
	if err := CheckUnique(records); err != nil {
		return nil, err
	}
	return records, nil
}

// CheckUnique rejects record lists that reuse an id.
func CheckUnique(records []Record) error {
	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		if _, ok := seen[record.ID]; ok {
			return fmt.Errorf("%w %q", ErrDuplicateID, record.ID)
		}
		seen[record.ID] = struct{}{}
	}
	return nil
}

func decodeRecord(raw []byte, persona string, position int) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrUnsupportedRow, err)
	}
	record := Record{Persona: persona}
	if value, ok := stringField(fields, "persona"); ok && value != "" {
		record.Persona = value
	}

	record.ID = firstScalar(fields, idKeys...)
	if record.ID == "" {
		record.ID = fmt.Sprintf("%s-%04d", slug(record.Persona), position)
	}

	question, _ := stringField(fields, "question")
	record.Question = strings.TrimSpace(question)
	if record.Question == "" {
		return Record{}, fmt.Errorf("%w: question", ErrMissingField)
	}

	for _, key := range claimKeys {
		if value, ok := stringField(fields, key); ok && strings.TrimSpace(value) != "" {
			record.Claim = strings.TrimSpace(value)
			break
		}
	}

	if rawChoices, ok := fields["choices"]; ok && !isNull(rawChoices) {
		if err := json.Unmarshal(rawChoices, &record.Choices); err != nil {
			return Record{}, fmt.Errorf("choices: %w", err)
		}
	}

	var rawLabel json.RawMessage
	for _, key := range labelKeys {
		if value, ok := fields[key]; ok && !isNull(value) {
			rawLabel = value
			break
		}
	}
	if rawLabel == nil {
		return Record{}, fmt.Errorf("%w: label", ErrMissingField)
	}
	label, err := parseLabel(rawLabel, len(record.Choices))
	if err != nil {
		return Record{}, err
	}
	record.GroundTruth = label
	return record, nil
}

func parseLabel(raw json.RawMessage, choices int) (Answer, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrInvalidLabel, err)
	}
	if choices > 0 {
		index, err := choiceIndex(value, choices)
		if err != nil {
			return Answer{}, err
		}
		return Choice(index), nil
	}
	switch typed := value.(type) {
	case bool:
		return Boolean(typed), nil
	case float64:
		if typed == 0 || typed == 1 {
			return Boolean(typed == 1), nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "agree", "yes", "1":
			return Boolean(true), nil
		case "false", "disagree", "no", "0":
			return Boolean(false), nil
		}
	}
	return Answer{}, fmt.Errorf("%w %s", ErrInvalidLabel, string(raw))
}

func choiceIndex(value any, choices int) (int, error) {
	index := -1
	switch typed := value.(type) {
	case float64:
		if typed == float64(int(typed)) {
			index = int(typed)
		}
	case string:
		text := strings.ToUpper(strings.Trim(strings.TrimSpace(typed), "()."))
		if len(text) == 1 && text[0] >= 'A' && text[0] <= 'Z' {
			index = int(text[0] - 'A')
		} else if parsed, err := strconv.Atoi(text); err == nil {
			index = parsed
		}
	}
	if index < 0 || index >= choices {
		return 0, fmt.Errorf("%w: choice %v out of range for %d options", ErrInvalidLabel, value, choices)
	}
	return index, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok || isNull(raw) {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

func firstScalar(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok || isNull(raw) {
			continue
		}
		if value, ok := stringField(fields, key); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
			continue
		}
		var number json.Number
		if err := json.Unmarshal(raw, &number); err == nil {
			return number.String()
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func slug(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "record"
	}
	return strings.ReplaceAll(value, " ", "_")
}
