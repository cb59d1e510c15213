package grading

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"soulbench/internal/dataset"
)

var answerKeys = []string{"judgement", "judgment", "answer", "prediction"}

var booleanTokens = map[string]bool{
	"true":     true,
	"agree":    true,
	"false":    false,
	"disagree": false,
}

var negations = map[string]struct{}{
	"not":   {},
	"never": {},
	"t":     {},
}

var connectives = map[string]struct{}{
	"or":  {},
	"nor": {},
	"/":   {},
}

// Grade maps a raw completion to a verdict for record. It never fails:
// completions without a usable answer yield an ungradable verdict.
func Grade(raw string, record dataset.Record) Verdict {
	text := Clean(raw)
	if text == "" {
		return Ungradable("empty completion")
	}
	if verdict, ok := gradeJSON(text, record); ok {
		return verdict
	}
	if record.HasChoices() {
		return scanChoices(text, len(record.Choices))
	}
	return scanBoolean(text)
}

func gradeJSON(text string, record dataset.Record) (Verdict, bool) {
	object, ok := parseObject(text)
	if !ok {
		return Verdict{}, false
	}
	var rawAnswer any
	found := false
	for _, key := range answerKeys {
		if value, ok := lookupFold(object, key); ok {
			rawAnswer = value
			found = true
			break
		}
	}
	if !found {
		return Verdict{}, false
	}
	reasoning := ""
	if value, ok := lookupFold(object, "reasoning"); ok {
		if text, ok := value.(string); ok {
			reasoning = strings.TrimSpace(text)
		}
	}
	if record.HasChoices() {
		if index, ok := choiceFromValue(rawAnswer, len(record.Choices)); ok {
			return graded(dataset.Choice(index), SourceJSON, reasoning), true
		}
	} else if agree, ok := booleanFromValue(rawAnswer); ok {
		return graded(dataset.Boolean(agree), SourceJSON, reasoning), true
	}
	verdict := Ungradable(fmt.Sprintf("unrecognized judgement %v", rawAnswer))
	verdict.Reasoning = reasoning
	return verdict, true
}

// parseObject accepts a bare JSON object or the first-brace to last-brace
// span of the text.
func parseObject(text string) (map[string]any, bool) {
	var object map[string]any
	if err := json.Unmarshal([]byte(text), &object); err == nil {
		return object, true
	}
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first < 0 || last <= first {
		return nil, false
	}
	if err := json.Unmarshal([]byte(text[first:last+1]), &object); err == nil {
		return object, true
	}
	return nil, false
}

func lookupFold(object map[string]any, key string) (any, bool) {
	if value, ok := object[key]; ok {
		return value, true
	}
	for candidate, value := range object {
		if strings.EqualFold(candidate, key) {
			return value, true
		}
	}
	return nil, false
}

func booleanFromValue(value any) (bool, bool) {
	switch typed := value.(type) {
	case bool:
		return typed, true
	case string:
		agree, ok := booleanTokens[strings.ToLower(strings.Trim(strings.TrimSpace(typed), `."'`))]
		return agree, ok
	}
	return false, false
}

func choiceFromValue(value any, choices int) (int, bool) {
	switch typed := value.(type) {
	case float64:
		index := int(typed) - 1
		if float64(int(typed)) == typed && index >= 0 && index < choices {
			return index, true
		}
	case string:
		text := strings.ToUpper(strings.Trim(strings.TrimSpace(typed), "()."))
		if len(text) == 1 && text[0] >= 'A' && text[0] <= 'Z' {
			index := int(text[0] - 'A')
			return index, index < choices
		}
		if number, err := strconv.Atoi(text); err == nil && number >= 1 && number <= choices {
			return number - 1, true
		}
	}
	return 0, false
}

// negationWindow is how many tokens before an answer token are searched
// for a negation. The search stops at clause punctuation.
const negationWindow = 4

// scanBoolean walks word tokens left to right. Enumerations such as
// "true or false" are skipped, and a negation earlier in the same clause
// flips the token.
func scanBoolean(text string) Verdict {
	tokens := tokenize(strings.ToLower(text))
	for i := 0; i < len(tokens); i++ {
		agree, ok := booleanTokens[tokens[i]]
		if !ok {
			continue
		}
		if i+2 < len(tokens) {
			if _, isConnective := connectives[tokens[i+1]]; isConnective {
				if _, isAnswer := booleanTokens[tokens[i+2]]; isAnswer {
					i += 2
					continue
				}
			}
		}
		if negated(tokens, i) {
			agree = !agree
		}
		return graded(dataset.Boolean(agree), SourceToken, "")
	}
	return Ungradable("no answer token found")
}

func negated(tokens []string, at int) bool {
	flip := false
	for j := at - 1; j >= 0 && j >= at-negationWindow; j-- {
		if tokens[j] == clauseBreak {
			break
		}
		if _, ok := negations[tokens[j]]; ok {
			flip = !flip
		}
	}
	return flip
}

const clauseBreak = "."

func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		case r == '/':
			flush()
			tokens = append(tokens, "/")
		case strings.ContainsRune(".,;:!?", r):
			flush()
			tokens = append(tokens, clauseBreak)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// choicePattern lists the accepted option forms. Bare numbers only count
// as the whole answer or after an answer cue, so counts in prose are
// never read as options.
var choicePattern = regexp.MustCompile(strings.Join([]string{
	`\(([A-Za-z])\)`,
	`\b([A-Z])[).](?:\s|$)`,
	`\*{1,2}\(?([A-Z])\)?[.)]?\*{1,2}`,
	`(?i:\b(?:answer|option|choice)\b(?:\s+is\b)?)\s*:?\s*([A-Z]|[0-9]{1,2})\b`,
	`^([A-Za-z]|[0-9]{1,2})[.)]?$`,
}, "|"))

var enumerationGap = regexp.MustCompile(`(?i)^\s*(?:,|/|or|nor|,\s*or)\s*$`)

type choiceMatch struct {
	start, end int
	index      int
}

// scanChoices accepts option letters in option form, after an answer cue,
// inside markdown emphasis or as the whole completion. 1-based numbers
// are accepted after a cue or as the whole completion.
func scanChoices(text string, choices int) Verdict {
	var matches []choiceMatch
	for _, loc := range choicePattern.FindAllStringSubmatchIndex(text, -1) {
		index := -1
		for group := 2; group+1 < len(loc); group += 2 {
			if loc[group] >= 0 {
				index = optionIndex(text[loc[group]:loc[group+1]])
				break
			}
		}
		if index < 0 || index >= choices {
			continue
		}
		matches = append(matches, choiceMatch{start: loc[0], end: loc[1], index: index})
	}
	for i := 0; i < len(matches); i++ {
		if i+1 < len(matches) && enumerationGap.MatchString(text[matches[i].end:matches[i+1].start]) {
			i++
			continue
		}
		return graded(dataset.Choice(matches[i].index), SourceToken, "")
	}
	return Ungradable("no option token found")
}

func optionIndex(token string) int {
	if number, err := strconv.Atoi(token); err == nil {
		return number - 1
	}
	return letterIndex(token)
}

func letterIndex(letter string) int {
	upper := strings.ToUpper(letter)
	if len(upper) != 1 || upper[0] < 'A' || upper[0] > 'Z' {
		return -1
	}
	return int(upper[0] - 'A')
}
