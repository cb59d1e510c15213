package grading

import (
	"regexp"
	"strings"
)

var (
	thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)
	fenceBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\n?(.*?)```")
)

// StripThinking removes <think> blocks. Text before a dangling </think> is
// dropped as well.
func StripThinking(text string) string {
	text = thinkBlock.ReplaceAllString(text, "")
	lower := strings.ToLower(text)
	if idx := strings.LastIndex(lower, "</think>"); idx >= 0 {
		text = text[idx+len("</think>"):]
	}
	return strings.TrimSpace(text)
}

// StripFences returns the body of the first markdown fence, or text
// unchanged when there is none. An unterminated fence keeps the remainder.
func StripFences(text string) string {
	if match := fenceBlock.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(text)
}

// Clean applies StripThinking and StripFences.
func Clean(text string) string {
	return StripFences(StripThinking(text))
}
