package orchestrator

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

const runIDSuffixLen = 12

// NewRunID returns a sortable run id: UTC timestamp plus a random suffix.
func NewRunID(now time.Time) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return FormatRunID(now, suffix(id)), nil
}

// NewRunIDWithRand draws the suffix from r.
func NewRunIDWithRand(now time.Time, r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("random reader is nil")
	}
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return FormatRunID(now, suffix(id)), nil
}

func FormatRunID(now time.Time, suffix string) string {
	return now.UTC().Format("20060102T150405Z") + "-" + suffix
}

func suffix(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")[:runIDSuffixLen]
}
