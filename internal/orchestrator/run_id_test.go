package orchestrator

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatRunIDUsesUTC(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))
	if got := FormatRunID(at, "abc123"); got != "20260304T040607Z-abc123" {
		t.Fatalf("unexpected run id: %q", got)
	}
}

func TestNewRunIDWithRandIsDeterministic(t *testing.T) {
	at := time.Date(2026, 6, 7, 8, 9, 10, 0, time.UTC)
	seed := bytes.Repeat([]byte{0xab, 0x01}, 8)
	got, err := NewRunIDWithRand(at, bytes.NewReader(seed))
	if err != nil {
		t.Fatalf("new run id: %v", err)
	}
	if got != "20260607T080910Z-ab01ab01ab01" {
		t.Fatalf("unexpected run id: %q", got)
	}
	if _, err := NewRunIDWithRand(at, bytes.NewReader([]byte{1, 2})); err == nil {
		t.Fatalf("expected short reader to fail")
	}
}

func TestNewRunIDHasSuffix(t *testing.T) {
	id, err := NewRunID(time.Now())
	if err != nil {
		t.Fatalf("new run id: %v", err)
	}
	parts := strings.Split(id, "-")
	if len(parts) != 2 || len(parts[1]) != runIDSuffixLen {
		t.Fatalf("unexpected run id shape: %q", id)
	}
}
