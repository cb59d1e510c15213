package live

import (
	"time"

	"soulbench/internal/evaluation"
)

// RecordRow holds UI state for a single record of the current round.
type RecordRow struct {
	Index      int
	ID         string
	Text       string
	Status     evaluation.EventType
	Outcome    string
	Attempts   int
	RetryAfter time.Duration
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// StatusCounts aggregates counts by status bucket.
type StatusCounts struct {
	Queued     int
	Running    int
	Retrying   int
	Done       int
	Correct    int
	Incorrect  int
	Ungradable int
	Failed     int
}

// RoundLine is one finished round in the history strip.
type RoundLine struct {
	Version  int
	Split    string
	Accuracy *float64
}

// State captures the live UI state for a run.
type State struct {
	Run       RunInfo
	Phase     string
	Version   int
	Split     string
	StartedAt time.Time
	LastEvent string
	Rows      []RecordRow
	Counts    StatusCounts
	History   []RoundLine
}
