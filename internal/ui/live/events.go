package live

import (
	"soulbench/internal/evaluation"
	"soulbench/internal/orchestrator"
)

// EventKind identifies the type of live UI event.
type EventKind int

const (
	// EventRunStart signals the start of a run.
	EventRunStart EventKind = iota
	// EventState reports a revision loop transition.
	EventState
	// EventRecord delivers a record status update.
	EventRecord
	// EventRoundEnd delivers a finished round summary.
	EventRoundEnd
	// EventRevisionFailure reports a failed revision attempt.
	EventRevisionFailure
	// EventRunEnd signals run completion.
	EventRunEnd
)

// Event carries a UI update payload.
type Event struct {
	Kind    EventKind
	Run     RunInfo
	From    orchestrator.State
	To      orchestrator.State
	Version int
	Attempt int
	Message string
	Record  evaluation.RecordEvent
	Summary evaluation.Summary
}

// RunInfo describes the run shown in the header.
type RunInfo struct {
	RunID         string
	Command       string
	Task          string
	Persona       string
	EvalModel     string
	RevisionModel string
}
