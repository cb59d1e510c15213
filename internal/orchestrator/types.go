package orchestrator

import (
	"context"
	"time"

	"soulbench/internal/dataset"
	"soulbench/internal/evaluation"
	"soulbench/internal/revision"
)

const (
	DefaultMaxRounds           = 3
	DefaultThreshold           = 1.0
	DefaultMaxRevisionAttempts = 3
)

// Evaluator scores one round.
type Evaluator interface {
	Evaluate(ctx context.Context, round evaluation.Round) (evaluation.Summary, []evaluation.Result, error)
}

// Reviser produces seed and revised documents.
type Reviser interface {
	Revise(ctx context.Context, doc revision.Document, summary evaluation.Summary, failures []revision.Failure) (revision.Document, error)
	Generate(ctx context.Context, refs []dataset.Reference) (revision.Document, error)
}

// Config describes one revision run.
type Config struct {
	RunID         string
	Task          string
	Persona       string
	EvalModel     string
	RevisionModel string

	// Train drives threshold checks and revisions; Test is reported only.
	Train dataset.Dataset
	Test  *dataset.Dataset

	// SystemPrompt wraps a document into the evaluation system prompt.
	SystemPrompt func(doc string) string

	MaxRounds           int
	Threshold           float64
	MaxRevisionAttempts int
	Keep                KeepPolicy
}

// Seed supplies the version 0 document. When Document is nil a seed is
// generated from References.
type Seed struct {
	Document   *revision.Document
	References []dataset.Reference
}

// RoundRecord pairs the train and optional test summaries of one version.
type RoundRecord struct {
	Version int                 `json:"version"`
	Train   evaluation.Summary  `json:"train"`
	Test    *evaluation.Summary `json:"test,omitempty"`
}

// Selection identifies a reported document version.
type Selection struct {
	Version  int      `json:"version"`
	Accuracy *float64 `json:"accuracy"`
}

// Outcome is the result of a run.
type Outcome struct {
	RunID      string
	State      State
	Reason     string
	Rounds     []RoundRecord
	Documents  []revision.Document
	Best       *Selection
	Latest     *Selection
	Selected   *Selection
	LastGood   *int
	StartedAt  time.Time
	FinishedAt time.Time
}

// SelectedDocument returns the document chosen by the keep policy.
func (o Outcome) SelectedDocument() (revision.Document, bool) {
	if o.Selected == nil {
		return revision.Document{}, false
	}
	for _, doc := range o.Documents {
		if doc.Version == o.Selected.Version {
			return doc, true
		}
	}
	return revision.Document{}, false
}

// Succeeded reports whether the run ended normally with at least one round.
func (o Outcome) Succeeded() bool {
	return (o.State == StateConverged || o.State == StateBudgetExhausted) && len(o.Rounds) > 0
}

// Manifest is the persisted run description.
type Manifest struct {
	RunID           string     `json:"run_id"`
	Task            string     `json:"task"`
	Persona         string     `json:"persona"`
	EvalModel       string     `json:"eval_model"`
	RevisionModel   string     `json:"revision_model"`
	State           State      `json:"state"`
	AbortReason     string     `json:"abort_reason,omitempty"`
	Keep            KeepPolicy `json:"keep"`
	Threshold       float64    `json:"target_threshold"`
	MaxRounds       int        `json:"max_rounds"`
	Rounds          int        `json:"rounds"`
	Best            *Selection `json:"best,omitempty"`
	Latest          *Selection `json:"latest,omitempty"`
	Selected        *Selection `json:"selected,omitempty"`
	LastGoodVersion *int       `json:"last_good_version,omitempty"`
	SeedSource      string     `json:"seed_source,omitempty"`
	SeedRef         string     `json:"seed_ref,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Sink persists run progress. Every method is called from the control
// goroutine.
type Sink interface {
	SaveDocument(doc revision.Document) error
	SaveRound(summary evaluation.Summary, results []evaluation.Result) error
	SaveSelected(doc revision.Document) error
	SaveManifest(manifest Manifest) error
}

// Observer receives run lifecycle events. Implementations must not block.
type Observer interface {
	OnStateChange(from, to State, version int)
	OnRoundEnd(summary evaluation.Summary)
	OnRevisionFailure(version, attempt int, err error)
}
