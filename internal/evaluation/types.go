package evaluation

import (
	"soulbench/internal/dataset"
)

// ErrorKindUngradable marks results whose completion carried no answer.
const ErrorKindUngradable = "ungradable"

// Round is one evaluation pass of a system prompt over a dataset split.
type Round struct {
	Dataset      dataset.Dataset
	Split        string
	SystemPrompt string
	Model        string
	Version      int
}

// Result is the outcome for one record in one round.
type Result struct {
	RecordID      string          `json:"record_id"`
	Persona       string          `json:"persona"`
	Question      string          `json:"question"`
	Claim         string          `json:"claim"`
	Predicted     *dataset.Answer `json:"predicted"`
	Correct       bool            `json:"correct"`
	RawCompletion string          `json:"raw_completion"`
	Reasoning     string          `json:"reasoning"`
	Error         string          `json:"error,omitempty"`
	ErrorKind     string          `json:"error_kind,omitempty"`
	Attempts      int             `json:"attempts"`
}

// Gradable reports whether the result produced a prediction.
func (r Result) Gradable() bool {
	return r.Predicted != nil
}

// Summary aggregates one round.
type Summary struct {
	Version         int      `json:"version"`
	Split           string   `json:"split"`
	Accuracy        *float64 `json:"accuracy"`
	GradableCount   int      `json:"gradable_count"`
	UngradableCount int      `json:"ungradable_count"`
	CorrectCount    int      `json:"correct_count"`
	Total           int      `json:"total"`
	FailureIDs      []string `json:"failure_ids"`
}

// AccuracyValue returns the accuracy and whether it is defined.
func (s Summary) AccuracyValue() (float64, bool) {
	if s.Accuracy == nil {
		return 0, false
	}
	return *s.Accuracy, true
}
