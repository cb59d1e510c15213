package dataset

import (
	"encoding/json"
	"fmt"
)

// AnswerKind distinguishes binary judgements from multiple-choice answers.
type AnswerKind int

const (
	KindBoolean AnswerKind = iota
	KindChoice
)

// Answer is a ground truth label or a graded prediction.
type Answer struct {
	Kind   AnswerKind
	Agree  bool
	Choice int
}

// Boolean returns an agree/disagree answer.
func Boolean(agree bool) Answer {
	return Answer{Kind: KindBoolean, Agree: agree}
}

// Choice returns a zero-based choice answer.
func Choice(index int) Answer {
	return Answer{Kind: KindChoice, Choice: index}
}

// Equal reports whether both answers carry the same verdict.
func (a Answer) Equal(other Answer) bool {
	if a.Kind != other.Kind {
		return false
	}
	if a.Kind == KindChoice {
		return a.Choice == other.Choice
	}
	return a.Agree == other.Agree
}

// String renders the answer the way prompts and reports show it.
func (a Answer) String() string {
	if a.Kind == KindChoice {
		return fmt.Sprintf("(%s)", OptionLetter(a.Choice))
	}
	if a.Agree {
		return "agree"
	}
	return "disagree"
}

// MarshalJSON writes booleans as true/false and choices as their index.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Kind == KindChoice {
		return json.Marshal(a.Choice)
	}
	return json.Marshal(a.Agree)
}

// OptionLetter maps a zero-based index to A..Z.
func OptionLetter(index int) string {
	if index < 0 || index >= 26 {
		return fmt.Sprintf("%d", index+1)
	}
	return string(rune('A' + index))
}

// Record is one labeled survey question for a persona.
type Record struct {
	ID          string   `json:"record_id"`
	Persona     string   `json:"persona"`
	Question    string   `json:"question"`
	Claim       string   `json:"claim,omitempty"`
	Choices     []string `json:"choices,omitempty"`
	GroundTruth Answer   `json:"ground_truth"`
}

// HasChoices reports whether the record is a multiple-choice item.
func (r Record) HasChoices() bool {
	return len(r.Choices) > 0
}

// Dataset is an ordered record list for one task, persona and split.
type Dataset struct {
	Task    string
	Persona string
	Split   string
	Path    string
	Records []Record
}

// Len returns the number of records.
func (d Dataset) Len() int {
	return len(d.Records)
}
