package grading

import "soulbench/internal/dataset"

// Outcome separates graded completions from ones that carried no answer.
type Outcome string

const (
	OutcomeGraded     Outcome = "graded"
	OutcomeUngradable Outcome = "ungradable"
)

// Source records which parsing step produced a verdict.
type Source string

const (
	SourceJSON  Source = "json"
	SourceToken Source = "token"
)

// Verdict is the grader's reading of one completion.
type Verdict struct {
	Outcome   Outcome
	Predicted dataset.Answer
	Source    Source
	Reasoning string
	// Reason explains an ungradable outcome.
	Reason string
}

// Gradable reports whether the completion produced an answer.
func (v Verdict) Gradable() bool {
	return v.Outcome == OutcomeGraded
}

// Correct reports whether a graded verdict matches the record label.
// Ungradable verdicts are never correct.
func (v Verdict) Correct(record dataset.Record) bool {
	return v.Gradable() && v.Predicted.Equal(record.GroundTruth)
}

// Ungradable builds an ungradable verdict with a reason.
func Ungradable(reason string) Verdict {
	return Verdict{Outcome: OutcomeUngradable, Reason: reason}
}

func graded(answer dataset.Answer, source Source, reasoning string) Verdict {
	return Verdict{Outcome: OutcomeGraded, Predicted: answer, Source: source, Reasoning: reasoning}
}
