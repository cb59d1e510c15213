package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"soulbench/internal/dataset"
	"soulbench/internal/grading"
	"soulbench/internal/inference"
)

// ErrInvalidRound reports a round that cannot be dispatched.
var ErrInvalidRound = errors.New("invalid evaluation round")

// Completer sends one inference request.
type Completer interface {
	Complete(ctx context.Context, req inference.Request) (inference.Response, error)
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithObserver reports per-record events.
func WithObserver(observer Observer) Option {
	return func(e *Evaluator) {
		e.observer = observer
	}
}

// WithLimit caps how many records are in progress at once. By default the
// cap is the client's Ceiling when it reports one.
func WithLimit(n int) Option {
	return func(e *Evaluator) {
		e.limit = n
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// Evaluator scores a system prompt against a dataset split.
type Evaluator struct {
	client   Completer
	observer Observer
	now      func() time.Time
	limit    int
}

// New builds an Evaluator around client.
func New(client Completer, opts ...Option) *Evaluator {
	evaluator := &Evaluator{client: client, now: time.Now}
	for _, opt := range opts {
		opt(evaluator)
	}
	if evaluator.limit <= 0 {
		if bounded, ok := client.(interface{ Ceiling() int }); ok {
			evaluator.limit = bounded.Ceiling()
		}
	}
	return evaluator
}

// Evaluate dispatches every record concurrently and waits for all of them.
// Per-record failures are recorded in the results. Only cancellation of ctx
// returns an error, in which case no summary is reported.
func (e *Evaluator) Evaluate(ctx context.Context, round Round) (Summary, []Result, error) {
	if err := validateRound(round); err != nil {
		return Summary{}, nil, err
	}
	emitter := recordEmitter{observer: e.observer, round: round, now: e.now}
	records := round.Dataset.Records
	for index := range records {
		emitter.emit(index, RecordEvent{Type: EventQueued})
	}

	results := make([]Result, len(records))
	group, groupCtx := errgroup.WithContext(ctx)
	if e.limit > 0 {
		group.SetLimit(e.limit)
	}
	for index := range records {
		group.Go(func() error {
			result, err := e.evaluateRecord(groupCtx, round, index, emitter)
			if err != nil {
				return err
			}
			results[index] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Summary{}, nil, err
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, nil, err
	}
	return Summarize(round.Version, round.Split, results), results, nil
}

func validateRound(round Round) error {
	if strings.TrimSpace(round.SystemPrompt) == "" {
		return fmt.Errorf("%w: system prompt is required", ErrInvalidRound)
	}
	if strings.TrimSpace(round.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRound)
	}
	if len(round.Dataset.Records) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRound, dataset.ErrEmpty)
	}
	if err := dataset.CheckUnique(round.Dataset.Records); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRound, err)
	}
	return nil
}

func (e *Evaluator) evaluateRecord(ctx context.Context, round Round, index int, emitter recordEmitter) (Result, error) {
	record := round.Dataset.Records[index]
	result := Result{
		RecordID: record.ID,
		Persona:  record.Persona,
		Question: record.Question,
		Claim:    record.Claim,
	}
	start := e.now()
	resp, err := e.client.Complete(ctx, inference.Request{
		SystemPrompt: round.SystemPrompt,
		UserMessage:  BuildUserMessage(record),
		Model:        round.Model,
		OnStart: func(attempt int) {
			emitter.emit(index, RecordEvent{Type: EventRunning, Attempt: attempt})
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			emitter.emit(index, RecordEvent{Type: EventRetrying, Attempt: attempt, RetryAfter: delay, Error: err.Error()})
		},
	})
	if err != nil {
		if inference.IsCanceled(err) {
			return Result{}, err
		}
		result.Error = err.Error()
		result.ErrorKind = string(inference.KindOf(err))
		if result.ErrorKind == "" {
			result.ErrorKind = string(inference.KindTransport)
		}
		var callErr *inference.CallError
		if errors.As(err, &callErr) {
			result.Attempts = callErr.Attempts
		}
		emitter.emit(index, RecordEvent{Type: EventFailed, Attempt: result.Attempts, Error: result.Error, WallTime: e.now().Sub(start)})
		return result, nil
	}

	result.RawCompletion = resp.Text
	result.Attempts = resp.Attempts
	verdict := grading.Grade(resp.Text, record)
	result.Reasoning = verdict.Reasoning
	outcome := OutcomeUngradable
	if verdict.Gradable() {
		predicted := verdict.Predicted
		result.Predicted = &predicted
		result.Correct = verdict.Correct(record)
		outcome = OutcomeIncorrect
		if result.Correct {
			outcome = OutcomeCorrect
		}
	} else {
		result.Error = verdict.Reason
		result.ErrorKind = ErrorKindUngradable
	}
	emitter.emit(index, RecordEvent{Type: EventGraded, Attempt: result.Attempts, Outcome: outcome, Error: result.Error, WallTime: e.now().Sub(start)})
	return result, nil
}

// BuildUserMessage renders the survey question, the claim and any lettered
// options.
func BuildUserMessage(record dataset.Record) string {
	var builder strings.Builder
	builder.WriteString("Survey Question: ")
	builder.WriteString(record.Question)
	if record.Claim != "" {
		builder.WriteString("\n\nClaim: ")
		builder.WriteString(record.Claim)
	}
	if record.HasChoices() {
		builder.WriteString("\n\nOptions:")
		for index, choice := range record.Choices {
			fmt.Fprintf(&builder, "\n(%s) %s", dataset.OptionLetter(index), choice)
		}
	}
	return builder.String()
}

// Summarize aggregates results. Accuracy is nil when nothing was gradable.
func Summarize(version int, split string, results []Result) Summary {
	summary := Summary{
		Version:    version,
		Split:      split,
		Total:      len(results),
		FailureIDs: []string{},
	}
	for _, result := range results {
		if result.Gradable() {
			summary.GradableCount++
		} else {
			summary.UngradableCount++
		}
		if result.Correct {
			summary.CorrectCount++
		} else {
			summary.FailureIDs = append(summary.FailureIDs, result.RecordID)
		}
	}
	sort.Strings(summary.FailureIDs)
	if summary.GradableCount > 0 {
		accuracy := float64(summary.CorrectCount) / float64(summary.GradableCount)
		summary.Accuracy = &accuracy
	}
	return summary
}
