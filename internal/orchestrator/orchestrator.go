package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"soulbench/internal/evaluation"
	"soulbench/internal/revision"
)

// ErrInvalidConfig reports a run that cannot start.
var ErrInvalidConfig = errors.New("invalid revision run")

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the clock used for manifest timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.now = clock
		}
	}
}

// WithSink persists run progress.
func WithSink(sink Sink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithObserver reports lifecycle events.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

// WithStop wires a cooperative stop flag.
func WithStop(stop *Stop) Option {
	return func(o *Orchestrator) {
		o.stop = stop
	}
}

// Orchestrator drives the seeding, evaluating and revising loop.
type Orchestrator struct {
	evaluator Evaluator
	reviser   Reviser
	sink      Sink
	observer  Observer
	stop      *Stop
	now       func() time.Time
}

// New builds an Orchestrator.
func New(evaluator Evaluator, reviser Reviser, opts ...Option) *Orchestrator {
	o := &Orchestrator{evaluator: evaluator, reviser: reviser, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// run holds the mutable state of one Run call. It is owned by the control
// goroutine.
type run struct {
	cfg      Config
	state    State
	doc      revision.Document
	outcome  Outcome
	lastSeed revision.Document

	pendingSummary  evaluation.Summary
	pendingFailures []revision.Failure
}

func (r *run) failed() bool {
	return r.state.Terminal()
}

// Run executes the state machine until a terminal state. The returned error
// is non-nil only when cfg is invalid; every other failure ends in
// StateAborted with a reason. The selected document is persisted even for
// aborted runs. A zero Threshold means DefaultThreshold.
func (o *Orchestrator) Run(ctx context.Context, cfg Config, seed Seed) (Outcome, error) {
	cfg, err := normalizeConfig(cfg)
	if err != nil {
		return Outcome{}, err
	}
	r := &run{cfg: cfg, state: StateSeeding}
	r.outcome = Outcome{RunID: cfg.RunID, State: StateSeeding, StartedAt: o.now()}

	for !r.state.Terminal() {
		switch r.state {
		case StateSeeding:
			o.seed(ctx, r, seed)
		case StateEvaluating:
			o.evaluate(ctx, r)
		case StateRevising:
			o.revise(ctx, r)
		}
	}
	r.outcome.State = r.state
	r.outcome.FinishedAt = o.now()
	if doc, ok := r.outcome.SelectedDocument(); ok {
		if err := o.saveSelected(doc); err != nil && r.outcome.Reason == "" {
			r.outcome.State = StateAborted
			r.outcome.Reason = fmt.Sprintf("persist selected document: %v", err)
		}
	}
	o.saveManifest(r, true)
	return r.outcome, nil
}

func normalizeConfig(cfg Config) (Config, error) {
	var problems []string
	if cfg.SystemPrompt == nil {
		problems = append(problems, "system prompt builder is required")
	}
	if len(cfg.Train.Records) == 0 {
		problems = append(problems, "train split has no records")
	}
	if strings.TrimSpace(cfg.EvalModel) == "" {
		problems = append(problems, "eval model is required")
	}
	if cfg.MaxRounds < 0 {
		problems = append(problems, "max rounds must be >= 0")
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		problems = append(problems, "threshold must be within [0, 1]")
	}
	switch cfg.Keep {
	case "":
		cfg.Keep = KeepBest
	case KeepBest, KeepLatest:
	default:
		problems = append(problems, fmt.Sprintf("unknown keep policy %q", cfg.Keep))
	}
	if len(problems) > 0 {
		return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxRevisionAttempts <= 0 {
		cfg.MaxRevisionAttempts = DefaultMaxRevisionAttempts
	}
	return cfg, nil
}

func (o *Orchestrator) transition(r *run, to State) {
	from := r.state
	r.state = to
	r.outcome.State = to
	if o.observer != nil {
		o.observer.OnStateChange(from, to, r.doc.Version)
	}
}

func (o *Orchestrator) abort(r *run, reason string) {
	r.outcome.Reason = reason
	o.transition(r, StateAborted)
}

// atBoundary aborts the run when a stop or cancellation is pending.
func (o *Orchestrator) atBoundary(ctx context.Context, r *run) bool {
	if ctx.Err() != nil {
		o.abort(r, ReasonCancelled)
		return true
	}
	if o.stop.Requested() {
		o.abort(r, ReasonStopped)
		return true
	}
	return false
}

func (o *Orchestrator) seed(ctx context.Context, r *run, seed Seed) {
	if seed.Document != nil {
		r.doc = *seed.Document
		r.doc.Version = 0
		r.doc.Origin = revision.OriginSeed
		r.doc.Parent = -1
	} else {
		doc, err := o.generateSeed(ctx, r, seed)
		if err != nil {
			if ctx.Err() != nil {
				o.abort(r, ReasonCancelled)
				return
			}
			o.abort(r, fmt.Sprintf("seed generation failed: %v", err))
			return
		}
		r.doc = doc
	}
	r.lastSeed = r.doc
	if err := o.saveDocument(r, r.doc); err != nil {
		o.abort(r, fmt.Sprintf("persist seed: %v", err))
		return
	}
	o.saveManifest(r, false)
	o.transition(r, StateEvaluating)
}

func (o *Orchestrator) generateSeed(ctx context.Context, r *run, seed Seed) (revision.Document, error) {
	if len(seed.References) == 0 {
		return revision.Document{}, fmt.Errorf("no seed document and no reference answers")
	}
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRevisionAttempts; attempt++ {
		doc, err := o.reviser.Generate(ctx, seed.References)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return revision.Document{}, ctx.Err()
		}
		if o.observer != nil {
			o.observer.OnRevisionFailure(0, attempt, err)
		}
	}
	return revision.Document{}, fmt.Errorf("after %d attempts: %w", r.cfg.MaxRevisionAttempts, lastErr)
}

func (o *Orchestrator) evaluate(ctx context.Context, r *run) {
	if o.atBoundary(ctx, r) {
		return
	}
	prompt := r.cfg.SystemPrompt(r.doc.Content)
	record := RoundRecord{Version: r.doc.Version}

	train, trainResults, err := o.evaluator.Evaluate(ctx, evaluation.Round{
		Dataset:      r.cfg.Train,
		Split:        r.cfg.Train.Split,
		SystemPrompt: prompt,
		Model:        r.cfg.EvalModel,
		Version:      r.doc.Version,
	})
	if err != nil {
		o.abortEvaluation(ctx, r, err)
		return
	}
	record.Train = train

	var test evaluation.Summary
	var testResults []evaluation.Result
	if r.cfg.Test != nil {
		test, testResults, err = o.evaluator.Evaluate(ctx, evaluation.Round{
			Dataset:      *r.cfg.Test,
			Split:        r.cfg.Test.Split,
			SystemPrompt: prompt,
			Model:        r.cfg.EvalModel,
			Version:      r.doc.Version,
		})
		if err != nil {
			o.abortEvaluation(ctx, r, err)
			return
		}
		record.Test = &test
	}

	if err := o.saveRound(train, trainResults); err != nil {
		o.abort(r, fmt.Sprintf("persist round %d: %v", r.doc.Version, err))
		return
	}
	if record.Test != nil {
		if err := o.saveRound(test, testResults); err != nil {
			o.abort(r, fmt.Sprintf("persist round %d: %v", r.doc.Version, err))
			return
		}
	}
	r.outcome.Rounds = append(r.outcome.Rounds, record)
	version := r.doc.Version
	r.outcome.LastGood = &version
	o.track(r, train)
	o.saveManifest(r, false)

	if r.failed() {
		return
	}
	accuracy, ok := train.AccuracyValue()
	switch {
	case ok && accuracy >= r.cfg.Threshold:
		o.transition(r, StateConverged)
	case r.doc.Version >= r.cfg.MaxRounds:
		o.transition(r, StateBudgetExhausted)
	default:
		r.pendingFailures = revision.JoinFailures(r.cfg.Train.Records, trainResults)
		r.pendingSummary = train
		o.transition(r, StateRevising)
	}
}

func (o *Orchestrator) abortEvaluation(ctx context.Context, r *run, err error) {
	if ctx.Err() != nil {
		o.abort(r, ReasonCancelled)
		return
	}
	o.abort(r, fmt.Sprintf("evaluate version %d: %v", r.doc.Version, err))
}

// track updates best and latest selections from the train summary. Under
// the best policy the earliest version wins ties and a null accuracy never
// replaces a number.
func (o *Orchestrator) track(r *run, train evaluation.Summary) {
	current := &Selection{Version: train.Version, Accuracy: train.Accuracy}
	r.outcome.Latest = current
	best := r.outcome.Best
	if best == nil || beats(train.Accuracy, best.Accuracy) {
		r.outcome.Best = current
	}
	if r.cfg.Keep == KeepLatest {
		r.outcome.Selected = r.outcome.Latest
	} else {
		r.outcome.Selected = r.outcome.Best
	}
}

func beats(candidate, incumbent *float64) bool {
	if candidate == nil {
		return false
	}
	if incumbent == nil {
		return true
	}
	return *candidate > *incumbent
}

func (o *Orchestrator) revise(ctx context.Context, r *run) {
	if o.atBoundary(ctx, r) {
		return
	}
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRevisionAttempts; attempt++ {
		next, err := o.reviser.Revise(ctx, r.doc, r.pendingSummary, r.pendingFailures)
		if err == nil {
			next.Version = r.doc.Version + 1
			if err := o.saveDocument(r, next); err != nil {
				o.abort(r, fmt.Sprintf("persist version %d: %v", next.Version, err))
				return
			}
			r.doc = next
			r.pendingFailures = nil
			o.transition(r, StateEvaluating)
			return
		}
		if ctx.Err() != nil {
			o.abort(r, ReasonCancelled)
			return
		}
		lastErr = err
		if o.observer != nil {
			o.observer.OnRevisionFailure(r.doc.Version, attempt, err)
		}
	}
	o.abort(r, fmt.Sprintf("revision of version %d failed after %d attempts: %v", r.doc.Version, r.cfg.MaxRevisionAttempts, lastErr))
}

func (o *Orchestrator) saveDocument(r *run, doc revision.Document) error {
	r.outcome.Documents = append(r.outcome.Documents, doc)
	if o.sink == nil {
		return nil
	}
	return o.sink.SaveDocument(doc)
}

func (o *Orchestrator) saveRound(summary evaluation.Summary, results []evaluation.Result) error {
	if o.observer != nil {
		o.observer.OnRoundEnd(summary)
	}
	if o.sink == nil {
		return nil
	}
	return o.sink.SaveRound(summary, results)
}

func (o *Orchestrator) saveSelected(doc revision.Document) error {
	if o.sink == nil {
		return nil
	}
	return o.sink.SaveSelected(doc)
}

// saveManifest writes the manifest. A failure while the run is still going
// aborts it; a failure on the final write is recorded in the reason.
func (o *Orchestrator) saveManifest(r *run, final bool) {
	if o.sink == nil {
		return
	}
	manifest := o.manifest(r, final)
	if err := o.sink.SaveManifest(manifest); err != nil {
		reason := fmt.Sprintf("persist manifest: %v", err)
		if final {
			if r.outcome.Reason == "" {
				r.outcome.Reason = reason
			}
			return
		}
		o.abort(r, reason)
	}
}

func (o *Orchestrator) manifest(r *run, final bool) Manifest {
	now := o.now()
	manifest := Manifest{
		RunID:           r.cfg.RunID,
		Task:            r.cfg.Task,
		Persona:         r.cfg.Persona,
		EvalModel:       r.cfg.EvalModel,
		RevisionModel:   r.cfg.RevisionModel,
		State:           r.outcome.State,
		AbortReason:     r.outcome.Reason,
		Keep:            r.cfg.Keep,
		Threshold:       r.cfg.Threshold,
		MaxRounds:       r.cfg.MaxRounds,
		Rounds:          len(r.outcome.Rounds),
		Best:            r.outcome.Best,
		Latest:          r.outcome.Latest,
		Selected:        r.outcome.Selected,
		LastGoodVersion: r.outcome.LastGood,
		SeedSource:      string(r.lastSeed.SeedSource),
		SeedRef:         r.lastSeed.SeedRef,
		StartedAt:       r.outcome.StartedAt,
		UpdatedAt:       now,
	}
	if final {
		finished := r.outcome.FinishedAt
		manifest.FinishedAt = &finished
	}
	return manifest
}
