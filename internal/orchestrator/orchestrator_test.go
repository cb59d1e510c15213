package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"soulbench/internal/dataset"
	"soulbench/internal/evaluation"
	"soulbench/internal/revision"
	"soulbench/internal/testutil"
)

// scriptedEvaluator returns a fixed number of correct answers per version.
type scriptedEvaluator struct {
	correct map[int]int
	calls   []evaluation.Round
	err     error
	hook    func(round evaluation.Round)
}

func (e *scriptedEvaluator) Evaluate(ctx context.Context, round evaluation.Round) (evaluation.Summary, []evaluation.Result, error) {
	e.calls = append(e.calls, round)
	if e.hook != nil {
		e.hook(round)
	}
	if e.err != nil {
		return evaluation.Summary{}, nil, e.err
	}
	if err := ctx.Err(); err != nil {
		return evaluation.Summary{}, nil, err
	}
	correct := e.correct[round.Version]
	results := make([]evaluation.Result, len(round.Dataset.Records))
	for i, record := range round.Dataset.Records {
		predicted := record.GroundTruth
		if i >= correct {
			predicted = dataset.Boolean(!record.GroundTruth.Agree)
		}
		results[i] = evaluation.Result{
			RecordID:      record.ID,
			Persona:       record.Persona,
			Question:      record.Question,
			Claim:         record.Claim,
			Predicted:     &predicted,
			Correct:       i < correct,
			RawCompletion: predicted.String(),
			Attempts:      1,
		}
	}
	return evaluation.Summarize(round.Version, round.Split, results), results, nil
}

type scriptedReviser struct {
	failures   int
	calls      int
	generated  int
	genErr     error
	lastFailed []revision.Failure
	versionGap int
}

func (r *scriptedReviser) Revise(ctx context.Context, doc revision.Document, _ evaluation.Summary, failures []revision.Failure) (revision.Document, error) {
	r.calls++
	r.lastFailed = failures
	if err := ctx.Err(); err != nil {
		return revision.Document{}, err
	}
	if r.failures > 0 {
		r.failures--
		return revision.Document{}, fmt.Errorf("%w: empty soul_doc", revision.ErrValidation)
	}
	next := doc.Next(fmt.Sprintf("%s (rev %d)", doc.Content, doc.Version+1))
	next.Version += r.versionGap
	return next, nil
}

func (r *scriptedReviser) Generate(ctx context.Context, refs []dataset.Reference) (revision.Document, error) {
	r.generated++
	if r.genErr != nil {
		return revision.Document{}, r.genErr
	}
	return revision.Seed(fmt.Sprintf("generated from %d answers", len(refs)), revision.SeedGenerated, ""), nil
}

type memorySink struct {
	docs      []revision.Document
	rounds    []evaluation.Summary
	selected  *revision.Document
	manifests []Manifest
	failRound error
}

func (s *memorySink) SaveDocument(doc revision.Document) error {
	s.docs = append(s.docs, doc)
	return nil
}

func (s *memorySink) SaveRound(summary evaluation.Summary, _ []evaluation.Result) error {
	if s.failRound != nil {
		return s.failRound
	}
	s.rounds = append(s.rounds, summary)
	return nil
}

func (s *memorySink) SaveSelected(doc revision.Document) error {
	s.selected = &doc
	return nil
}

func (s *memorySink) SaveManifest(manifest Manifest) error {
	s.manifests = append(s.manifests, manifest)
	return nil
}

func (s *memorySink) last() Manifest {
	return s.manifests[len(s.manifests)-1]
}

func trainSet(n int) dataset.Dataset {
	records := make([]dataset.Record, n)
	for i := range records {
		records[i] = dataset.Record{
			ID:          fmt.Sprintf("r%02d", i),
			Persona:     "democrat",
			Question:    fmt.Sprintf("question %d", i),
			Claim:       fmt.Sprintf("claim %d", i),
			GroundTruth: dataset.Boolean(true),
		}
	}
	return dataset.Dataset{Task: "opinionqa", Persona: "democrat", Split: "train", Records: records}
}

func baseConfig() Config {
	return Config{
		RunID:         "run-1",
		Task:          "opinionqa",
		Persona:       "democrat",
		EvalModel:     "eval/model",
		RevisionModel: "rev/model",
		Train:         trainSet(10),
		SystemPrompt:  func(doc string) string { return "persona: " + doc },
		MaxRounds:     3,
		Threshold:     0.9,
	}
}

func seedDoc() Seed {
	doc := revision.Seed("seed document", revision.SeedCatalog, "default")
	return Seed{Document: &doc}
}

func fixedClock() func() time.Time {
	return testutil.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)).Now
}

func TestRunConvergesWhenThresholdReached(t *testing.T) {
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 5, 1: 7, 2: 9}}
	reviser := &scriptedReviser{}
	sink := &memorySink{}
	var transitions []string
	observer := ObserverFuncs{StateChange: func(from, to State, version int) {
		transitions = append(transitions, fmt.Sprintf("%s->%s@%d", from, to, version))
	}}

	outcome, err := New(evaluator, reviser, WithSink(sink), WithObserver(observer), WithClock(fixedClock())).
		Run(testutil.Context(t, 0), baseConfig(), seedDoc())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.State != StateConverged {
		t.Fatalf("expected converged, got %s (%s)", outcome.State, outcome.Reason)
	}
	if len(outcome.Rounds) != 3 || reviser.calls != 2 {
		t.Fatalf("expected 3 rounds and 2 revisions, got %d and %d", len(outcome.Rounds), reviser.calls)
	}
	if outcome.Best == nil || outcome.Best.Version != 2 {
		t.Fatalf("expected best v2, got %+v", outcome.Best)
	}
	if sink.selected == nil || sink.selected.Version != 2 {
		t.Fatalf("expected selected v2 persisted, got %+v", sink.selected)
	}
	if !outcome.Succeeded() {
		t.Fatalf("expected success")
	}
	want := []string{
		"seeding->evaluating@0",
		"evaluating->revising@0",
		"revising->evaluating@1",
		"evaluating->revising@1",
		"revising->evaluating@2",
		"evaluating->converged@2",
	}
	if strings.Join(transitions, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected transitions %v", transitions)
	}
	final := sink.last()
	if final.State != StateConverged || final.FinishedAt == nil || final.Rounds != 3 {
		t.Fatalf("unexpected final manifest %+v", final)
	}
}

func TestRunExhaustsBudget(t *testing.T) {
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 5, 1: 8, 2: 6, 3: 7}}
	reviser := &scriptedReviser{}
	sink := &memorySink{}

	outcome, err := New(evaluator, reviser, WithSink(sink)).Run(testutil.Context(t, 0), baseConfig(), seedDoc())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.State != StateBudgetExhausted {
		t.Fatalf("expected budget_exhausted, got %s", outcome.State)
	}
	if len(outcome.Rounds) != 4 || len(sink.rounds) != 4 {
		t.Fatalf("expected rounds 0..3, got %d (%d persisted)", len(outcome.Rounds), len(sink.rounds))
	}
	if outcome.Best.Version != 1 || outcome.Latest.Version != 3 {
		t.Fatalf("expected best v1 latest v3, got %+v %+v", outcome.Best, outcome.Latest)
	}
	if sink.selected.Version != 1 {
		t.Fatalf("expected best document selected, got v%d", sink.selected.Version)
	}
}

func TestRunNumbersVersionsWithoutGaps(t *testing.T) {
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 5, 1: 6, 2: 7}}
	sink := &memorySink{}
	cfg := baseConfig()
	cfg.MaxRounds = 2

	outcome, err := New(evaluator, &scriptedReviser{versionGap: 5}, WithSink(sink)).Run(testutil.Context(t, 0), cfg, seedDoc())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, doc := range sink.docs {
		if doc.Version != i {
			t.Fatalf("expected document %d to be v%d, got v%d", i, i, doc.Version)
		}
	}
	if len(sink.docs) != 3 || outcome.Latest.Version != 2 {
		t.Fatalf("expected v0..v2, got %d docs latest %+v", len(sink.docs), outcome.Latest)
	}
}

func TestRunKeepLatestSelectsLastVersion(t *testing.T) {
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 8, 1: 6}}
	cfg := baseConfig()
	cfg.MaxRounds = 1
	cfg.Keep = KeepLatest
	sink := &memorySink{}

	outcome, err := New(evaluator, &scriptedReviser{}, WithSink(sink)).Run(testutil.Context(t, 0), cfg, seedDoc())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Selected.Version != 1 || outcome.Best.Version != 0 {
		t.Fatalf("unexpected selection %+v best %+v", outcome.Selected, outcome.Best)
	}
	if sink.selected.Version != 1 {
		t.Fatalf("expected latest document persisted, got v%d", sink.selected.Version)
	}
}

func TestRunBestPrefersEarliestOnTie(t *testing.T) {
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 6, 1: 6, 2: 6}}
	cfg := baseConfig()
	cfg.MaxRounds = 2

	outcome, err := New(evaluator, &scriptedReviser{}).Run(testutil.Context(t, 0), cfg, seedDoc())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Best.Version != 0 {
		t.Fatalf("expected earliest version to win tie, got v%d", outcome.Best.Version)
	}
}

func TestRunAbortsAfterRevisionFailures(t *testing.T) {
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 5}}
	reviser := &scriptedReviser{failures: 3}
	sink := &memorySink{}
	var attempts []int
	observer := ObserverFuncs{RevisionFailure: func(_ int, attempt int, _ error) {
		attempts = append(attempts, attempt)
	}}

	outcome, err := New(evaluator, reviser, WithSink(sink), WithObserver(observer)).
		Run(testutil.Context(t, 0), baseConfig(), seedDoc())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.State != StateAborted {
		t.Fatalf("expected aborted, got %s", outcome.State)
	}
	if reviser.calls != 3 || len(attempts) != 3 {
		t.Fatalf("expected 3 revision attempts, got %d", reviser.calls)
	}
	if len(sink.rounds) != 1 || sink.rounds[0].Version != 0 {
		t.Fatalf("expected round 0 persisted, got %+v", sink.rounds)
	}
	final := sink.last()
	if final.State != StateAborted || !strings.Contains(final.AbortReason, "after 3 attempts") {
		t.Fatalf("unexpected manifest %+v", final)
	}
	if final.LastGoodVersion == nil || *final.LastGoodVersion != 0 {
		t.Fatalf("expected last good v0, got %v", final.LastGoodVersion)
	}
	if sink.selected == nil || sink.selected.Version != 0 {
		t.Fatalf("expected v0 persisted as selected")
	}
	if outcome.Succeeded() {
		t.Fatalf("aborted run reported success")
	}
}

func TestRunRecoversFromTransientRevisionFailure(t *testing.T) {
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 5, 1: 10}}
	reviser := &scriptedReviser{failures: 2}

	outcome, err := New(evaluator, reviser).Run(testutil.Context(t, 0), baseConfig(), seedDoc())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.State != StateConverged || reviser.calls != 3 {
		t.Fatalf("expected converged after 3 attempts, got %s with %d calls", outcome.State, reviser.calls)
	}
}

func TestRunPassesFailuresToReviser(t *testing.T) {
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 7, 1: 10}}
	reviser := &scriptedReviser{}

	if _, err := New(evaluator, reviser).Run(testutil.Context(t, 0), baseConfig(), seedDoc()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(reviser.lastFailed) != 3 {
		t.Fatalf("expected 3 failures, got %d", len(reviser.lastFailed))
	}
	if reviser.lastFailed[0].Record.ID != "r07" {
		t.Fatalf("unexpected first failure %+v", reviser.lastFailed[0].Record)
	}
}

func TestRunEvaluatesTestSplit(t *testing.T) {
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 10}}
	cfg := baseConfig()
	test := trainSet(4)
	test.Split = "test"
	cfg.Test = &test
	sink := &memorySink{}

	outcome, err := New(evaluator, &scriptedReviser{}, WithSink(sink)).Run(testutil.Context(t, 0), cfg, seedDoc())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(evaluator.calls) != 2 || evaluator.calls[1].Split != "test" {
		t.Fatalf("expected train and test rounds, got %+v", evaluator.calls)
	}
	if outcome.Rounds[0].Test == nil || outcome.Rounds[0].Test.Total != 4 {
		t.Fatalf("expected test summary, got %+v", outcome.Rounds[0])
	}
	if len(sink.rounds) != 2 {
		t.Fatalf("expected both splits persisted, got %d", len(sink.rounds))
	}
	if evaluator.calls[0].SystemPrompt != "persona: seed document" {
		t.Fatalf("unexpected system prompt %q", evaluator.calls[0].SystemPrompt)
	}
}

func TestRunGeneratesSeedFromReferences(t *testing.T) {
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 10}}
	reviser := &scriptedReviser{}
	sink := &memorySink{}
	seed := Seed{References: []dataset.Reference{{Question: "q", Answer: "a"}}}

	outcome, err := New(evaluator, reviser, WithSink(sink)).Run(testutil.Context(t, 0), baseConfig(), seed)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reviser.generated != 1 || outcome.State != StateConverged {
		t.Fatalf("expected generated seed and convergence, got %d %s", reviser.generated, outcome.State)
	}
	if sink.last().SeedSource != string(revision.SeedGenerated) {
		t.Fatalf("unexpected seed source %q", sink.last().SeedSource)
	}
}

func TestRunAbortsWhenSeedGenerationFails(t *testing.T) {
	reviser := &scriptedReviser{genErr: errors.New("boom")}
	evaluator := &scriptedEvaluator{}
	seed := Seed{References: []dataset.Reference{{Question: "q", Answer: "a"}}}

	outcome, err := New(evaluator, reviser).Run(testutil.Context(t, 0), baseConfig(), seed)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.State != StateAborted || reviser.generated != DefaultMaxRevisionAttempts {
		t.Fatalf("expected aborted after %d tries, got %s after %d", DefaultMaxRevisionAttempts, outcome.State, reviser.generated)
	}
	if len(evaluator.calls) != 0 {
		t.Fatalf("expected no evaluation")
	}
}

func TestRunStopsAtRoundBoundary(t *testing.T) {
	stop := &Stop{}
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 5}}
	evaluator.hook = func(evaluation.Round) { stop.Request() }
	reviser := &scriptedReviser{}
	sink := &memorySink{}

	outcome, err := New(evaluator, reviser, WithSink(sink), WithStop(stop)).
		Run(testutil.Context(t, 0), baseConfig(), seedDoc())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.State != StateAborted || outcome.Reason != ReasonStopped {
		t.Fatalf("expected stopped abort, got %s %q", outcome.State, outcome.Reason)
	}
	if len(sink.rounds) != 1 || reviser.calls != 0 {
		t.Fatalf("expected round 0 kept without revision, got %d rounds %d revisions", len(sink.rounds), reviser.calls)
	}
}

func TestRunCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(testutil.Context(t, 0))
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 5}}
	evaluator.hook = func(evaluation.Round) { cancel() }

	outcome, err := New(evaluator, &scriptedReviser{}).Run(ctx, baseConfig(), seedDoc())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.State != StateAborted || outcome.Reason != ReasonCancelled {
		t.Fatalf("expected cancelled abort, got %s %q", outcome.State, outcome.Reason)
	}
}

func TestRunAbortsOnSinkFailure(t *testing.T) {
	sink := &memorySink{failRound: errors.New("disk full")}
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 5}}

	outcome, err := New(evaluator, &scriptedReviser{}, WithSink(sink)).Run(testutil.Context(t, 0), baseConfig(), seedDoc())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.State != StateAborted || !strings.Contains(outcome.Reason, "disk full") {
		t.Fatalf("expected sink abort, got %s %q", outcome.State, outcome.Reason)
	}
}

func TestRunUngradableRoundNeverBecomesBest(t *testing.T) {
	evaluator := &scriptedEvaluator{correct: map[int]int{0: 3, 1: 0}}
	cfg := baseConfig()
	cfg.MaxRounds = 1
	ungradable := &ungradableEvaluator{inner: evaluator, version: 1}

	outcome, err := New(ungradable, &scriptedReviser{}).Run(testutil.Context(t, 0), cfg, seedDoc())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Best.Version != 0 {
		t.Fatalf("expected v0 to stay best, got v%d", outcome.Best.Version)
	}
	if outcome.Latest.Accuracy != nil {
		t.Fatalf("expected null latest accuracy")
	}
}

// ungradableEvaluator marks every result of one version as ungradable.
type ungradableEvaluator struct {
	inner   Evaluator
	version int
}

func (e *ungradableEvaluator) Evaluate(ctx context.Context, round evaluation.Round) (evaluation.Summary, []evaluation.Result, error) {
	summary, results, err := e.inner.Evaluate(ctx, round)
	if err != nil || round.Version != e.version {
		return summary, results, err
	}
	for i := range results {
		results[i].Predicted = nil
		results[i].Correct = false
		results[i].ErrorKind = evaluation.ErrorKindUngradable
		results[i].Error = "no answer"
	}
	return evaluation.Summarize(round.Version, round.Split, results), results, nil
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no records", mutate: func(c *Config) { c.Train.Records = nil }},
		{name: "no model", mutate: func(c *Config) { c.EvalModel = " " }},
		{name: "no prompt", mutate: func(c *Config) { c.SystemPrompt = nil }},
		{name: "bad threshold", mutate: func(c *Config) { c.Threshold = 1.5 }},
		{name: "bad keep", mutate: func(c *Config) { c.Keep = "first" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(&cfg)
			_, err := New(&scriptedEvaluator{}, &scriptedReviser{}).Run(testutil.Context(t, 0), cfg, seedDoc())
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestMultiSinkCallsEverySink(t *testing.T) {
	failing := &memorySink{failRound: errors.New("first")}
	ok := &memorySink{}
	err := MultiSink{failing, nil, ok}.SaveRound(evaluation.Summary{Version: 2}, nil)
	if err == nil || !strings.Contains(err.Error(), "first") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.rounds) != 1 {
		t.Fatalf("expected second sink to receive the round")
	}
}
