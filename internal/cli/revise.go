package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"soulbench/internal/artifacts"
	"soulbench/internal/config"
	"soulbench/internal/dataset"
	"soulbench/internal/duckdb"
	"soulbench/internal/evaluation"
	"soulbench/internal/orchestrator"
	"soulbench/internal/report"
	"soulbench/internal/revision"
	"soulbench/internal/ui/live"
)

const (
	trainSplit = "train"
	testSplit  = "test"
)

const reportTimeout = 30 * time.Second

// revisionParams are the parsed iterative_revision flags. Negative numbers
// and empty strings defer to the config file.
type revisionParams struct {
	task             string
	persona          string
	evalModel        string
	revisionModel    string
	iterations       int
	target           float64
	targetSet        bool
	maxConcurrent    int
	maxWrongExamples int
	timeout          time.Duration
	soul             string
	initialDoc       string
	keep             string
	outDir           string
	configPath       string
	duckdbPath       string
	output           outputFlags
}

// runIterativeRevision builds the handler for the iterative_revision command.
func runIterativeRevision(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		var params revisionParams
		fs.StringVar(&params.task, "task", "", "Task name (opinionqa|globaloqa)")
		fs.StringVar(&params.persona, "persona", "", "Persona name")
		fs.StringVar(&params.evalModel, "eval-model", "", "Model answering the survey questions")
		fs.StringVar(&params.revisionModel, "revision-model", "", "Model generating and revising documents (default: config revision.revision_model)")
		fs.IntVar(&params.iterations, "iterations", -1, "Revision rounds (default: config revision.max_rounds)")
		fs.Float64Var(&params.target, "target", 0, "Train accuracy that ends the run (default: config revision.target_threshold)")
		fs.IntVar(&params.maxConcurrent, "max-concurrent", 0, "Max concurrent inference calls")
		fs.IntVar(&params.maxWrongExamples, "max-wrong-examples", 0, "Failures shown to the revision model (default: config revision.max_failures)")
		fs.DurationVar(&params.timeout, "timeout", 0, "Timeout per inference call (default: config inference.timeout_seconds)")
		fs.StringVar(&params.soul, "soul", "", "Seed from a catalog soul document")
		fs.StringVar(&params.initialDoc, "initial-soul-doc", "", "Seed from a document file")
		fs.StringVar(&params.keep, "keep", "", "Reported document: best|latest (default: config revision.keep)")
		fs.StringVar(&params.outDir, "out-dir", "", "Run output directory")
		fs.StringVar(&params.configPath, "config", "", "Path to config file (default: search for .soulbench/config.yml)")
		fs.StringVar(&params.duckdbPath, "duckdb", "", "Also record the run in this DuckDB file")
		params.output.register(fs)
		if err := fs.Parse(args); err != nil {
			return ExitUsage
		}
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "target" {
				params.targetSet = true
			}
		})
		if fs.NArg() > 0 {
			fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
			printCommandUsage(cmd, stderr)
			return ExitUsage
		}
		if err := params.check(); err != nil {
			fmt.Fprintln(stderr, err)
			printCommandUsage(cmd, stderr)
			return ExitUsage
		}

		stop := &orchestrator.Stop{}
		ctx, interrupt, cancel := signalContext(context.Background(), stop)
		defer cancel()
		params.output.interrupt = interrupt
		return executeRevision(ctx, stop, params, stdout, stderr)
	}
}

func (p *revisionParams) check() error {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"--task", p.task},
		{"--persona", p.persona},
		{"--eval-model", p.evalModel},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	if p.soul != "" && p.initialDoc != "" {
		return errors.New("--soul and --initial-soul-doc are mutually exclusive")
	}
	if p.targetSet && (p.target <= 0 || p.target > 1) {
		return fmt.Errorf("--target must be within (0, 1], got %g", p.target)
	}
	switch p.keep {
	case "", config.KeepBest, config.KeepLatest:
	default:
		return fmt.Errorf("--keep must be best or latest, got %q", p.keep)
	}
	if _, err := parseUIMode(p.output.ui); err != nil {
		return err
	}
	return nil
}

// apply folds flag overrides into the revision config.
func (p *revisionParams) apply(rev *config.RevisionConfig) {
	if strings.TrimSpace(p.revisionModel) != "" {
		rev.Model = p.revisionModel
	}
	if p.iterations >= 0 {
		rev.MaxRounds = p.iterations
	}
	if p.targetSet {
		rev.TargetThreshold = p.target
	}
	if p.maxWrongExamples > 0 {
		rev.MaxFailures = p.maxWrongExamples
	}
	if p.keep != "" {
		rev.Keep = p.keep
	}
}

func executeRevision(ctx context.Context, stop *orchestrator.Stop, params revisionParams, stdout, stderr io.Writer) int {
	env, err := loadEnvironment(params.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return ExitError
	}
	rev := env.cfg.Revision
	params.apply(&rev)

	persona, err := env.catalog.ResolvePersona(params.task, params.persona)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid persona: %v\n", err)
		return ExitUsage
	}
	personaName, personaDescription, err := env.catalog.PersonaInfo(params.task, persona)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid persona: %v\n", err)
		return ExitUsage
	}

	source := env.source()
	train, err := source.Load(ctx, params.task, persona, trainSplit)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load train data: %v\n", err)
		return ExitError
	}
	var test *dataset.Dataset
	if source.Exists(params.task, persona, testSplit) {
		loaded, err := source.Load(ctx, params.task, persona, testSplit)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load test data: %v\n", err)
			return ExitError
		}
		test = &loaded
	}

	seed, err := revisionSeed(env, params, persona)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to prepare seed document: %v\n", err)
		return ExitError
	}

	outDir := strings.TrimSpace(params.outDir)
	if outDir == "" {
		outDir = env.cfg.RevisionOutputDir(params.task, persona, params.evalModel, rev.Model)
	} else if abs, err := filepath.Abs(outDir); err == nil {
		outDir = abs
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(stderr, "Failed to create output directory: %v\n", err)
		return ExitError
	}

	runID, err := orchestrator.NewRunID(time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitError
	}

	runDir := artifacts.NewRunDir(outDir, artifacts.RunInfo{
		Task:          params.task,
		Persona:       persona,
		EvalModel:     params.evalModel,
		RevisionModel: rev.Model,
		MaxRounds:     rev.MaxRounds,
		MaxFailures:   rev.MaxFailures,
		TrainSize:     train.Len(),
		TestSize:      testSize(test),
	})
	sinks := orchestrator.MultiSink{runDir}

	db, err := openWarehouse(ctx, params.duckdbPath)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitError
	}
	if db != nil {
		defer func() { _ = db.Close() }()
		store, err := duckdb.NewStore(ctx, db, duckdb.RunInput{
			RunID:         runID,
			Kind:          duckdb.KindRevision,
			Task:          params.task,
			Persona:       persona,
			EvalModel:     params.evalModel,
			RevisionModel: rev.Model,
		})
		if err != nil {
			fmt.Fprintf(stderr, "Failed to register run in duckdb: %v\n", err)
			return ExitError
		}
		sinks = append(sinks, store)
	}

	out, err := openOutput(params.output, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitUsage
	}
	client, err := newClient(env.cfg, clientOverrides{maxConcurrent: params.maxConcurrent, timeout: params.timeout}, out.limits(), params.evalModel, rev.Model)
	if err != nil {
		out.finish()
		fmt.Fprintf(stderr, "Failed to create inference client: %v\n", err)
		return ExitError
	}
	defer closeClient(client)

	reviser, err := revision.New(client, revision.Settings{
		Model:              rev.Model,
		PersonaName:        personaName,
		PersonaDescription: personaDescription,
		MaxFailures:        rev.MaxFailures,
		MaxDocChars:        rev.MaxDocChars,
	})
	if err != nil {
		out.finish()
		fmt.Fprintf(stderr, "Failed to create reviser: %v\n", err)
		return ExitError
	}
	out.start(live.RunInfo{
		RunID:         runID,
		Command:       "iterative_revision",
		Task:          params.task,
		Persona:       persona,
		EvalModel:     params.evalModel,
		RevisionModel: rev.Model,
	})

	evaluator := evaluation.New(client, evaluation.WithObserver(out.records()))
	loop := orchestrator.New(evaluator, reviser,
		orchestrator.WithSink(sinks),
		orchestrator.WithObserver(out.loop()),
		orchestrator.WithStop(stop),
	)
	outcome, err := loop.Run(ctx, orchestrator.Config{
		RunID:               runID,
		Task:                params.task,
		Persona:             persona,
		EvalModel:           params.evalModel,
		RevisionModel:       rev.Model,
		Train:               train,
		Test:                test,
		SystemPrompt:        env.catalog.RevisionPrompt,
		MaxRounds:           rev.MaxRounds,
		Threshold:           rev.TargetThreshold,
		MaxRevisionAttempts: rev.MaxAttempts,
		Keep:                orchestrator.KeepPolicy(rev.Keep),
	}, seed)
	if err != nil {
		out.end(orchestrator.StateAborted, err.Error())
		out.finish()
		fmt.Fprintf(stderr, "Revision run failed: %v\n", err)
		return ExitError
	}
	out.end(outcome.State, outcome.Reason)
	out.finish()

	reportCtx, cancelReport := context.WithTimeout(context.Background(), reportTimeout)
	defer cancelReport()
	reportPath, reportErr := report.WriteRunReport(reportCtx, outDir)
	if reportErr != nil {
		fmt.Fprintf(stderr, "Failed to write report: %v\n", reportErr)
	}

	printOutcome(stdout, outcome, outDir, reportPath)
	if !outcome.Succeeded() {
		if outcome.Reason != "" {
			fmt.Fprintf(stderr, "Run %s: %s\n", outcome.State, outcome.Reason)
		}
		return ExitError
	}
	return ExitOK
}

// revisionSeed picks the version 0 document: a catalog entry, a file, or
// generation from the task's reference answers.
func revisionSeed(env environment, params revisionParams, persona string) (orchestrator.Seed, error) {
	switch {
	case params.soul != "":
		content, err := env.catalog.SoulDoc(params.task, params.soul)
		if err != nil {
			return orchestrator.Seed{}, err
		}
		doc := revision.Seed(content, revision.SeedCatalog, params.soul)
		return orchestrator.Seed{Document: &doc}, nil
	case params.initialDoc != "":
		data, err := os.ReadFile(params.initialDoc)
		if err != nil {
			return orchestrator.Seed{}, fmt.Errorf("read initial soul doc: %w", err)
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			return orchestrator.Seed{}, fmt.Errorf("initial soul doc %s is empty", params.initialDoc)
		}
		doc := revision.Seed(content, revision.SeedFile, params.initialDoc)
		return orchestrator.Seed{Document: &doc}, nil
	default:
		path, key, err := env.catalog.References(params.task, persona)
		if err != nil {
			return orchestrator.Seed{}, err
		}
		refs, err := dataset.LoadReferences(path, key)
		if err != nil {
			return orchestrator.Seed{}, err
		}
		return orchestrator.Seed{References: refs}, nil
	}
}

func testSize(test *dataset.Dataset) int {
	if test == nil {
		return 0
	}
	return test.Len()
}

func printOutcome(w io.Writer, outcome orchestrator.Outcome, dir, reportPath string) {
	fmt.Fprintf(w, "Run %s %s after %d round(s)\n", outcome.RunID, outcome.State, len(outcome.Rounds))
	for _, round := range outcome.Rounds {
		line := fmt.Sprintf("  v%d train %s", round.Version, formatAccuracy(round.Train.Accuracy))
		if round.Test != nil {
			line += fmt.Sprintf("  test %s", formatAccuracy(round.Test.Accuracy))
		}
		fmt.Fprintln(w, line)
	}
	if outcome.Selected != nil {
		fmt.Fprintf(w, "Selected: v%d (%s)\n", outcome.Selected.Version, formatAccuracy(outcome.Selected.Accuracy))
	}
	fmt.Fprintf(w, "Output: %s\n", dir)
	if reportPath != "" {
		fmt.Fprintf(w, "Report: %s\n", reportPath)
	}
}
