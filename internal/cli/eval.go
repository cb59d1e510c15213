package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"soulbench/internal/artifacts"
	"soulbench/internal/catalog"
	"soulbench/internal/duckdb"
	"soulbench/internal/evaluation"
	"soulbench/internal/orchestrator"
	"soulbench/internal/ui/live"
	"soulbench/internal/verbose"
)

// Prompt sources recorded in eval summaries.
const (
	promptSourceSoul   = "soul"
	promptSourceStatic = "static"
)

const staticPromptPrefix = "system_prompt_"

// evalDone is the phase shown when a single-shot evaluation finishes.
const evalDone orchestrator.State = "completed"

// evalParams are the parsed eval flags.
type evalParams struct {
	task          string
	persona       string
	model         string
	soul          string
	static        string
	split         string
	out           string
	maxConcurrent int
	timeout       time.Duration
	configPath    string
	duckdbPath    string
	output        outputFlags
}

// runEval builds the handler for the eval command.
func runEval(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		var params evalParams
		fs.StringVar(&params.task, "task", "", "Task name (opinionqa|globaloqa)")
		fs.StringVar(&params.persona, "persona", "", "Persona name")
		fs.StringVar(&params.model, "model", "", "Inference model id")
		fs.StringVar(&params.soul, "soul", "", "Soul document key")
		fs.StringVar(&params.static, "static", "", "Static prompt key")
		fs.StringVar(&params.split, "split", "test", "Dataset split")
		fs.StringVar(&params.out, "out", "", "Results JSONL path")
		fs.IntVar(&params.maxConcurrent, "max-concurrent", 0, "Max concurrent inference calls")
		fs.DurationVar(&params.timeout, "timeout", 0, "Timeout per inference call (default: config inference.timeout_seconds)")
		fs.StringVar(&params.configPath, "config", "", "Path to config file (default: search for .soulbench/config.yml)")
		fs.StringVar(&params.duckdbPath, "duckdb", "", "Also ingest results into this DuckDB file")
		params.output.register(fs)
		if err := fs.Parse(args); err != nil {
			return ExitUsage
		}
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

		ctx, interrupt, stop := signalContext(context.Background(), nil)
		defer stop()
		params.output.interrupt = interrupt
		return executeEval(ctx, params, stdout, stderr)
	}
}

func (p *evalParams) check() error {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"--task", p.task},
		{"--persona", p.persona},
		{"--model", p.model},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	if (p.soul == "") == (p.static == "") {
		return errors.New("exactly one of --soul or --static is required")
	}
	if _, err := parseUIMode(p.output.ui); err != nil {
		return err
	}
	return nil
}

// tag names the prompt in default output paths.
func (p *evalParams) tag() string {
	if p.soul != "" {
		return p.soul
	}
	return strings.TrimPrefix(p.static, staticPromptPrefix)
}

func executeEval(ctx context.Context, params evalParams, stdout, stderr io.Writer) int {
	env, err := loadEnvironment(params.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return ExitError
	}
	persona, err := env.catalog.ResolvePersona(params.task, params.persona)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid persona: %v\n", err)
		return ExitUsage
	}
	systemPrompt, source, key, err := evalSystemPrompt(env.catalog, params, persona)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to build system prompt: %v\n", err)
		return ExitError
	}
	data, err := env.source().Load(ctx, params.task, persona, params.split)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load dataset: %v\n", err)
		return ExitError
	}

	outPath := strings.TrimSpace(params.out)
	if outPath == "" {
		outPath = env.cfg.EvalOutputPath(params.task, params.tag(), params.model, persona)
	} else if abs, err := filepath.Abs(outPath); err == nil {
		outPath = abs
	}

	db, err := openWarehouse(ctx, params.duckdbPath)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitError
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	out, err := openOutput(params.output, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitUsage
	}
	client, err := newClient(env.cfg, clientOverrides{maxConcurrent: params.maxConcurrent, timeout: params.timeout}, out.limits(), params.model)
	if err != nil {
		out.finish()
		fmt.Fprintf(stderr, "Failed to create inference client: %v\n", err)
		return ExitError
	}
	defer closeClient(client)

	runID, err := orchestrator.NewRunID(time.Now())
	if err != nil {
		out.finish()
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitError
	}
	out.start(live.RunInfo{
		RunID:     runID,
		Command:   "eval",
		Task:      params.task,
		Persona:   persona,
		EvalModel: params.model,
	})
	out.logger.Block("system prompt ("+source+" "+key+"):", systemPrompt, verbose.StyleTask, verbose.StyleDefault)
	startedAt := time.Now()
	evaluator := evaluation.New(client, evaluation.WithObserver(out.records()))
	summary, results, err := evaluator.Evaluate(ctx, evaluation.Round{
		Dataset:      data,
		Split:        params.split,
		SystemPrompt: systemPrompt,
		Model:        params.model,
	})
	if err != nil {
		out.end(orchestrator.StateAborted, err.Error())
		out.finish()
		fmt.Fprintf(stderr, "Eval failed: %v\n", err)
		return ExitError
	}
	out.logRound(summary)
	if out.live != nil {
		out.live.OnRoundEnd(summary)
	}
	out.end(evalDone, "")
	out.finish()

	if err := artifacts.WriteEval(outPath, artifacts.EvalSummary{
		Task:         params.task,
		Persona:      persona,
		Model:        params.model,
		PromptSource: source,
		PromptKey:    key,
		Summary:      summary,
	}, results); err != nil {
		fmt.Fprintf(stderr, "Failed to write results: %v\n", err)
		return ExitError
	}
	if db != nil {
		if err := duckdb.IngestEval(ctx, db, duckdb.RunInput{
			RunID:     runID,
			Task:      params.task,
			Persona:   persona,
			EvalModel: params.model,
			StartedAt: startedAt,
		}, summary, results); err != nil {
			fmt.Fprintf(stderr, "Failed to ingest results: %v\n", err)
			return ExitError
		}
	}

	fmt.Fprintf(stdout, "Eval %s completed\n", runID)
	fmt.Fprintf(stdout, "Accuracy: %s (%d/%d gradable, %d ungradable, %d records)\n",
		formatAccuracy(summary.Accuracy),
		summary.CorrectCount,
		summary.GradableCount,
		summary.UngradableCount,
		summary.Total,
	)
	fmt.Fprintf(stdout, "Results: %s\n", outPath)
	fmt.Fprintf(stdout, "Summary: %s\n", artifacts.EvalSummaryPath(outPath))
	return ExitOK
}

// evalSystemPrompt resolves the soul or static prompt for an eval run.
func evalSystemPrompt(cat *catalog.Catalog, params evalParams, persona string) (string, string, string, error) {
	if params.soul != "" {
		doc, err := cat.SoulDoc(params.task, params.soul)
		if err != nil {
			return "", "", "", err
		}
		prompt, err := cat.SoulPrompt(params.task, doc)
		if err != nil {
			return "", "", "", err
		}
		return prompt, promptSourceSoul, params.soul, nil
	}
	prompt, err := cat.StaticPrompt(params.task, params.static, persona)
	if err != nil {
		return "", "", "", err
	}
	return prompt, promptSourceStatic, params.static, nil
}
