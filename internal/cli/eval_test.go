package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"soulbench/internal/artifacts"
	duckdbtesting "soulbench/internal/duckdb/testing"
)

func TestEvalStaticPromptWritesResults(t *testing.T) {
	p := newProject(t)
	p.writeSplit(t, testSplit, 3)
	service := &fakeService{}
	useProvider(t, service)

	code, stdout, stderr := runCLI("eval",
		"--config", p.configPath,
		"--task", "opinionqa",
		"--persona", "Democrat",
		"--model", testEvalModel,
		"--static", "system_prompt_base_persona_political",
		"--ui", "plain",
	)
	if code != ExitOK {
		t.Fatalf("expected exit %d, got %d (stderr %q)", ExitOK, code, stderr)
	}
	resultsPath := p.path("results", "opinionqa", "eval_results_base_persona_political_acme_eval-1_democrat.jsonl")
	if !strings.Contains(stdout, "Results: "+resultsPath) {
		t.Fatalf("expected results path in output, got %q", stdout)
	}
	if got := countLines(t, resultsPath); got != 3 {
		t.Fatalf("expected 3 result lines, got %d", got)
	}
	var summary artifacts.EvalSummary
	p.readJSON(t, artifacts.EvalSummaryPath(resultsPath), &summary)
	if summary.PromptSource != promptSourceStatic || summary.PromptKey != "system_prompt_base_persona_political" {
		t.Fatalf("unexpected prompt fields: %+v", summary)
	}
	if summary.Persona != "democrat" || summary.Summary.Total != 3 || summary.Summary.GradableCount != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Summary.Accuracy == nil || *summary.Summary.Accuracy != 0 {
		t.Fatalf("expected accuracy 0, got %v", summary.Summary.Accuracy)
	}
	if service.evalCalls.Load() != 3 {
		t.Fatalf("expected 3 eval calls, got %d", service.evalCalls.Load())
	}
}

func TestEvalSoulDocumentIngestsIntoDuckDB(t *testing.T) {
	p := newProject(t)
	p.writeSplit(t, testSplit, 4)
	p.write(t, p.path("data", "opinionqa", "souls", "democrat_test.md"), "You are a "+revisedMarker+" Democrat.\n")
	useProvider(t, &fakeService{})
	dbPath := filepath.Join(t.TempDir(), "warehouse.duckdb")
	out := filepath.Join(t.TempDir(), "eval.jsonl")

	code, stdout, stderr := runCLI("eval",
		"--config", p.configPath,
		"--task", "opinionqa",
		"--persona", "democrat",
		"--model", testEvalModel,
		"--soul", "democrat_test",
		"--out", out,
		"--duckdb", dbPath,
	)
	if code != ExitOK {
		t.Fatalf("expected exit %d, got %d (stderr %q)", ExitOK, code, stderr)
	}
	if !strings.Contains(stdout, "Accuracy: 100.0% (4/4 gradable") {
		t.Fatalf("expected full accuracy, got %q", stdout)
	}
	db := duckdbtesting.Open(t, dbPath)
	if got := duckdbtesting.QueryInt(t, db, "SELECT COUNT(*) FROM runs WHERE kind = 'eval'"); got != 1 {
		t.Fatalf("expected one eval run, got %d", got)
	}
	if got := duckdbtesting.QueryInt(t, db, "SELECT COUNT(*) FROM results"); got != 4 {
		t.Fatalf("expected 4 results, got %d", got)
	}
}

func TestEvalUsageErrors(t *testing.T) {
	p := newProject(t)
	useProvider(t, &fakeService{})
	base := []string{"eval", "--config", p.configPath, "--task", "opinionqa", "--model", testEvalModel}
	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing persona", args: append(append([]string{}, base...), "--static", "x"), want: "--persona"},
		{name: "no prompt", args: append(append([]string{}, base...), "--persona", "democrat"), want: "exactly one of --soul or --static"},
		{name: "both prompts", args: append(append([]string{}, base...), "--persona", "democrat", "--soul", "a", "--static", "b"), want: "exactly one of --soul or --static"},
		{name: "unknown persona", args: append(append([]string{}, base...), "--persona", "whig", "--static", "x"), want: "must be one of"},
		{name: "positional", args: append(append([]string{}, base...), "extra"), want: "unexpected arguments"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := runCLI(tc.args...)
			if code != ExitUsage {
				t.Fatalf("expected exit %d, got %d (stderr %q)", ExitUsage, code, stderr)
			}
			if !strings.Contains(stderr, tc.want) {
				t.Fatalf("expected %q in stderr, got %q", tc.want, stderr)
			}
		})
	}
}

func TestEvalUnknownStaticPrompt(t *testing.T) {
	p := newProject(t)
	p.writeSplit(t, testSplit, 1)
	useProvider(t, &fakeService{})

	code, _, stderr := runCLI("eval", "--config", p.configPath, "--task", "opinionqa",
		"--persona", "democrat", "--model", testEvalModel, "--static", "system_prompt_missing")
	if code != ExitError {
		t.Fatalf("expected exit %d, got %d", ExitError, code)
	}
	if !strings.Contains(stderr, "unknown catalog key") {
		t.Fatalf("expected unknown key error, got %q", stderr)
	}
}

func TestEvalMissingCredential(t *testing.T) {
	p := newProject(t)
	p.writeSplit(t, testSplit, 1)
	t.Setenv("SOULBENCH_TEST_KEY", "")

	code, _, stderr := runCLI("eval", "--config", p.configPath, "--task", "opinionqa",
		"--persona", "democrat", "--model", testEvalModel, "--static", "system_prompt_base_persona_political")
	if code != ExitError {
		t.Fatalf("expected exit %d, got %d", ExitError, code)
	}
	if !strings.Contains(stderr, "SOULBENCH_TEST_KEY is not set") {
		t.Fatalf("expected missing credential error, got %q", stderr)
	}
}
