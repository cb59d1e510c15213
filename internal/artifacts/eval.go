package artifacts

import (
	"strings"

	"soulbench/internal/evaluation"
)

// EvalSummary is written next to single-shot evaluation results.
type EvalSummary struct {
	Task         string             `json:"task"`
	Persona      string             `json:"persona"`
	Model        string             `json:"model"`
	PromptSource string             `json:"prompt_source"`
	PromptKey    string             `json:"prompt_key"`
	Results      string             `json:"results"`
	Summary      evaluation.Summary `json:"summary"`
}

// EvalSummaryPath derives the summary path from a results path.
func EvalSummaryPath(resultsPath string) string {
	return strings.TrimSuffix(resultsPath, ".jsonl") + "_summary.json"
}

// WriteEval persists one evaluation: the results JSONL and its summary.
func WriteEval(resultsPath string, summary EvalSummary, results []evaluation.Result) error {
	if err := WriteJSONL(resultsPath, results); err != nil {
		return err
	}
	summary.Results = resultsPath
	return WriteJSON(EvalSummaryPath(resultsPath), summary)
}
