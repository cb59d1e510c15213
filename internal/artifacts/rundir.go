package artifacts

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"soulbench/internal/evaluation"
	"soulbench/internal/orchestrator"
	"soulbench/internal/revision"
)

// File names inside a run directory.
const (
	RoundsFile       = "rounds.jsonl"
	SummaryFile      = "summary.json"
	ManifestFile     = "run.json"
	BestDocumentFile = "best_soul_doc.txt"
	ReportFile       = "report.html"
)

// ResultsFile names the per-record results of one version and split.
func ResultsFile(version int, split string) string {
	return fmt.Sprintf("results_v%d_%s.jsonl", version, split)
}

// DocumentFile names the text of one document version.
func DocumentFile(version int) string {
	return fmt.Sprintf("soul_doc_v%d.txt", version)
}

// RunInfo describes the run for summary.json.
type RunInfo struct {
	Task          string
	Persona       string
	EvalModel     string
	RevisionModel string
	MaxRounds     int
	MaxFailures   int
	TrainSize     int
	TestSize      int
}

// Summary is the accuracy series written to summary.json. Accuracies are
// indexed by version; null marks a round with no gradable result.
type Summary struct {
	Task             string     `json:"task"`
	Persona          string     `json:"persona"`
	EvalModel        string     `json:"eval_model"`
	RevisionModel    string     `json:"revision_model"`
	Iterations       int        `json:"iterations"`
	MaxWrongExamples int        `json:"max_wrong_examples"`
	TrainSize        int        `json:"train_size"`
	TestSize         int        `json:"test_size"`
	TrainAccuracies  []*float64 `json:"train_accuracies"`
	TestAccuracies   []*float64 `json:"test_accuracies"`
	BestVersion      *int       `json:"best_version,omitempty"`
	State            string     `json:"state,omitempty"`
}

// RunDir persists a revision run into one directory.
type RunDir struct {
	dir  string
	info RunInfo

	mu     sync.Mutex
	rounds []evaluation.Summary
	best   *int
	state  string
}

// NewRunDir returns a sink rooted at dir.
func NewRunDir(dir string, info RunInfo) *RunDir {
	return &RunDir{dir: dir, info: info}
}

// Path joins name onto the run directory.
func (r *RunDir) Path(name string) string {
	return filepath.Join(r.dir, name)
}

func (r *RunDir) SaveDocument(doc revision.Document) error {
	return WriteFile(r.Path(DocumentFile(doc.Version)), []byte(doc.Content))
}

func (r *RunDir) SaveRound(summary evaluation.Summary, results []evaluation.Result) error {
	if err := WriteJSONL(r.Path(ResultsFile(summary.Version, summary.Split)), results); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, summary)
	if err := WriteJSONL(r.Path(RoundsFile), r.rounds); err != nil {
		return fmt.Errorf("write rounds: %w", err)
	}
	return r.writeSummaryLocked()
}

func (r *RunDir) SaveSelected(doc revision.Document) error {
	return WriteFile(r.Path(BestDocumentFile), []byte(doc.Content))
}

func (r *RunDir) SaveManifest(manifest orchestrator.Manifest) error {
	if err := WriteJSON(r.Path(ManifestFile), manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = string(manifest.State)
	if manifest.Selected != nil {
		version := manifest.Selected.Version
		r.best = &version
	}
	return r.writeSummaryLocked()
}

func (r *RunDir) writeSummaryLocked() error {
	summary := Summary{
		Task:             r.info.Task,
		Persona:          r.info.Persona,
		EvalModel:        r.info.EvalModel,
		RevisionModel:    r.info.RevisionModel,
		Iterations:       r.info.MaxRounds,
		MaxWrongExamples: r.info.MaxFailures,
		TrainSize:        r.info.TrainSize,
		TestSize:         r.info.TestSize,
		TrainAccuracies:  Series(r.rounds, "train"),
		TestAccuracies:   Series(r.rounds, "test"),
		BestVersion:      r.best,
		State:            r.state,
	}
	if err := WriteJSON(r.Path(SummaryFile), summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Series returns the accuracies of split ordered by version.
func Series(rounds []evaluation.Summary, split string) []*float64 {
	var picked []evaluation.Summary
	for _, round := range rounds {
		if round.Split == split {
			picked = append(picked, round)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Version < picked[j].Version })
	series := make([]*float64, 0, len(picked))
	for _, round := range picked {
		series = append(series, round.Accuracy)
	}
	return series
}
