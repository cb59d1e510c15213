package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"soulbench/internal/artifacts"
	"soulbench/internal/evaluation"
	"soulbench/internal/orchestrator"
)

func float(v float64) *float64 {
	return &v
}

func sampleRun() Run {
	lastGood := 1
	return Run{
		Manifest: orchestrator.Manifest{
			RunID:           "20260102T030405Z-abc",
			Task:            "globaloqa",
			Persona:         "Japan",
			EvalModel:       "eval/model",
			RevisionModel:   "rev/model",
			State:           orchestrator.StateAborted,
			AbortReason:     "stopped",
			Keep:            orchestrator.KeepBest,
			Threshold:       1,
			Selected:        &orchestrator.Selection{Version: 1, Accuracy: float(0.75)},
			LastGoodVersion: &lastGood,
		},
		Rounds: []evaluation.Summary{
			{Version: 1, Split: "train", Accuracy: float(0.75), GradableCount: 4},
			{Version: 0, Split: "train", Accuracy: float(0.5), GradableCount: 4},
			{Version: 0, Split: "test", UngradableCount: 2},
		},
		Document: "<b>Be kind</b>",
	}
}

// TestBuildPageOrdersVersions verifies rows, selection and chart points.
func TestBuildPageOrdersVersions(t *testing.T) {
	page := BuildPage(sampleRun())
	if len(page.Rows) != 2 || page.Rows[0].Version != "v0" || page.Rows[1].Version != "v1" {
		t.Fatalf("unexpected rows %+v", page.Rows)
	}
	if page.Rows[0].Test != "n/a" || page.Rows[1].Test != "-" {
		t.Fatalf("unexpected test cells %+v", page.Rows)
	}
	if page.Rows[1].Selected != "true" || page.Rows[0].Selected != "" {
		t.Fatalf("expected v1 selected")
	}
	if page.Chart.TrainPoints != "32.0,120.0 608.0,76.0" {
		t.Fatalf("unexpected train points %q", page.Chart.TrainPoints)
	}
	if page.Chart.TestPoints != "" {
		t.Fatalf("expected null test accuracy to be skipped, got %q", page.Chart.TestPoints)
	}
}

// TestRenderHTMLEscapesDocument verifies the document is rendered as text.
func TestRenderHTMLEscapesDocument(t *testing.T) {
	html, err := RenderHTML(context.Background(), BuildPage(sampleRun()))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, token := range []string{"Japan", "stopped", "v1 (75.0%)", "&lt;b&gt;Be kind&lt;/b&gt;", "<table", "<polyline"} {
		if !strings.Contains(html, token) {
			t.Fatalf("expected report to include %s", token)
		}
	}
}

// TestWriteRunReportFromRunDir verifies the report is built from artifacts.
func TestWriteRunReportFromRunDir(t *testing.T) {
	dir := t.TempDir()
	run := sampleRun()
	sink := artifacts.NewRunDir(dir, artifacts.RunInfo{Task: "globaloqa", Persona: "Japan"})
	for _, round := range run.Rounds {
		if err := sink.SaveRound(round, nil); err != nil {
			t.Fatalf("save round: %v", err)
		}
	}
	if err := sink.SaveManifest(run.Manifest); err != nil {
		t.Fatalf("save manifest: %v", err)
	}
	path, err := WriteRunReport(context.Background(), dir)
	if err != nil {
		t.Fatalf("write report: %v", err)
	}
	if path != filepath.Join(dir, artifacts.ReportFile) {
		t.Fatalf("unexpected path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), "Revision run 20260102T030405Z-abc") {
		t.Fatalf("expected run title in report")
	}
	if strings.Contains(string(data), "Selected document") {
		t.Fatalf("expected no document section without best_soul_doc.txt")
	}
}

// TestLoadRunRequiresManifest verifies a missing manifest is reported.
func TestLoadRunRequiresManifest(t *testing.T) {
	if _, err := LoadRun(t.TempDir()); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
