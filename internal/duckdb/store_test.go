package duckdb_test

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"soulbench/internal/dataset"
	"soulbench/internal/duckdb"
	"soulbench/internal/duckdb/testing"
	"soulbench/internal/evaluation"
	"soulbench/internal/orchestrator"
	"soulbench/internal/revision"
	"soulbench/internal/testutil"
)

const unitTimeout = 5 * time.Second

func sampleResults() []evaluation.Result {
	agree := dataset.Boolean(true)
	disagree := dataset.Boolean(false)
	return []evaluation.Result{
		{RecordID: "r1", Persona: "democrat", Predicted: &agree, Correct: true, RawCompletion: "agree", Attempts: 1},
		{RecordID: "r2", Persona: "democrat", Predicted: &disagree, Correct: false, RawCompletion: "disagree", Attempts: 2},
		{RecordID: "r3", Persona: "democrat", RawCompletion: "", Error: "empty response", ErrorKind: "empty_response", Attempts: 3},
	}
}

func openStore(t *testing.T) (*sql.DB, *duckdb.Store) {
	t.Helper()
	db := duckdbtesting.Open(t, ":memory:")
	store, err := duckdb.NewStore(testutil.Context(t, unitTimeout), db, duckdb.RunInput{
		RunID:         "run-1",
		Task:          "opinionqa",
		Persona:       "democrat",
		EvalModel:     "eval/model",
		RevisionModel: "rev/model",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return db, store
}

// TestSchemaObjectsExist verifies core tables and views are created.
func TestSchemaObjectsExist(t *testing.T) {
	db := duckdbtesting.Open(t, ":memory:")
	for _, table := range []string{"runs", "documents", "rounds", "results"} {
		count := duckdbtesting.QueryInt(t, db, "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?", table)
		if count != 1 {
			t.Fatalf("expected table %s to exist", table)
		}
	}
	if count := duckdbtesting.QueryInt(t, db, "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'v_accuracy' AND table_type = 'VIEW'"); count != 1 {
		t.Fatalf("expected view v_accuracy to exist")
	}
}

// TestEnsureSchemaIdempotent verifies the schema can be applied twice.
func TestEnsureSchemaIdempotent(t *testing.T) {
	db := duckdbtesting.Open(t, ":memory:")
	if err := duckdb.EnsureSchema(testutil.Context(t, unitTimeout), db); err != nil {
		t.Fatalf("reapply schema: %v", err)
	}
}

// TestStoreSavesRoundAndResults verifies rounds replace earlier writes.
func TestStoreSavesRoundAndResults(t *testing.T) {
	db, store := openStore(t)
	results := sampleResults()
	summary := evaluation.Summarize(0, "train", results)
	for i := 0; i < 2; i++ {
		if err := store.SaveRound(summary, results); err != nil {
			t.Fatalf("save round: %v", err)
		}
	}
	if got := duckdbtesting.QueryInt(t, db, "SELECT COUNT(*) FROM results WHERE run_id = 'run-1'"); got != 3 {
		t.Fatalf("expected 3 results, got %d", got)
	}
	if got := duckdbtesting.QueryInt(t, db, "SELECT COUNT(*) FROM results WHERE predicted IS NULL"); got != 1 {
		t.Fatalf("expected 1 ungradable result, got %d", got)
	}
	if got := duckdbtesting.QueryInt(t, db, "SELECT gradable_count FROM rounds WHERE version = 0 AND split = 'train'"); got != 2 {
		t.Fatalf("expected gradable 2, got %d", got)
	}

	var accuracy float64
	if err := db.QueryRowContext(testutil.Context(t, unitTimeout),
		`SELECT accuracy FROM v_accuracy WHERE run_id = 'run-1' AND split = 'train' AND version = 0`,
	).Scan(&accuracy); err != nil {
		t.Fatalf("query v_accuracy: %v", err)
	}
	if accuracy != 0.5 {
		t.Fatalf("expected accuracy 0.5, got %v", accuracy)
	}
}

// TestStoreNullAccuracy verifies a fully ungradable round stores NULL.
func TestStoreNullAccuracy(t *testing.T) {
	db, store := openStore(t)
	results := sampleResults()[2:]
	if err := store.SaveRound(evaluation.Summarize(1, "test", results), results); err != nil {
		t.Fatalf("save round: %v", err)
	}
	if got := duckdbtesting.QueryInt(t, db, "SELECT COUNT(*) FROM rounds WHERE accuracy IS NULL"); got != 1 {
		t.Fatalf("expected null accuracy row")
	}
}

// TestStoreDocumentsAndManifest verifies documents, selection and run state.
func TestStoreDocumentsAndManifest(t *testing.T) {
	db, store := openStore(t)
	seed := revision.Seed("seed", revision.SeedCatalog, "default")
	next := seed.Next("revised")
	for _, doc := range []revision.Document{seed, next} {
		if err := store.SaveDocument(doc); err != nil {
			t.Fatalf("save document: %v", err)
		}
	}
	if err := store.SaveSelected(next); err != nil {
		t.Fatalf("save selected: %v", err)
	}
	accuracy := 0.8
	last := 1
	manifest := orchestrator.Manifest{
		RunID:           "run-1",
		State:           orchestrator.StateBudgetExhausted,
		Keep:            orchestrator.KeepBest,
		Threshold:       1,
		MaxRounds:       1,
		Selected:        &orchestrator.Selection{Version: 1, Accuracy: &accuracy},
		LastGoodVersion: &last,
	}
	if err := store.SaveManifest(manifest); err != nil {
		t.Fatalf("save manifest: %v", err)
	}
	if got := duckdbtesting.QueryInt(t, db, "SELECT version FROM documents WHERE selected"); got != 1 {
		t.Fatalf("expected v1 selected, got %d", got)
	}
	if got := duckdbtesting.QueryInt(t, db, "SELECT parent_version FROM documents WHERE version = 1"); got != 0 {
		t.Fatalf("expected parent 0, got %d", got)
	}
	if got := duckdbtesting.QueryInt(t, db, "SELECT COUNT(*) FROM runs WHERE state = 'budget_exhausted' AND selected_version = 1"); got != 1 {
		t.Fatalf("expected run state updated")
	}
}

// TestIngestEvalPersistsToFile verifies eval runs survive a reopen.
func TestIngestEvalPersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.duckdb")
	db := duckdbtesting.Open(t, path)
	results := sampleResults()
	input := duckdb.RunInput{RunID: "eval-1", Task: "globaloqa", Persona: "Japan", EvalModel: "m"}
	if err := duckdb.IngestEval(testutil.Context(t, unitTimeout), db, input, evaluation.Summarize(0, "test", results), results); err != nil {
		t.Fatalf("ingest eval: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened := duckdbtesting.Open(t, path)
	if got := duckdbtesting.QueryInt(t, reopened, "SELECT COUNT(*) FROM runs WHERE kind = 'eval' AND state = 'completed'"); got != 1 {
		t.Fatalf("expected eval run row")
	}
}

// TestCanonicalJSONStable verifies key order does not change the encoding.
func TestCanonicalJSONStable(t *testing.T) {
	left, err := duckdb.CanonicalJSON(map[string]any{"a": 1.0, "b": []any{"x"}})
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	right, err := duckdb.CanonicalJSON(map[string]any{"b": []any{"x"}, "a": 1.0})
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if string(left) != string(right) {
		t.Fatalf("encoding mismatch: %s vs %s", left, right)
	}
	if duckdb.FingerprintText("soul") == duckdb.FingerprintText("soul ") {
		t.Fatalf("expected distinct text fingerprints")
	}
}
