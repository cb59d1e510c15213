package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"soulbench/internal/evaluation"
	"soulbench/internal/orchestrator"
	"soulbench/internal/revision"
)

// Run kinds stored in the runs table.
const (
	KindRevision = "iterative_revision"
	KindEval     = "eval"
)

const defaultStatementTimeout = 30 * time.Second

// RunInput describes a runs row.
type RunInput struct {
	RunID         string
	Kind          string
	Task          string
	Persona       string
	EvalModel     string
	RevisionModel string
	StartedAt     time.Time
}

// Store writes run progress into DuckDB. It implements orchestrator.Sink.
type Store struct {
	db      *sql.DB
	runID   string
	timeout time.Duration
	now     func() time.Time
}

// NewStore registers the run and returns a sink bound to it.
func NewStore(ctx context.Context, db *sql.DB, input RunInput) (*Store, error) {
	if db == nil {
		return nil, errors.New("duckdb: db is nil")
	}
	if input.RunID == "" {
		return nil, errors.New("duckdb: run_id is required")
	}
	if input.Kind == "" {
		input.Kind = KindRevision
	}
	store := &Store{db: db, runID: input.RunID, timeout: defaultStatementTimeout, now: time.Now}
	if input.StartedAt.IsZero() {
		input.StartedAt = store.now()
	}
	if _, err := db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO runs (run_id, kind, task, persona, eval_model, revision_model, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		input.RunID,
		input.Kind,
		input.Task,
		input.Persona,
		input.EvalModel,
		nullableString(input.RevisionModel),
		input.StartedAt.UTC(),
		store.now().UTC(),
	); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return store, nil
}

func (s *Store) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) SaveDocument(doc revision.Document) error {
	ctx, cancel := s.context()
	defer cancel()
	var parent any
	if doc.Parent >= 0 && doc.Origin == revision.OriginRevision {
		parent = doc.Parent
	}
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO documents (run_id, version, origin, parent_version, seed_source, content_key, content, selected)
		 VALUES (?, ?, ?, ?, ?, ?, ?, false)`,
		s.runID,
		doc.Version,
		string(doc.Origin),
		parent,
		nullableString(string(doc.SeedSource)),
		FingerprintText(doc.Content),
		doc.Content,
	); err != nil {
		return fmt.Errorf("upsert document v%d: %w", doc.Version, err)
	}
	return nil
}

// SaveRound replaces the round row and its results in one transaction.
func (s *Store) SaveRound(summary evaluation.Summary, results []evaluation.Result) error {
	ctx, cancel := s.context()
	defer cancel()
	return s.saveRound(ctx, summary, results)
}

func (s *Store) saveRound(ctx context.Context, summary evaluation.Summary, results []evaluation.Result) (err error) {
	failureIDs, err := json.Marshal(summary.FailureIDs)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin round tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO rounds (run_id, version, split, accuracy, gradable_count, ungradable_count, correct_count, total, failure_ids)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID,
		summary.Version,
		summary.Split,
		nullableFloat(summary.Accuracy),
		summary.GradableCount,
		summary.UngradableCount,
		summary.CorrectCount,
		summary.Total,
		string(failureIDs),
	); err != nil {
		return fmt.Errorf("upsert round v%d %s: %w", summary.Version, summary.Split, err)
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM results WHERE run_id = ? AND version = ? AND split = ?`,
		s.runID, summary.Version, summary.Split,
	); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (run_id, version, split, record_id, persona, predicted, correct, raw_completion, reasoning, error, error_kind, attempts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare results: %w", err)
	}
	defer stmt.Close()
	for _, result := range results {
		var predicted any
		if result.Predicted != nil {
			predicted = result.Predicted.String()
		}
		if _, err = stmt.ExecContext(ctx,
			s.runID,
			summary.Version,
			summary.Split,
			result.RecordID,
			nullableString(result.Persona),
			predicted,
			result.Correct,
			result.RawCompletion,
			nullableString(result.Reasoning),
			nullableString(result.Error),
			nullableString(result.ErrorKind),
			result.Attempts,
		); err != nil {
			return fmt.Errorf("insert result %s: %w", result.RecordID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit round: %w", err)
	}
	return nil
}

func (s *Store) SaveSelected(doc revision.Document) error {
	ctx, cancel := s.context()
	defer cancel()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE documents SET selected = (version = ?) WHERE run_id = ?`,
		doc.Version, s.runID,
	); err != nil {
		return fmt.Errorf("mark selected v%d: %w", doc.Version, err)
	}
	return nil
}

func (s *Store) SaveManifest(manifest orchestrator.Manifest) error {
	ctx, cancel := s.context()
	defer cancel()
	payload, err := CanonicalJSON(manifest)
	if err != nil {
		return err
	}
	var version, accuracy any
	if manifest.Selected != nil {
		version = manifest.Selected.Version
		accuracy = nullableFloat(manifest.Selected.Accuracy)
	}
	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET state = ?, abort_reason = ?, keep_policy = ?, target_threshold = ?, max_rounds = ?,
		   selected_version = ?, selected_accuracy = ?, manifest = ?, updated_at = ?
		 WHERE run_id = ?`,
		string(manifest.State),
		nullableString(manifest.AbortReason),
		string(manifest.Keep),
		manifest.Threshold,
		manifest.MaxRounds,
		version,
		accuracy,
		string(payload),
		s.now().UTC(),
		s.runID,
	); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// IngestEval stores a single-shot evaluation as a run with one round.
func IngestEval(ctx context.Context, db *sql.DB, input RunInput, summary evaluation.Summary, results []evaluation.Result) error {
	input.Kind = KindEval
	store, err := NewStore(ctx, db, input)
	if err != nil {
		return err
	}
	if err := store.saveRound(ctx, summary, results); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx,
		`UPDATE runs SET state = 'completed', selected_accuracy = ?, updated_at = ? WHERE run_id = ?`,
		nullableFloat(summary.Accuracy), store.now().UTC(), input.RunID,
	); err != nil {
		return fmt.Errorf("finish eval run: %w", err)
	}
	return nil
}

// nullableString maps empty text to SQL NULL.
func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}
