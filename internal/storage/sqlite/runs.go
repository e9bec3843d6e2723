package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yegors/runway-sim/internal/simulation"
	"github.com/yegors/runway-sim/internal/trials"
	"github.com/yegors/runway-sim/pkg/logger"
)

// fixed width so text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when no run has the requested ID
var ErrRunNotFound = errors.New("run not found")

// Open opens (creating if needed) the SQLite database at path. ":memory:"
// gives a private in-memory database.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: sqlite serializes writers and each :memory:
	// connection would otherwise see its own database
	db.SetMaxOpenConns(1)
	return db, nil
}

// RunStorage stores finished trial batches. Only outcomes are kept, never
// frame history.
type RunStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewRunStorage creates run storage over db and ensures its tables exist
func NewRunStorage(db *sql.DB, logger *logger.Logger) (*RunStorage, error) {
	storage := &RunStorage{
		db:     db,
		logger: logger.Named("sqlite-runs"),
	}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *RunStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			config TEXT NOT NULL,
			summary TEXT NOT NULL,
			control_crashes INTEGER NOT NULL,
			test_crashes INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trial_results (
			run_id TEXT NOT NULL,
			trial INTEGER NOT NULL,
			control BOOLEAN NOT NULL,
			crashes INTEGER NOT NULL,
			landed INTEGER NOT NULL,
			spawned INTEGER NOT NULL,
			admissions INTEGER NOT NULL,
			preemptions INTEGER NOT NULL,
			frames INTEGER NOT NULL,
			PRIMARY KEY (run_id, trial),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create trial_results table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trial_results_control ON trial_results(run_id, control)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// StoreBatch stores a finished batch and all of its trial results
func (s *RunStorage) StoreBatch(ctx context.Context, batch *trials.Batch) error {
	configJSON, err := json.Marshal(batch.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	summaryJSON, err := json.Marshal(batch.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs
		(id, config, summary, control_crashes, test_crashes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		batch.ID,
		string(configJSON),
		string(summaryJSON),
		batch.Summary.Control.Crashes,
		batch.Summary.Test.Crashes,
		batch.StartedAt.Format(timeLayout),
		batch.FinishedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO trial_results
		(run_id, trial, control, crashes, landed, spawned, admissions, preemptions, frames)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trial insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range batch.Results {
		if _, err := stmt.ExecContext(ctx,
			batch.ID, r.Trial, r.Control, r.Crashes, r.Landed, r.Spawned, r.Admissions, r.Preemptions, r.Frames,
		); err != nil {
			return fmt.Errorf("failed to insert trial %d: %w", r.Trial, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	s.logger.Debug("Stored run",
		logger.String("id", batch.ID),
		logger.Int("trials", len(batch.Results)))
	return nil
}

// GetRun returns the run with the given ID
func (s *RunStorage) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, config, summary, control_crashes, test_crashes, started_at, finished_at
		FROM runs
		WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	records, err := s.scanRunRows(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return records[0], nil
}

// GetRecentRuns returns the most recently finished runs
func (s *RunStorage) GetRecentRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, config, summary, control_crashes, test_crashes, started_at, finished_at
		FROM runs
		ORDER BY finished_at DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	return s.scanRunRows(rows)
}

// GetTrialResults returns the per-trial results of a run, in trial order
func (s *RunStorage) GetTrialResults(ctx context.Context, runID string) ([]simulation.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trial, control, crashes, landed, spawned, admissions, preemptions, frames
		FROM trial_results
		WHERE run_id = ?
		ORDER BY trial`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trial results: %w", err)
	}
	defer rows.Close()

	var results []simulation.Result
	for rows.Next() {
		var r simulation.Result
		if err := rows.Scan(&r.Trial, &r.Control, &r.Crashes, &r.Landed, &r.Spawned, &r.Admissions, &r.Preemptions, &r.Frames); err != nil {
			return nil, fmt.Errorf("failed to scan trial result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trial results: %w", err)
	}
	return results, nil
}

// DeleteRun removes a run and its trial results
func (s *RunStorage) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trial_results WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete trial results: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return tx.Commit()
}

// scanRunRows scans database rows into RunRecord structs
func (s *RunStorage) scanRunRows(rows *sql.Rows) ([]*RunRecord, error) {
	var records []*RunRecord
	for rows.Next() {
		var record RunRecord
		var configJSON, summaryJSON, startedAt, finishedAt string

		if err := rows.Scan(
			&record.ID,
			&configJSON,
			&summaryJSON,
			&record.ControlCrashes,
			&record.TestCrashes,
			&startedAt,
			&finishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if err := json.Unmarshal([]byte(configJSON), &record.Config); err != nil {
			return nil, fmt.Errorf("failed to decode run config: %w", err)
		}
		if err := json.Unmarshal([]byte(summaryJSON), &record.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode run summary: %w", err)
		}

		var err error
		record.StartedAt, err = time.Parse(timeLayout, startedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		record.FinishedAt, err = time.Parse(timeLayout, finishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished_at: %w", err)
		}

		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return records, nil
}
