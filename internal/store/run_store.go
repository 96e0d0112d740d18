// Package store keeps an optional SQLite journal of generation runs: the task,
// the generated signature, code and tests, every fix attempt, and the outcome.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codesmith/internal/logging"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	// ErrRunNotFound is returned for an unknown run ID.
	ErrRunNotFound = errors.New("run not found")
	// ErrAmbiguousID is returned by Resolve when a prefix matches several runs.
	ErrAmbiguousID = errors.New("ambiguous run ID prefix")
)

// RunStatus is the lifecycle state of a journaled run.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusPassed  RunStatus = "passed"
	StatusFailed  RunStatus = "failed" // fix attempts exhausted
	StatusError   RunStatus = "error"  // aborted by an API or infrastructure error
)

// Run is one invocation of the generation pipeline.
type Run struct {
	ID               string
	Task             string
	Model            string
	Status           RunStatus
	Signature        string
	Code             string
	Tests            map[string]string
	Error            string
	FixCount         int
	PromptTokens     int
	CompletionTokens int
	StartedAt        time.Time
	FinishedAt       *time.Time
	Attempts         []RunAttempt // populated by Get only
}

// Duration returns the wall-clock run time, or zero while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunAttempt is one failed execution and the fix it produced.
type RunAttempt struct {
	Seq          int
	Stage        string // "main code" or a test name
	ErrorMessage string
	Code         string
	FixedCode    string
	CreatedAt    time.Time
}

// RunOutcome carries the final state recorded by FinishRun.
type RunOutcome struct {
	Status           RunStatus
	Signature        string
	Code             string
	Tests            map[string]string
	Error            string
	PromptTokens     int
	CompletionTokens int
}

// RunStore persists runs to SQLite.
type RunStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	now    func() time.Time
}

// NewRunStore opens (creating if needed) the journal at dbPath.
func NewRunStore(dbPath string) (*RunStore, error) {
	logging.StoreDebug("Initializing RunStore at path: %s", dbPath)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.StoreError("Failed to create RunStore directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		logging.StoreError("Failed to open RunStore database at %s: %v", dbPath, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between the pool's connections.
	db.SetMaxOpenConns(1)

	s := &RunStore{db: db, dbPath: dbPath, now: time.Now}
	if err := s.initialize(); err != nil {
		logging.StoreError("Failed to initialize RunStore schema: %v", err)
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("RunStore initialized at %s", dbPath)
	return s, nil
}

func (s *RunStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		signature TEXT NOT NULL DEFAULT '',
		code TEXT NOT NULL DEFAULT '',
		tests TEXT NOT NULL DEFAULT '{}',
		error TEXT NOT NULL DEFAULT '',
		fix_count INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS run_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		stage TEXT NOT NULL,
		error_message TEXT NOT NULL,
		code TEXT NOT NULL,
		fixed_code TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		UNIQUE(run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_run_attempts_run ON run_attempts(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *RunStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *RunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// StartRun inserts a running record and returns its ID.
func (s *RunStore) StartRun(ctx context.Context, task, model string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, task, model, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, task, model, string(StatusRunning), s.now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	logging.StoreDebug("Run %s started", id)
	return id, nil
}

// RecordAttempt appends a fix attempt to a run and bumps its fix count.
func (s *RunStore) RecordAttempt(ctx context.Context, runID string, a RunAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE runs SET fix_count = fix_count + 1 WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT fix_count FROM runs WHERE id = ?`, runID).Scan(&seq); err != nil {
		return fmt.Errorf("failed to read fix count: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_attempts (run_id, seq, stage, error_message, code, fixed_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, seq, a.Stage, a.ErrorMessage, a.Code, a.FixedCode, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return tx.Commit()
}

// FinishRun records the outcome of a run.
func (s *RunStore) FinishRun(ctx context.Context, runID string, out RunOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tests, err := json.Marshal(out.Tests)
	if err != nil {
		return fmt.Errorf("failed to encode tests: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, signature = ?, code = ?, tests = ?, error = ?,
			prompt_tokens = ?, completion_tokens = ?, finished_at = ?
		WHERE id = ?`,
		string(out.Status), out.Signature, out.Code, string(tests), out.Error,
		out.PromptTokens, out.CompletionTokens, s.now().UnixMilli(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	logging.Store("Run %s finished: %s", runID, out.Status)
	return nil
}

const runColumns = `id, task, model, status, signature, code, tests, error, fix_count,
	prompt_tokens, completion_tokens, started_at, finished_at`

// Recent returns up to limit runs, newest first.
func (s *RunStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Get returns a run with its attempts in order.
func (s *RunStore) Get(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, stage, error_message, code, fixed_code, created_at
		FROM run_attempts WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a RunAttempt
		var created int64
		if err := rows.Scan(&a.Seq, &a.Stage, &a.ErrorMessage, &a.Code, &a.FixedCode, &created); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.CreatedAt = time.UnixMilli(created)
		run.Attempts = append(run.Attempts, a)
	}
	return run, rows.Err()
}

// Resolve expands a unique ID prefix to a full run ID.
func (s *RunStore) Resolve(ctx context.Context, prefix string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if prefix == "" {
		return "", fmt.Errorf("%w: empty ID", ErrRunNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE substr(id, 1, ?) = ? ORDER BY started_at DESC LIMIT 2`, len(prefix), prefix)
	if err != nil {
		return "", fmt.Errorf("failed to resolve run ID: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan run ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r        Run
		status   string
		tests    string
		started  int64
		finished sql.NullInt64
	)
	err := sc.Scan(&r.ID, &r.Task, &r.Model, &status, &r.Signature, &r.Code, &tests, &r.Error,
		&r.FixCount, &r.PromptTokens, &r.CompletionTokens, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	r.Status = RunStatus(status)
	r.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		t := time.UnixMilli(finished.Int64)
		r.FinishedAt = &t
	}
	if tests != "" {
		if err := json.Unmarshal([]byte(tests), &r.Tests); err != nil {
			logging.StoreError("Run %s has malformed tests column: %v", r.ID, err)
		}
	}
	return &r, nil
}
