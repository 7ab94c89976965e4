package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps execution records in a single-file database. Designed for:
//   - Developer machines comparing local build profiles
//   - Tests with zero setup
//
// Features:
//   - Auto-migration on first use
//   - WAL mode for concurrent reads
//   - Transactional batch writes
//
// Timestamps are stored as Unix nanoseconds so ordering and round-trips are
// exact.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" gives a
// database that is discarded on Close.
//
// Example:
//
//	st, err := store.NewSQLiteStore("./profiles.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	executionsTable := `
		CREATE TABLE IF NOT EXISTS node_executions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			plan_id TEXT NOT NULL,
			path TEXT NOT NULL,
			status TEXT NOT NULL,
			start_ns INTEGER NOT NULL,
			finish_ns INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(plan_id, path)
		)
	`
	if _, err := s.db.ExecContext(ctx, executionsTable); err != nil {
		return fmt.Errorf("failed to create node_executions table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_executions_plan_start ON node_executions(plan_id, start_ns)"); err != nil {
		return fmt.Errorf("failed to create idx_executions_plan_start: %w", err)
	}
	return nil
}

const sqliteUpsert = `
	INSERT INTO node_executions (plan_id, path, status, start_ns, finish_ns)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(plan_id, path) DO UPDATE SET
		status = excluded.status,
		start_ns = excluded.start_ns,
		finish_ns = excluded.finish_ns
`

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// SaveExecution stores exec, replacing any earlier record for the same path.
func (s *SQLiteStore) SaveExecution(ctx context.Context, planID string, exec Execution) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	start, finish, err := exec.unixNanos()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqliteUpsert, planID, exec.Path, exec.Status, start, finish)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// SaveExecutions stores execs in one transaction.
func (s *SQLiteStore) SaveExecutions(ctx context.Context, planID string, execs []Execution) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, exec := range execs {
		start, finish, err := exec.unixNanos()
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, planID, exec.Path, exec.Status, start, finish); err != nil {
			return fmt.Errorf("failed to save execution %s: %w", exec.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadExecutions returns the executions of planID ordered by start, then path.
func (s *SQLiteStore) LoadExecutions(ctx context.Context, planID string) ([]Execution, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT path, status, start_ns, finish_ns
		FROM node_executions
		WHERE plan_id = ?
		ORDER BY start_ns, path
	`
	rows, err := s.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// Close closes the database. Calling Close multiple times is safe.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Path returns the database location the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.path
}

// scanExecutions reads path, status, start_ns, finish_ns rows.
func scanExecutions(rows *sql.Rows) ([]Execution, error) {
	var out []Execution
	for rows.Next() {
		var (
			exec              Execution
			startNs, finishNs int64
		)
		if err := rows.Scan(&exec.Path, &exec.Status, &startNs, &finishNs); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		exec.Start = fromUnixNanos(startNs)
		exec.Finish = fromUnixNanos(finishNs)
		out = append(out, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}
