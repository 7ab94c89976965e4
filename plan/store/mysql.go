package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store.
//
// Designed for a shared build-analytics database that many build agents
// write to. It uses connection pooling and transactional batch writes.
//
// Timestamps are stored as Unix nanoseconds (BIGINT), so the DSN does not
// need parseTime.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore connects to dsn and creates the schema if needed.
//
// The DSN format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
//
// Security Warning:
//
//	NEVER hardcode credentials in your source code. Use environment variables:
//	    st, err := store.NewMySQLStore(os.Getenv("EXECPLAN_MYSQL_DSN"))
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m := &MySQLStore{db: db}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	executionsTable := `
		CREATE TABLE IF NOT EXISTS node_executions (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			plan_id VARCHAR(191) NOT NULL,
			path VARCHAR(512) NOT NULL,
			status VARCHAR(1024) NOT NULL,
			start_ns BIGINT NOT NULL,
			finish_ns BIGINT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_executions_plan_start (plan_id, start_ns),
			UNIQUE KEY unique_plan_path (plan_id, path)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, executionsTable); err != nil {
		return fmt.Errorf("failed to create node_executions table: %w", err)
	}
	return nil
}

const mysqlUpsert = `
	INSERT INTO node_executions (plan_id, path, status, start_ns, finish_ns)
	VALUES (?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		status = VALUES(status),
		start_ns = VALUES(start_ns),
		finish_ns = VALUES(finish_ns)
`

func (m *MySQLStore) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// SaveExecution stores exec, replacing any earlier record for the same path.
func (m *MySQLStore) SaveExecution(ctx context.Context, planID string, exec Execution) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	start, finish, err := exec.unixNanos()
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx, mysqlUpsert, planID, exec.Path, exec.Status, start, finish)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// SaveExecutions stores execs in one transaction.
func (m *MySQLStore) SaveExecutions(ctx context.Context, planID string, execs []Execution) error {
	return m.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, mysqlUpsert)
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
		return nil
	})
}

// LoadExecutions returns the executions of planID ordered by start, then path.
func (m *MySQLStore) LoadExecutions(ctx context.Context, planID string) ([]Execution, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT path, status, start_ns, finish_ns
		FROM node_executions
		WHERE plan_id = ?
		ORDER BY start_ns, path
	`
	rows, err := m.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// Close closes the connection pool. Calling Close multiple times is safe.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}

// Stats returns connection pool statistics.
func (m *MySQLStore) Stats() sql.DBStats {
	return m.db.Stats()
}

// WithTransaction runs fn inside a read-committed transaction, committing
// when fn returns nil and rolling back otherwise.
func (m *MySQLStore) WithTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
