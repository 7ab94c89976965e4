package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStore_CreatesFileAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.db")

	st, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer func() { _ = st.Close() }()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
	if st.Path() != path {
		t.Errorf("Path() = %q, want %q", st.Path(), path)
	}

	var name string
	err = st.db.QueryRowContext(context.Background(),
		"SELECT name FROM sqlite_master WHERE type='table' AND name='node_executions'").Scan(&name)
	if err != nil {
		t.Fatalf("node_executions table missing: %v", err)
	}
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "profiles.db")
	start := time.Date(2024, 5, 1, 9, 30, 0, 123456789, time.UTC)

	st, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.SaveExecution(ctx, "build-1", Execution{Path: ":a", Start: start, Finish: start.Add(time.Second)}); err != nil {
		t.Fatalf("SaveExecution: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.LoadExecutions(ctx, "build-1")
	if err != nil {
		t.Fatalf("LoadExecutions: %v", err)
	}
	if len(got) != 1 || !got[0].Start.Equal(start) {
		t.Errorf("reloaded = %+v, want start %v with nanosecond precision", got, start)
	}
}

func TestSQLiteStore_InMemory(t *testing.T) {
	st, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore(:memory:): %v", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.SaveExecution(context.Background(), "p", Execution{Path: ":a"}); err != nil {
		t.Errorf("SaveExecution: %v", err)
	}
}

func TestSQLiteStore_BatchRollsBackOnCancel(t *testing.T) {
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := st.SaveExecutions(ctx, "p", []Execution{{Path: ":a"}, {Path: ":b"}}); err == nil {
		t.Fatal("SaveExecutions with cancelled context should fail")
	}

	if _, err := st.LoadExecutions(context.Background(), "p"); err != ErrNotFound {
		t.Errorf("LoadExecutions after failed batch: err = %v, want ErrNotFound", err)
	}
}
