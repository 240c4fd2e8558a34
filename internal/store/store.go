package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/onnwee/nbody-barneshut/backend/internal/metrics"
)

// ErrNotFound is returned for unknown run IDs.
var ErrNotFound = errors.New("run not found")

// Status is the lifecycle state of a run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Done reports whether the status is final.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Run is one row of the run ledger. Trajectories are never stored.
type Run struct {
	ID             string     `json:"id"`
	Status         Status     `json:"status"`
	Algorithm      string     `json:"algorithm"`
	Particles      int        `json:"particles"`
	Steps          int        `json:"steps"`
	Seed           uint64     `json:"seed"`
	Theta          float64    `json:"theta"`
	Cached         bool       `json:"cached"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
	FinalX         float64    `json:"final_x"`
	FinalY         float64    `json:"final_y"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Outcome is what a finished run records.
type Outcome struct {
	Status         Status
	ElapsedSeconds float64
	FinalX, FinalY float64
	Error          string
}

// Store is the SQLite-backed run ledger.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the ledger at path.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps pragmas in effect and serializes writers
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		particles INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		seed TEXT NOT NULL,
		theta REAL NOT NULL,
		cached INTEGER NOT NULL DEFAULT 0,
		elapsed_seconds REAL NOT NULL DEFAULT 0,
		final_x REAL NOT NULL DEFAULT 0,
		final_y REAL NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		finished_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("migrate runs: %w", err)
	}
	return nil
}

// Create inserts a new run.
func (s *Store) Create(ctx context.Context, r *Run) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO runs (id, status, algorithm, particles, steps, seed, theta, cached, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Status), r.Algorithm, r.Particles, r.Steps,
		strconv.FormatUint(r.Seed, 10), r.Theta, r.Cached, r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		metrics.StoreOperationErrors.WithLabelValues("create").Inc()
		return fmt.Errorf("create run %s: %w", r.ID, err)
	}
	return nil
}

// MarkRunning moves a queued run to running.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	return s.exec(ctx, "mark_running", id,
		`UPDATE runs SET status = ? WHERE id = ?`, string(StatusRunning), id)
}

// Finish records the outcome of a run.
func (s *Store) Finish(ctx context.Context, id string, o Outcome) error {
	// REAL NOT NULL rejects NaN
	o.ElapsedSeconds = finiteOrZero(o.ElapsedSeconds)
	o.FinalX = finiteOrZero(o.FinalX)
	o.FinalY = finiteOrZero(o.FinalY)
	return s.exec(ctx, "finish", id, `
		UPDATE runs SET status = ?, elapsed_seconds = ?, final_x = ?, final_y = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		string(o.Status), o.ElapsedSeconds, o.FinalX, o.FinalY, o.Error, time.Now().UTC().UnixMilli(), id)
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (s *Store) exec(ctx context.Context, op, id, query string, args ...any) error {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		metrics.StoreOperationErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

const runColumns = `id, status, algorithm, particles, steps, seed, theta, cached,
	elapsed_seconds, final_x, final_y, error, created_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r        Run
		status   string
		seed     string
		created  int64
		finished sql.NullInt64
	)
	err := sc.Scan(&r.ID, &status, &r.Algorithm, &r.Particles, &r.Steps, &seed, &r.Theta, &r.Cached,
		&r.ElapsedSeconds, &r.FinalX, &r.FinalY, &r.Error, &created, &finished)
	if err != nil {
		return nil, err
	}
	r.Status = Status(status)
	if r.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return nil, fmt.Errorf("run %s: bad seed %q: %w", r.ID, seed, err)
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		r.FinishedAt = &t
	}
	return &r, nil
}

// Get returns the run with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.StoreOperationErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		metrics.StoreOperationErrors.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// CountByStatus returns the number of runs in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		metrics.StoreOperationErrors.WithLabelValues("count").Inc()
		return nil, fmt.Errorf("count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count runs: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// FailInterrupted marks runs left queued or running by a previous process
// as failed. It returns how many were updated.
func (s *Store) FailInterrupted(ctx context.Context) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE status IN (?, ?)`,
		string(StatusFailed), "interrupted by server restart", time.Now().UTC().UnixMilli(),
		string(StatusQueued), string(StatusRunning))
	if err != nil {
		metrics.StoreOperationErrors.WithLabelValues("fail_interrupted").Inc()
		return 0, fmt.Errorf("fail interrupted runs: %w", err)
	}
	return res.RowsAffected()
}
