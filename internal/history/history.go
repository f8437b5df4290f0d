// Package history keeps a SQLite ledger of driver runs so that past
// checkpoints can be listed without walking the run directories.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/san-kum/remdrive/internal/metrics"
)

// ErrNotFound is returned for an unknown run ID.
var ErrNotFound = errors.New("history: run not found")

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// timeLayout has fixed width so that created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    config TEXT NOT NULL,
    created_at TEXT NOT NULL,
    seed INTEGER NOT NULL,
    steps INTEGER NOT NULL,
    rounds INTEGER NOT NULL,
    property TEXT NOT NULL,
    replicas INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    round INTEGER NOT NULL,
    step INTEGER NOT NULL,
    property TEXT NOT NULL,
    value REAL,
    PRIMARY KEY (run_id, round)
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

type Run struct {
	ID        string
	Config    string
	CreatedAt time.Time
	Seed      int64
	Steps     int
	Rounds    int
	Property  string
	Replicas  int

	Checkpoints []metrics.Checkpoint
}

type Ledger struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// InitSchema creates the tables if needed. It is idempotent.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, SchemaVersion)
	return err
}

// Record stores a run and its checkpoints in one transaction.
func (l *Ledger) Record(ctx context.Context, r Run) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, config, created_at, seed, steps, rounds, property, replicas)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Config, r.CreatedAt.UTC().Format(timeLayout), r.Seed, r.Steps, r.Rounds, r.Property, r.Replicas)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO checkpoints (run_id, round, step, property, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range r.Checkpoints {
		// SQLite has no NaN; store it as NULL.
		var value sql.NullFloat64
		if c.Finite() {
			value = sql.NullFloat64{Float64: c.Value, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.ID, c.Round, c.Step, c.Property, value); err != nil {
			return fmt.Errorf("insert checkpoint %d: %w", c.Round, err)
		}
	}

	return tx.Commit()
}

// Runs returns the most recent runs first. limit <= 0 means all.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, config, created_at, seed, steps, rounds, property, replicas
	          FROM runs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			created string
		)
		if err := rows.Scan(&r.ID, &r.Config, &created, &r.Seed, &r.Steps, &r.Rounds, &r.Property, &r.Replicas); err != nil {
			return nil, err
		}
		r.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad timestamp %q: %w", r.ID, created, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Checkpoints returns the checkpoints of one run in round order.
func (l *Ledger) Checkpoints(ctx context.Context, id string) ([]metrics.Checkpoint, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, id).Scan(&n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT round, step, property, value FROM checkpoints WHERE run_id = ? ORDER BY round`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []metrics.Checkpoint{}
	for rows.Next() {
		var (
			c     metrics.Checkpoint
			value sql.NullFloat64
		)
		if err := rows.Scan(&c.Round, &c.Step, &c.Property, &value); err != nil {
			return nil, err
		}
		c.Value = math.NaN()
		if value.Valid {
			c.Value = value.Float64
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
