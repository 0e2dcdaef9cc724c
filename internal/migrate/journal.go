package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Status is the final disposition of one item in a run.
type Status string

const (
	// StatusMigrated — copied (where needed) and moved into the backup folder.
	StatusMigrated Status = "migrated"
	// StatusSkipped — nothing to do (already migrated, missing, or trashed).
	StatusSkipped Status = "skipped"
	// StatusFailed — a copy or move error survived retries.
	StatusFailed Status = "failed"
	// StatusPlanned — dry run only; no remote mutation was issued.
	StatusPlanned Status = "planned"
)

// Outcome is one journal row: what happened to one item in one run.
type Outcome struct {
	ItemID     string
	Name       string
	Kind       string
	Status     Status
	Detail     string
	RecordedAt time.Time
}

// Run summarizes one invocation of the engine.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Copied     int
	Moved      int
	Skipped    int
	Failed     int
}

// Journal persists per-item outcomes in an embedded SQLite database so a
// run's results are reproducible afterwards and re-runs can skip items that
// already migrated without touching the remote API.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenJournal opens (creating if needed) the journal database at dbPath and
// applies pending schema migrations. Use ":memory:" for tests.
func OpenJournal(dbPath string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("migrate: creating journal directory: %w", err)
		}
	}

	logger.Debug("opening run journal", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("migrate: opening journal: %w", err)
	}

	if err := setPragmas(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("migrate: %s: %w", p, err)
		}
	}

	return nil
}

// runMigrations applies all pending schema migrations to the database.
// Uses the goose v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	// Strip the "migrations/" prefix so goose sees files at the root of the FS.
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("migrate: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: running journal migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied journal migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// BeginRun inserts a new run row and returns its ID.
func (j *Journal) BeginRun(ctx context.Context) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (started_at) VALUES (?)`,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("migrate: starting run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("migrate: reading run id: %w", err)
	}

	return id, nil
}

// FinishRun stamps the run's end time and totals.
func (j *Journal) FinishRun(ctx context.Context, runID int64, s Summary) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, copied = ?, moved = ?, skipped = ?, failed = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339),
		s.Copied, s.Moved, s.Skipped, s.Failed, runID,
	)
	if err != nil {
		return fmt.Errorf("migrate: finishing run %d: %w", runID, err)
	}

	return nil
}

// Record appends one item outcome to the journal.
func (j *Journal) Record(ctx context.Context, runID int64, o Outcome) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO item_outcomes (run_id, item_id, name, kind, status, detail, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, o.ItemID, o.Name, o.Kind, string(o.Status), o.Detail,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("migrate: recording outcome for %s: %w", o.ItemID, err)
	}

	return nil
}

// Migrated reports whether the item completed migration in any earlier run.
func (j *Journal) Migrated(ctx context.Context, itemID string) (bool, error) {
	var n int

	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM item_outcomes WHERE item_id = ? AND status = ?`,
		itemID, string(StatusMigrated),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("migrate: querying journal for %s: %w", itemID, err)
	}

	return n > 0, nil
}

// Runs returns all runs, newest first.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, ''), copied, moved, skipped, failed
		 FROM runs ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("migrate: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var (
			r                    Run
			startedAt, finishedAt string
		)

		if err := rows.Scan(&r.ID, &startedAt, &finishedAt, &r.Copied, &r.Moved, &r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("migrate: scanning run: %w", err)
		}

		r.StartedAt = parseJournalTime(startedAt)
		r.FinishedAt = parseJournalTime(finishedAt)
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("migrate: iterating runs: %w", err)
	}

	return runs, nil
}

// ErrNoRuns is returned by LatestRun on an empty journal.
var ErrNoRuns = errors.New("migrate: journal holds no runs")

// LatestRun returns the most recent run.
func (j *Journal) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := j.Runs(ctx)
	if err != nil {
		return nil, err
	}

	if len(runs) == 0 {
		return nil, ErrNoRuns
	}

	return &runs[0], nil
}

// Outcomes returns all item outcomes for a run in recording order.
func (j *Journal) Outcomes(ctx context.Context, runID int64) ([]Outcome, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT item_id, name, kind, status, detail, recorded_at
		 FROM item_outcomes WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("migrate: listing outcomes for run %d: %w", runID, err)
	}
	defer rows.Close()

	var outcomes []Outcome

	for rows.Next() {
		var (
			o          Outcome
			status     string
			recordedAt string
		)

		if err := rows.Scan(&o.ItemID, &o.Name, &o.Kind, &status, &o.Detail, &recordedAt); err != nil {
			return nil, fmt.Errorf("migrate: scanning outcome: %w", err)
		}

		o.Status = Status(status)
		o.RecordedAt = parseJournalTime(recordedAt)
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("migrate: iterating outcomes: %w", err)
	}

	return outcomes, nil
}

// parseJournalTime parses a stored RFC3339 timestamp; the zero time stands
// in for empty or unparseable values (unfinished runs).
func parseJournalTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}

	return t
}
