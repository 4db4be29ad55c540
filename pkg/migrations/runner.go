package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"time"
)

// Runner executes database migrations.
type Runner struct {
	db     *sql.DB
	source fs.FS
	logger *slog.Logger
}

// NewRunner creates a new migration runner. A nil logger discards output.
func NewRunner(db *sql.DB, source fs.FS, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{db: db, source: source, logger: logger}
}

// Record is a row of the schema_migrations table.
type Record struct {
	Version   string
	AppliedAt time.Time
}

// Status describes one known migration.
type Status struct {
	Migration Migration
	Applied   bool
	AppliedAt *time.Time
}

// EnsureMigrationTable creates the schema_migrations table if it doesn't exist.
func (r *Runner) EnsureMigrationTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(14) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`)
	return err
}

// Applied returns all applied migration versions in order.
func (r *Runner) Applied(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Version, &rec.AppliedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Pending returns migrations that need to be applied.
func (r *Runner) Pending(ctx context.Context) ([]Migration, error) {
	available, err := Load(r.source)
	if err != nil {
		return nil, err
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	return pending(available, applied), nil
}

func pending(available []Migration, applied []Record) []Migration {
	done := make(map[string]bool, len(applied))
	for _, rec := range applied {
		done[rec.Version] = true
	}
	var out []Migration
	for _, m := range available {
		if !done[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// Up runs all pending migrations and returns how many were applied.
func (r *Runner) Up(ctx context.Context) (int, error) {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to ensure migration table: %w", err)
	}
	todo, err := r.Pending(ctx)
	if err != nil {
		return 0, err
	}
	if len(todo) == 0 {
		r.logger.Info("no pending migrations")
		return 0, nil
	}

	for i, m := range todo {
		if err := r.run(ctx, m, m.upPath, true); err != nil {
			return i, fmt.Errorf("migration %s failed: %w", m, err)
		}
		r.logger.Info("migration applied", "version", m.Version, "name", m.Name)
	}
	return len(todo), nil
}

// Down rolls back the most recently applied migration. It returns false
// when nothing was applied.
func (r *Runner) Down(ctx context.Context) (bool, error) {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return false, err
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return false, err
	}
	if len(applied) == 0 {
		r.logger.Info("no migrations to roll back")
		return false, nil
	}
	last := applied[len(applied)-1]

	available, err := Load(r.source)
	if err != nil {
		return false, err
	}
	for _, m := range available {
		if m.Version != last.Version {
			continue
		}
		if !m.HasDown() {
			return false, fmt.Errorf("migration %s has no down script", m)
		}
		if err := r.run(ctx, m, m.downPath, false); err != nil {
			return false, fmt.Errorf("rollback %s failed: %w", m, err)
		}
		r.logger.Info("migration rolled back", "version", m.Version, "name", m.Name)
		return true, nil
	}
	return false, fmt.Errorf("applied migration %s not found in source", last.Version)
}

// run executes one script and updates schema_migrations in the same transaction.
func (r *Runner) run(ctx context.Context, m Migration, path string, up bool) error {
	content, err := fs.ReadFile(r.source, path)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return err
	}
	if up {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Status lists every known migration with its applied state.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	available, err := Load(r.source)
	if err != nil {
		return nil, err
	}
	return status(available, applied), nil
}

func status(available []Migration, applied []Record) []Status {
	at := make(map[string]time.Time, len(applied))
	for _, rec := range applied {
		at[rec.Version] = rec.AppliedAt
	}
	out := make([]Status, 0, len(available))
	for _, m := range available {
		s := Status{Migration: m}
		if t, ok := at[m.Version]; ok {
			s.Applied = true
			s.AppliedAt = &t
		}
		out = append(out, s)
	}
	return out
}
