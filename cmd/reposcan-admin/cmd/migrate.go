package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/openctemio/reposcan/internal/config"
	"github.com/openctemio/reposcan/internal/infra/postgres"
	"github.com/openctemio/reposcan/pkg/migrations"
)

var flagDatabaseURL string

func newMigrateCommand() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Applies the SQL migrations embedded in this binary. The connection comes
from --database-url or, when unset, the DB_* environment variables the
server reads.`,
	}
	migrate.PersistentFlags().StringVar(&flagDatabaseURL, "database-url", "", "PostgreSQL URL (env: DATABASE_URL)")

	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(ctx context.Context, cmd *cobra.Command, r *migrations.Runner) error {
			n, err := r.Up(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", n)
			return nil
		}),
	})
	migrate.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(ctx context.Context, cmd *cobra.Command, r *migrations.Runner) error {
			rolledBack, err := r.Down(ctx)
			if err != nil {
				return err
			}
			if !rolledBack {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back 1 migration")
			return nil
		}),
	})
	migrate.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(ctx context.Context, cmd *cobra.Command, r *migrations.Runner) error {
			statuses, err := r.Status(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := render(out, statuses); done {
				return err
			}
			t := newTable(out, "MIGRATION", "APPLIED", "APPLIED AT")
			for _, s := range statuses {
				appliedAt := "-"
				if s.AppliedAt != nil {
					appliedAt = s.AppliedAt.Format(time.RFC3339)
				}
				t.AddRow(s.Migration.String(), fmt.Sprint(s.Applied), appliedAt)
			}
			return t.Flush()
		}),
	})
	return migrate
}

type runnerFunc func(ctx context.Context, cmd *cobra.Command, r *migrations.Runner) error

// withRunner opens the database for the duration of one command.
func withRunner(fn runnerFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		dsn := flagDatabaseURL
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		if dsn == "" {
			dbCfg := config.LoadDatabase()
			dsn = dbCfg.DSN()
		}

		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
		return fn(ctx, cmd, migrations.NewRunner(db, postgres.Migrations(), log))
	}
}
