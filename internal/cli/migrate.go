package cli

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/cassiomorais/posqueue/internal/infrastructure/config"
	"github.com/cassiomorais/posqueue/internal/repository/postgres"
	"github.com/cassiomorais/posqueue/internal/repository/sqlite"
	"github.com/spf13/cobra"
)

// MigrateResult is the schema state after a migrate command.
type MigrateResult struct {
	Driver  string `json:"driver"`
	Version uint   `json:"version"`
	Dirty   bool   `json:"dirty"`
}

// NewMigrateCommand manages the durable store schema directly, without a
// running daemon.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the durable store schema",
		Long: `Apply, roll back or inspect the schema of the configured store.

"serve" applies pending migrations on start; use this to prepare a store
ahead of time or to inspect it.`,
	}

	steps := []struct {
		use, short string
		sqliteStep func(*sql.DB) error
		pgStep     func(string) error
	}{
		{"up", "Apply all pending migrations", sqlite.Migrate, postgres.Migrate},
		{"down", "Roll back every migration", sqlite.MigrateDown, postgres.MigrateDown},
		{"version", "Show the applied schema version", nil, nil},
	}
	for _, s := range steps {
		s := s
		cmd.AddCommand(&cobra.Command{
			Use:           s.use,
			Short:         s.short,
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd, rootOpts, s.sqliteStep, s.pgStep)
			},
		})
	}

	return cmd
}

func runMigrate(cmd *cobra.Command, opts *RootOptions, sqliteStep func(*sql.DB) error, pgStep func(string) error) error {
	f := opts.formatter(cmd)

	cfg, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		f.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load config", err)
	}

	res := MigrateResult{Driver: cfg.Store.Driver}
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		f.VerboseLog("sqlite store: %s", cfg.Store.Path)
		var db *sql.DB
		db, err = sqlite.OpenDB(cmd.Context(), cfg.Store.Path, cfg.Store.BusyTimeout)
		if err != nil {
			return migrateFailed(f, err)
		}
		defer db.Close()
		if sqliteStep != nil {
			if err := sqliteStep(db); err != nil {
				return migrateFailed(f, err)
			}
		}
		res.Version, res.Dirty, err = sqlite.Version(db)
	case config.StoreDriverPostgres:
		url := cfg.Database.DatabaseURL()
		f.VerboseLog("postgres store: %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
		if pgStep != nil {
			if err := pgStep(url); err != nil {
				return migrateFailed(f, err)
			}
		}
		res.Version, res.Dirty, err = postgres.Version(url)
	default:
		return f.Invalid(fmt.Sprintf("store driver %q has no schema", cfg.Store.Driver))
	}
	if err != nil {
		return migrateFailed(f, err)
	}

	return f.Success(res, func(w io.Writer) error {
		state := ""
		if res.Dirty {
			state = " (dirty)"
		}
		_, err := fmt.Fprintf(w, "Schema version %d%s on %s\n", res.Version, state, res.Driver)
		return err
	})
}

func migrateFailed(f *OutputFormatter, err error) error {
	f.Error("migration_failed", err.Error(), nil)
	return WrapExitError(ExitFailure, "migrate", err)
}
