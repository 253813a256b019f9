package keeperctl

import (
	"fmt"

	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/repomanager"
	"github.com/spf13/cobra"
)

// NewMigrateCommand applies the system table migrations.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var driver, dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply system table migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, dialect, err := dbx.Open(driver, dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repomanager.NewSQLRepositoryManager(dialect).RunMigrations(cmd.Context(), db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return output(cmd, rootOpts, "migrations applied ("+dialect.Name()+")",
				map[string]string{"status": "ok", "dialect": dialect.Name()})
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "pgx", "database driver (pgx|sqlite)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "database DSN")
	_ = cmd.MarkFlagRequired("dsn")

	return cmd
}
