package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	internaldb "gridbase/internal/db"
)

func newMigrateCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			writeDB, readDB, err := internaldb.OpenSQLitePair(*dbPath, 1)
			if err != nil {
				return err
			}
			defer writeDB.Close()
			defer readDB.Close()

			if err := internaldb.RunMigrations(writeDB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newSeedCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo fixture into an empty database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, closer, err := openApp(*dbPath)
			if err != nil {
				return err
			}
			defer closer()

			if err := application.Seed(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "seeded")
			return nil
		},
	}
}
