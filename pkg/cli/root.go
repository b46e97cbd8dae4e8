// Package cli implements the gridbase command-line interface. Commands
// operate directly on a local database file, so the CLI works without a
// running server.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	_ "github.com/mattn/go-sqlite3"

	"gridbase/internal/app"
	"gridbase/internal/config"
	internaldb "gridbase/internal/db"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var dbPath string

	rootCmd := &cobra.Command{
		Use:           "gridbase",
		Short:         "Gridbase administration CLI",
		Long:          "Command-line interface for managing a local gridbase database.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "gridbase.sqlite", "path to the SQLite database file")

	rootCmd.AddCommand(newMigrateCmd(&dbPath))
	rootCmd.AddCommand(newSeedCmd(&dbPath))
	rootCmd.AddCommand(newBasesCmd(&dbPath))
	rootCmd.AddCommand(newRetrieveCmd(&dbPath))
	rootCmd.AddCommand(newGrantsCmd(&dbPath))
	return rootCmd
}

// openApp opens the database pair, runs migrations, and wires the app.
// The returned closer releases both pools.
func openApp(dbPath string) (*app.App, func(), error) {
	writeDB, readDB, err := internaldb.OpenSQLitePair(dbPath, 4)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		_ = writeDB.Close()
		_ = readDB.Close()
	}

	if err := internaldb.RunMigrations(writeDB); err != nil {
		closer()
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	application := app.New(app.Deps{
		Cfg:     &config.Config{DBPath: dbPath},
		WriteDB: writeDB,
		ReadDB:  readDB,
		Logger:  logger,
	})
	return application, closer, nil
}
