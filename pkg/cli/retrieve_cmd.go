package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	internaldb "gridbase/internal/db"
	"gridbase/internal/db/repository"
	"gridbase/internal/domain"
)

func newRetrieveCmd(dbPath *string) *cobra.Command {
	var (
		asUser     string
		maxResults int
		sortField  string
		sortDesc   bool
	)

	cmd := &cobra.Command{
		Use:   "retrieve <table-id>",
		Short: "Retrieve records from a table as a given user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, closer, err := openApp(*dbPath)
			if err != nil {
				return err
			}
			defer closer()

			ctx := domain.WithActor(cmd.Context(), domain.Actor{UserID: asUser})
			opts := domain.QueryOptions{
				Page: domain.PageRequest{MaxResults: maxResults},
			}
			if sortField != "" {
				opts.Sort = &domain.Sort{Field: sortField, Desc: sortDesc}
			}
			page, err := application.Records.Retrieve(ctx, args[0], opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, page)
		},
	}
	cmd.Flags().StringVar(&asUser, "as", "", "user id to act as")
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum rows to return")
	cmd.Flags().StringVar(&sortField, "sort", "", "field to sort by")
	cmd.Flags().BoolVar(&sortDesc, "desc", false, "sort descending")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func newGrantsCmd(dbPath *string) *cobra.Command {
	var asUser string

	cmd := &cobra.Command{
		Use:   "grants <table-id>",
		Short: "List the scoped grants on a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, closer, err := openApp(*dbPath)
			if err != nil {
				return err
			}
			defer closer()

			ctx := domain.WithActor(cmd.Context(), domain.Actor{UserID: asUser})
			grants, err := application.Grants.ListGrants(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, grants)
		},
	}
	cmd.Flags().StringVar(&asUser, "as", "", "user id to act as")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func newBasesCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bases",
		Short: "List all bases in the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			writeDB, readDB, err := internaldb.OpenSQLitePair(*dbPath, 1)
			if err != nil {
				return err
			}
			defer writeDB.Close()
			defer readDB.Close()

			repo := repository.NewBaseRepo(readDB)
			bases, total, err := repo.List(cmd.Context(), domain.PageRequest{})
			if err != nil {
				return err
			}
			for _, b := range bases {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", b.ID, b.Name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total: %d\n", total)
			return nil
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
