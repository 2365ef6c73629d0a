package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/waste-sorter/pkg/catalog"
)

func newSeedCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load items and categories into the store",
		Long: `Inserts the items of the seed file when the store holds no items yet, and
replaces the stored categories with the built-in compostable, recyclable and
trash streams.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = a.cfg.Store.SeedFile
			}
			ctx := cmd.Context()

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.LoadItemsFromJSON(ctx, file)
			if err != nil {
				return err
			}
			if err := st.SeedCategories(ctx, catalog.DefaultCategories()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d items into %s\n", n, st.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed file (defaults to store.seed_file)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [output.json]",
		Short: "Export stored items as a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.ExportToJSON(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d items to %s\n", n, args[0])
			return nil
		},
	}
}
