package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menta2k/waste-sorter/pkg/types"
)

func newSearchCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Show disposal guidance for an item",
		Long: `Looks the query up by exact name or alias, then by substring, and finally
suggests the closest item names when nothing matches directly.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.newSorter(false)
			if err != nil {
				return err
			}
			g := s.Search(strings.Join(args, " "))
			if asJSON {
				return printJSON(cmd.OutOrStdout(), g)
			}
			writeGuidance(cmd.OutOrStdout(), g)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newSuggestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest [text]",
		Short: "List item names containing text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.newSorter(false)
			if err != nil {
				return err
			}
			for _, name := range s.Suggest(strings.Join(args, " ")) {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newMaterialCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "material [description]",
		Short: "Classify a free-text description by material",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.newSorter(false)
			if err != nil {
				return err
			}
			m, ok := s.ClassifyText(strings.Join(args, " "))
			if !ok {
				return fmt.Errorf("no materials file available at %s", a.cfg.Catalog.MaterialsPath)
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
}

func writeGuidance(w io.Writer, g types.Guidance) {
	switch {
	case g.Item != nil:
		it := g.Item
		fmt.Fprintf(w, "Name:         %s\n", it.Name)
		fmt.Fprintf(w, "Type:         %s\n", it.Type)
		fmt.Fprintf(w, "3R tip:       %s\n", it.ThreeRTip)
		fmt.Fprintf(w, "Disposal:     %s\n", it.Disposal)
		if it.Toxicity != "" {
			fmt.Fprintf(w, "Toxicity:     %s\n", it.Toxicity)
		}
		if len(it.Alternatives) > 0 {
			fmt.Fprintf(w, "Alternatives: %s\n", strings.Join(it.Alternatives, ", "))
		}
		if it.HandlingPrecautions != "" {
			fmt.Fprintf(w, "Handling:     %s\n", it.HandlingPrecautions)
		}
	case len(g.Similar) > 0:
		names := make([]string, len(g.Similar))
		for i, it := range g.Similar {
			names[i] = it.Name
		}
		fmt.Fprintf(w, "No match for %q. Did you mean: %s?\n", g.Query, strings.Join(names, ", "))
	default:
		fmt.Fprintf(w, "No match for %q.\n", g.Query)
	}
}
