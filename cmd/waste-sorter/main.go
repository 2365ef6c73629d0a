// Command waste-sorter answers disposal questions from the command line and
// serves the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	wastesorter "github.com/menta2k/waste-sorter"
	"github.com/menta2k/waste-sorter/internal/config"
	"github.com/menta2k/waste-sorter/internal/logging"
	"github.com/menta2k/waste-sorter/pkg/sorter"
	"github.com/menta2k/waste-sorter/pkg/store"
)

// app carries state shared by all subcommands.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "waste-sorter",
		Short: "Find out how to dispose of everyday waste",
		Long: `waste-sorter resolves typed queries and photos against a catalog of waste
items and reports how to reduce, reuse, recycle or dispose of them.

Configuration is read from ` + config.GetConfigPath() + ` (or --config),
then overridden by WASTE_SORTER_* environment variables and a local .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a.cfg = cfg

			level := cfg.Logging.Level
			if a.verbose {
				level = "debug"
			}
			a.logger, err = logging.New(level, cfg.Logging.Format)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (YAML)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(a),
		newSearchCmd(a),
		newSuggestCmd(a),
		newMaterialCmd(a),
		newClassifyImageCmd(a),
		newSeedCmd(a),
		newExportCmd(a),
		newAugmentCmd(a),
		newScaffoldCmd(a),
		newClassesCmd(a),
		newDatasetYAMLCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), wastesorter.GetVersion())
		},
	}
}

// newSorter builds a Sorter from the loaded config. Vision is only wired
// when withVision is set.
func (a *app) newSorter(withVision bool) (*sorter.Sorter, error) {
	backend := a.cfg.Vision.Backend
	if !withVision {
		backend = wastesorter.BackendNone
	}
	return wastesorter.New(wastesorter.Options{
		ItemsPath:     a.cfg.Catalog.ItemsPath,
		MaterialsPath: a.cfg.Catalog.MaterialsPath,
		Backend:       backend,
		URL:           a.cfg.Vision.URL,
		Sorter: sorter.Options{
			Model:       a.cfg.Vision.Model,
			Threshold:   a.cfg.Vision.Threshold,
			SendFormat:  a.cfg.Vision.SendFormat,
			SendMaxDim:  a.cfg.Vision.SendMaxDim,
			SendQuality: a.cfg.Vision.SendQuality,
			CacheTTL:    a.cfg.Vision.CacheTTL,
		},
		Logger: a.logger,
	})
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, a.cfg.Store.Path, store.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
