package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menta2k/waste-sorter/internal/server"
	"github.com/menta2k/waste-sorter/pkg/catalog"
	"github.com/menta2k/waste-sorter/pkg/store"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	var noStore bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := a.newSorter(true)
			if err != nil {
				return err
			}

			var st *store.Store
			if !noStore {
				st, err = a.prepareStore(ctx)
				if err != nil {
					return err
				}
				defer st.Close()

				if cats, err := st.Categories(ctx); err == nil {
					s.SetCategories(cats)
				}
			}

			return server.New(a.cfg.Server, s, st, a.logger).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "serve without the item store")
	return cmd
}

// prepareStore opens the store and seeds it on first use.
func (a *app) prepareStore(ctx context.Context) (*store.Store, error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	n, err := st.LoadItemsFromJSON(ctx, a.cfg.Store.SeedFile)
	switch {
	case errors.Is(err, store.ErrSeedFileMissing):
		a.logger.Warn("seed file not found, store left as is", zap.String("path", a.cfg.Store.SeedFile))
	case err != nil:
		st.Close()
		return nil, err
	case n > 0:
		a.logger.Info("store seeded", zap.Int("items", n))
	}

	cats, err := st.Categories(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}
	if len(cats) == 0 {
		if err := st.SeedCategories(ctx, catalog.DefaultCategories()); err != nil {
			st.Close()
			return nil, err
		}
	}
	return st, nil
}
