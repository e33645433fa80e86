package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gre/ledger-api-countervalue/internal/core/service/refresh"
)

const statsConcurrency = 8

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Recompute derived statistics for every stored pair exchange",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Shutdown()

		ctx, cancel := signalContext()
		defer cancel()

		store := app.Store()
		ids, err := store.QueryPairExchangeIDs(ctx)
		if err != nil {
			return err
		}
		slog.Info("Batch stats starting", "pairs", len(ids))

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(statsConcurrency)
		for _, id := range ids {
			group.Go(func() error {
				record, err := store.QueryPairExchangeByID(groupCtx, id)
				if err != nil {
					return err
				}
				if record == nil {
					return nil
				}
				stats, ok := refresh.DeriveStats(record.HistoDaily, time.Now(), app.MinimalDays())
				if !ok {
					return nil
				}
				return store.UpdatePairExchangeStats(groupCtx, id, stats)
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
		slog.Info("Batch stats complete", "pairs", len(ids))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
