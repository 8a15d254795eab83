package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tour_booking/internal/adapters/observability"
	redisad "tour_booking/internal/adapters/redis"
	"tour_booking/internal/app"
	"tour_booking/internal/shared"
	"tour_booking/internal/storage"
)

var (
	workers  int
	listings []string
	noCache  bool
)

var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Recompute listing rating aggregates from approved reviews",
	Long: `Recomputes averageRating and reviewCount for every listing (or the ones
given with --listing) from the approved reviews, and drops the cached read
models. Use it to repair aggregates after a logged recompute failure.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent recomputes (default RECONCILE_WORKERS)")
	rootCmd.Flags().StringSliceVarP(&listings, "listing", "l", nil, "listing id to reconcile; repeatable")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "skip redis cache invalidation")
}

func run(cmd *cobra.Command, args []string) error {
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv)
	if workers <= 0 {
		workers = cfg.ReconcileWorkers
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("store", cfg.StoreDriver).
		Int("workers", workers).
		Strs("listings", listings).
		Msg("reconciler starting")

	stores, err := storage.Open(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer stores.Close()

	var agg *app.RatingAggregator
	if noCache {
		agg = app.NewRatingAggregator(stores.Reviews, stores.Listings, nil)
	} else {
		cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer cache.Close()
		agg = app.NewRatingAggregator(stores.Reviews, stores.Listings, cache)
	}

	rep, err := app.ReconcileRatings(ctx, stores.Listings, agg, listings, workers)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reconciled %d/%d listings\n", rep.OK, rep.Listings)
	if len(rep.Failed) > 0 {
		return fmt.Errorf("%d listings failed: %v", len(rep.Failed), rep.Failed)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
