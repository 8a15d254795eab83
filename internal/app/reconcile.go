package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"tour_booking/internal/domain"
)

type ReconcileReport struct {
	Listings int
	OK       int
	Failed   []string
}

// ReconcileRatings recomputes the aggregate of every listing in ids (all
// listings when ids is empty) with at most workers recomputes in flight.
// It repairs aggregates and caches left stale by logged moderation failures.
func ReconcileRatings(ctx context.Context, listings domain.ListingRepository, agg *RatingAggregator, ids []string, workers int) (ReconcileReport, error) {
	if len(ids) == 0 {
		all, err := listings.ListIDs(ctx)
		if err != nil {
			return ReconcileReport{}, persistenceErr("list listings", err)
		}
		ids = all
	}
	if workers <= 0 {
		workers = 1
	}

	sem := semaphore.NewWeighted(int64(workers))
	var (
		wg     sync.WaitGroup
		ok     atomic.Int64
		mu     sync.Mutex
		failed []string
	)
	for _, id := range ids {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(listingID string) {
			defer wg.Done()
			defer sem.Release(1)

			if _, err := agg.RecomputeForListing(ctx, listingID); err != nil {
				log.Warn().Str("listing_id", listingID).Err(err).Msg("reconcile failed")
				mu.Lock()
				failed = append(failed, listingID)
				mu.Unlock()
				return
			}
			ok.Add(1)
		}(id)
	}
	wg.Wait()

	rep := ReconcileReport{Listings: len(ids), OK: int(ok.Load()), Failed: failed}
	log.Info().Int("listings", rep.Listings).Int("ok", rep.OK).Int("failed", len(rep.Failed)).Msg("reconcile completed")
	return rep, ctx.Err()
}
