package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"tour_booking/internal/adapters/observability"
	"tour_booking/internal/domain"
)

// RatingAggregator keeps a listing's cached averageRating/reviewCount in line
// with its approved reviews. It always recomputes from the full review set and
// never adjusts the stored numbers incrementally.
type RatingAggregator struct {
	reviews  domain.ReviewRepository
	listings domain.ListingRepository
	cache    domain.Cache
}

func NewRatingAggregator(r domain.ReviewRepository, l domain.ListingRepository, c domain.Cache) *RatingAggregator {
	return &RatingAggregator{reviews: r, listings: l, cache: c}
}

// Aggregate computes the rating over the approved reviews in rs.
// Unapproved entries are skipped.
func Aggregate(rs []domain.Review) domain.RatingAggregate {
	var (
		sum float64
		n   int
	)
	for _, r := range rs {
		if !r.IsApproved {
			continue
		}
		sum += r.Rating
		n++
	}
	if n == 0 {
		return domain.RatingAggregate{}
	}
	return domain.RatingAggregate{AverageRating: sum / float64(n), ReviewCount: n}
}

// RecomputeForListing reads the approved reviews and writes the two aggregate
// fields back to the listing. Stores that support it do both in one transaction.
func (a *RatingAggregator) RecomputeForListing(ctx context.Context, listingID string) (domain.RatingAggregate, error) {
	agg, err := a.recompute(ctx, listingID)
	observability.ObserveRecompute(err)
	if err != nil {
		return domain.RatingAggregate{}, fmt.Errorf("recompute rating for listing %s: %w", listingID, err)
	}

	log.Debug().
		Str("listing_id", listingID).
		Float64("average_rating", agg.AverageRating).
		Int("review_count", agg.ReviewCount).
		Msg("rating recomputed")

	if a.cache != nil {
		invalidateListing(ctx, a.cache, listingID)
	}
	return agg, nil
}

func (a *RatingAggregator) recompute(ctx context.Context, listingID string) (domain.RatingAggregate, error) {
	if tx, ok := a.listings.(domain.RatingTx); ok {
		return tx.RecomputeTx(ctx, listingID, Aggregate)
	}

	rs, err := a.reviews.ListApproved(ctx, listingID)
	if err != nil {
		return domain.RatingAggregate{}, err
	}
	agg := Aggregate(rs)
	if err := a.listings.UpdateRating(ctx, listingID, agg); err != nil {
		return domain.RatingAggregate{}, err
	}
	return agg, nil
}

// Cache keys carry a per-listing version. A recompute bumps the version, so
// every view cached before it (any page size, any cursor) stops being read,
// and a read that raced the recompute can only fill a key nobody asks for.
func versionKey(listingID string) string { return "ver:" + listingID }

func ratingKey(listingID string, ver int64) string {
	return fmt.Sprintf("rating:%s:v%d", listingID, ver)
}

func reviewsKey(listingID string, ver int64, pg domain.PageQuery) string {
	cursor := ""
	if pg.Cursor != nil {
		cursor = *pg.Cursor
	}
	return fmt.Sprintf("reviews:%s:v%d:%d:%s:%s", listingID, ver, pg.Limit, pg.Sort, cursor)
}

// listingVersion returns the current cache version; a missing counter is 0.
func listingVersion(ctx context.Context, c domain.Cache, listingID string) (int64, error) {
	var v int64
	if _, err := c.Get(ctx, versionKey(listingID), &v); err != nil {
		return 0, err
	}
	return v, nil
}

// invalidateListing retires every cached view of the listing.
func invalidateListing(ctx context.Context, c domain.Cache, listingID string) {
	if _, err := c.Incr(ctx, versionKey(listingID)); err != nil {
		log.Warn().Err(err).Str("listing_id", listingID).Msg("bump cache version failed")
	}
}
