package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tour_booking/internal/domain"
)

const (
	DefaultReviewLimit = 50
	MaxReviewLimit     = 200
)

// QueryService serves the cached read side: listing ratings and approved review pages.
type QueryService struct {
	reviews  domain.ReviewRepository
	listings domain.ListingRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.ReviewRepository, l domain.ListingRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{reviews: r, listings: l, cache: c, cacheTTL: ttl}
}

// cacheKey resolves the versioned key for a listing view. The version is read
// before the store so a Set after a concurrent recompute lands on a retired key.
// An empty key means the cache is unavailable and the read goes straight to the store.
func (s *QueryService) cacheKey(ctx context.Context, listingID string, key func(ver int64) string) string {
	if s.cache == nil {
		return ""
	}
	ver, err := listingVersion(ctx, s.cache, listingID)
	if err != nil {
		return ""
	}
	return key(ver)
}

func (s *QueryService) GetRating(ctx context.Context, listingID string) (domain.RatingView, error) {
	key := s.cacheKey(ctx, listingID, func(ver int64) string { return ratingKey(listingID, ver) })
	var rv domain.RatingView
	if key != "" {
		if ok, _ := s.cache.Get(ctx, key, &rv); ok {
			return rv, nil
		}
	}

	l, err := s.listings.Get(ctx, listingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.RatingView{}, err
		}
		return domain.RatingView{}, persistenceErr("get listing", err)
	}
	agg := domain.RatingAggregate{AverageRating: l.AverageRating, ReviewCount: l.ReviewCount}
	rv = domain.RatingView{
		ListingID:            l.ID,
		AverageRating:        agg.AverageRating,
		AverageRatingDisplay: agg.Rounded(),
		ReviewCount:          agg.ReviewCount,
	}
	if key != "" {
		_ = s.cache.Set(ctx, key, rv, int(s.cacheTTL.Seconds()))
	}
	return rv, nil
}

func (s *QueryService) ListReviews(ctx context.Context, listingID string, pg domain.PageQuery) (domain.ReviewsPage, error) {
	key := s.cacheKey(ctx, listingID, func(ver int64) string { return reviewsKey(listingID, ver, pg) })
	var out domain.ReviewsPage
	if key != "" {
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}

	rs, err := s.reviews.ListApprovedPage(ctx, listingID, pg)
	if err != nil {
		return domain.ReviewsPage{}, persistenceErr("list reviews", err)
	}

	// copy slice to avoid aliasing the repo's backing array
	copyRS := deepCopyReviewsPage(rs)

	if key != "" {
		if b, _ := json.Marshal(copyRS); len(b) < 1_000_000 {
			_ = s.cache.Set(ctx, key, copyRS, int(s.cacheTTL.Seconds()))
		}
	}
	return copyRS, nil
}

func deepCopyReviewsPage(in domain.ReviewsPage) domain.ReviewsPage {
	out := domain.ReviewsPage{NextCursor: in.NextCursor}
	if n := len(in.Items); n > 0 {
		out.Items = make([]domain.Review, n)
		copy(out.Items, in.Items)
	}
	return out
}
