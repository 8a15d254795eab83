package app_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tour_booking/internal/app"
	"tour_booking/internal/domain"
)

func TestRecompute_ScenarioApprovedOnly(t *testing.T) {
	st := newMemStore()
	st.addListing(domain.Listing{ID: "L2", Title: "Old Town Walk", AverageRating: 1.5, ReviewCount: 9})
	for _, r := range []float64{5, 4, 3} {
		st.addReview("L2", r, true)
	}
	st.addReview("L2", 1, false)

	agg := app.NewRatingAggregator(reviewRepo{st}, listingRepo{st}, nil)
	got, err := agg.RecomputeForListing(context.Background(), "L2")
	require.NoError(t, err)

	assert.Equal(t, domain.RatingAggregate{AverageRating: 4.0, ReviewCount: 3}, got)
	l := st.listing("L2")
	assert.Equal(t, 4.0, l.AverageRating)
	assert.Equal(t, 3, l.ReviewCount)
	assert.Equal(t, "Old Town Walk", l.Title, "only the aggregate fields are written")
}

func TestRecompute_EmptyIsZero(t *testing.T) {
	st := newMemStore()
	st.addListing(domain.Listing{ID: "L3", AverageRating: 4.2, ReviewCount: 5})
	st.addReview("L3", 2, false)

	agg := app.NewRatingAggregator(reviewRepo{st}, listingRepo{st}, nil)
	got, err := agg.RecomputeForListing(context.Background(), "L3")
	require.NoError(t, err)
	assert.Equal(t, domain.RatingAggregate{}, got)
	assert.Equal(t, domain.RatingAggregate{}, domain.RatingAggregate{
		AverageRating: st.listing("L3").AverageRating,
		ReviewCount:   st.listing("L3").ReviewCount,
	})
}

func TestAggregate_MatchesMeanOverApproved(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := rng.Intn(12)
		var (
			rs  []domain.Review
			sum float64
			cnt int
		)
		for j := 0; j < n; j++ {
			r := float64(rng.Intn(11)) / 2 // 0, 0.5 .. 5
			approved := rng.Intn(3) > 0
			rs = append(rs, domain.Review{Rating: r, IsApproved: approved})
			if approved {
				sum += r
				cnt++
			}
		}
		got := app.Aggregate(rs)
		require.Equal(t, cnt, got.ReviewCount)
		if cnt == 0 {
			require.Zero(t, got.AverageRating)
			continue
		}
		require.InDelta(t, sum/float64(cnt), got.AverageRating, 1e-9)
	}
}

func TestRatingAggregate_RoundedForDisplayOnly(t *testing.T) {
	a := app.Aggregate([]domain.Review{
		{Rating: 5, IsApproved: true}, {Rating: 4, IsApproved: true}, {Rating: 4, IsApproved: true},
	})
	assert.InDelta(t, 4.3333333, a.AverageRating, 1e-6)
	assert.Equal(t, 4.3, a.Rounded())
}

func TestRecompute_InvalidatesCache(t *testing.T) {
	st := newMemStore()
	st.addListing(domain.Listing{ID: "L4"})
	cache := &fakeCache{}
	agg := app.NewRatingAggregator(reviewRepo{st}, listingRepo{st}, cache)

	_, err := agg.RecomputeForListing(context.Background(), "L4")
	require.NoError(t, err)
	assert.Equal(t, []string{"ver:L4"}, cache.incrs)
}

func TestRecompute_WriteFailureSurfaces(t *testing.T) {
	st := newMemStore()
	st.addListing(domain.Listing{ID: "L5"})
	st.failRating = errStoreDown
	cache := &fakeCache{}
	agg := app.NewRatingAggregator(reviewRepo{st}, listingRepo{st}, cache)

	_, err := agg.RecomputeForListing(context.Background(), "L5")
	require.ErrorIs(t, err, errStoreDown)
	assert.Empty(t, cache.incrs, "cache untouched when nothing was written")
}

// txListings wraps listingRepo with a RatingTx implementation.
type txListings struct {
	listingRepo
	calls int
}

func (t *txListings) RecomputeTx(ctx context.Context, listingID string, compute func([]domain.Review) domain.RatingAggregate) (domain.RatingAggregate, error) {
	t.calls++
	rs, err := reviewRepo{t.memStore}.ListApproved(ctx, listingID)
	if err != nil {
		return domain.RatingAggregate{}, err
	}
	agg := compute(rs)
	return agg, t.UpdateRating(ctx, listingID, agg)
}

func TestRecompute_UsesTransactionWhenAvailable(t *testing.T) {
	st := newMemStore()
	st.addListing(domain.Listing{ID: "L6"})
	st.addReview("L6", 3, true)
	tx := &txListings{listingRepo: listingRepo{st}}

	agg := app.NewRatingAggregator(reviewRepo{st}, tx, nil)
	got, err := agg.RecomputeForListing(context.Background(), "L6")
	require.NoError(t, err)
	assert.Equal(t, 1, tx.calls)
	assert.Equal(t, domain.RatingAggregate{AverageRating: 3, ReviewCount: 1}, got)
}
