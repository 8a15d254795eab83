package app_test

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tour_booking/internal/app"
	"tour_booking/internal/domain"
)

func TestReconcileRatings_RepairsStaleAggregates(t *testing.T) {
	st := newMemStore()
	for _, id := range []string{"L1", "L2", "L3"} {
		// stale values the reconcile has to overwrite
		st.addListing(domain.Listing{ID: id, AverageRating: 1, ReviewCount: 99})
	}
	st.addReview("L1", 5, true)
	st.addReview("L1", 4, true)
	st.addReview("L2", 2, false)

	cache := &fakeCache{}
	agg := app.NewRatingAggregator(reviewRepo{st}, listingRepo{st}, cache)

	rep, err := app.ReconcileRatings(context.Background(), listingRepo{st}, agg, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Listings)
	assert.Equal(t, 3, rep.OK)
	assert.Empty(t, rep.Failed)

	assert.Equal(t, 4.5, st.listing("L1").AverageRating)
	assert.Equal(t, 2, st.listing("L1").ReviewCount)
	assert.Equal(t, 0, st.listing("L2").ReviewCount)
	assert.Equal(t, 0.0, st.listing("L3").AverageRating)
}

func TestReconcileRatings_SelectedAndFailures(t *testing.T) {
	st := newMemStore()
	st.addListing(domain.Listing{ID: "L1"})
	agg := app.NewRatingAggregator(reviewRepo{st}, listingRepo{st}, nil)

	rep, err := app.ReconcileRatings(context.Background(), listingRepo{st}, agg, []string{"L1", "ghost", "nope"}, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Listings)
	assert.Equal(t, 1, rep.OK)
	sort.Strings(rep.Failed)
	assert.Equal(t, []string{"ghost", "nope"}, rep.Failed)
}

func TestReconcileRatings_CancelledContext(t *testing.T) {
	st := newMemStore()
	st.addListing(domain.Listing{ID: "L1"})
	agg := app.NewRatingAggregator(reviewRepo{st}, listingRepo{st}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := app.ReconcileRatings(ctx, listingRepo{st}, agg, nil, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
