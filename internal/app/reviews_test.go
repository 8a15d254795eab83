package app_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tour_booking/internal/app"
	"tour_booking/internal/domain"
)

func newReviewService(st *memStore) *app.ReviewService {
	agg := app.NewRatingAggregator(reviewRepo{st}, listingRepo{st}, nil)
	return app.NewReviewService(reviewRepo{st}, listingRepo{st}, agg)
}

func TestApprove_RecomputesListing(t *testing.T) {
	st := newMemStore()
	st.addListing(domain.Listing{ID: "L1"})
	st.addReview("L1", 5, true)
	pending := st.addReview("L1", 2, false)
	svc := newReviewService(st)

	require.NoError(t, svc.Approve(context.Background(), pending))

	l := st.listing("L1")
	assert.Equal(t, 2, l.ReviewCount)
	assert.Equal(t, 3.5, l.AverageRating)
}

func TestSetApproval_FalseRemovesFromAggregate(t *testing.T) {
	st := newMemStore()
	st.addListing(domain.Listing{ID: "L1"})
	a := st.addReview("L1", 5, true)
	st.addReview("L1", 3, true)
	svc := newReviewService(st)

	require.NoError(t, svc.SetApproval(context.Background(), a, false))
	l := st.listing("L1")
	assert.Equal(t, 1, l.ReviewCount)
	assert.Equal(t, 3.0, l.AverageRating)
}

func TestRemove_RecomputesCapturedListing(t *testing.T) {
	st := newMemStore()
	st.addListing(domain.Listing{ID: "L1", AverageRating: 4, ReviewCount: 2})
	st.addListing(domain.Listing{ID: "L9", AverageRating: 2, ReviewCount: 1})
	gone := st.addReview("L1", 5, true)
	st.addReview("L1", 3, true)
	st.addReview("L9", 2, true)
	svc := newReviewService(st)

	require.NoError(t, svc.Remove(context.Background(), gone))

	_, err := reviewRepo{st}.Get(context.Background(), gone)
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.Listing{ID: "L1", AverageRating: 3, ReviewCount: 1}, st.listing("L1"))
	assert.Equal(t, 2.0, st.listing("L9").AverageRating, "other listings untouched")
	assert.Equal(t, 1, st.ratingWrites)
}

func TestRemove_Unknown(t *testing.T) {
	svc := newReviewService(newMemStore())
	err := svc.Remove(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestModeration_RecomputeFailureIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	st := newMemStore()
	st.addListing(domain.Listing{ID: "L1"})
	id := st.addReview("L1", 4, false)
	st.failRating = errStoreDown
	svc := newReviewService(st)

	require.NoError(t, svc.Approve(context.Background(), id))

	rv, err := reviewRepo{st}.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, rv.IsApproved, "the moderation action stands")
	assert.Contains(t, buf.String(), "rating aggregate is stale")
	assert.Contains(t, buf.String(), `"reconcile":true`)
}

func TestSubmit_StoresUnapproved(t *testing.T) {
	st := newMemStore()
	st.addListing(domain.Listing{ID: "L1", AverageRating: 0, ReviewCount: 0})
	svc := newReviewService(st)

	rv, err := svc.Submit(context.Background(), "L1", domain.ReviewInput{AuthorName: " Ana ", Rating: 4.5, Text: "Lovely"})
	require.NoError(t, err)
	assert.False(t, rv.IsApproved)
	assert.Equal(t, "Ana", rv.AuthorName)
	assert.Zero(t, st.ratingWrites, "unapproved reviews do not trigger a recompute")
}

func TestSubmit_Validation(t *testing.T) {
	st := newMemStore()
	st.addListing(domain.Listing{ID: "L1"})
	svc := newReviewService(st)
	ctx := context.Background()

	for _, in := range []domain.ReviewInput{
		{AuthorName: "", Rating: 4, Text: "x"},
		{AuthorName: "a", Rating: 4, Text: ""},
		{AuthorName: "a", Rating: 5.5, Text: "x"},
		{AuthorName: "a", Rating: -1, Text: "x"},
		{AuthorName: "a", Rating: 3.3, Text: "x"},
	} {
		_, err := svc.Submit(ctx, "L1", in)
		require.ErrorIs(t, err, domain.ErrValidation, "%+v", in)
	}

	_, err := svc.Submit(ctx, "missing", domain.ReviewInput{AuthorName: "a", Rating: 4, Text: "x"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
