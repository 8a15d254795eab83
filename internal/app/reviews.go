package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"tour_booking/internal/domain"
)

// ReviewService handles public submission and admin moderation of reviews.
// Every moderation action that changes the approved set is followed by a
// full recompute of the parent listing's rating.
type ReviewService struct {
	reviews    domain.ReviewRepository
	listings   domain.ListingRepository
	aggregator *RatingAggregator
}

func NewReviewService(r domain.ReviewRepository, l domain.ListingRepository, agg *RatingAggregator) *ReviewService {
	return &ReviewService{reviews: r, listings: l, aggregator: agg}
}

// Submit stores a new, unapproved review. It does not touch the aggregate.
func (s *ReviewService) Submit(ctx context.Context, listingID string, in domain.ReviewInput) (domain.Review, error) {
	in.AuthorName = strings.TrimSpace(in.AuthorName)
	in.Text = strings.TrimSpace(in.Text)
	if err := validateReview(in); err != nil {
		return domain.Review{}, err
	}
	if _, err := s.listings.Get(ctx, listingID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Review{}, fmt.Errorf("listing %s: %w", listingID, err)
		}
		return domain.Review{}, persistenceErr("get listing", err)
	}

	r := domain.Review{
		ListingID:  listingID,
		AuthorName: in.AuthorName,
		Rating:     in.Rating,
		Text:       in.Text,
		IsApproved: false,
	}
	if err := s.reviews.Create(ctx, &r); err != nil {
		return domain.Review{}, persistenceErr("create review", err)
	}
	log.Info().Str("review_id", r.ID).Str("listing_id", listingID).Msg("review submitted")
	return r, nil
}

func (s *ReviewService) Approve(ctx context.Context, reviewID string) error {
	return s.SetApproval(ctx, reviewID, true)
}

// SetApproval flips the moderation flag (last write wins) and recomputes.
func (s *ReviewService) SetApproval(ctx context.Context, reviewID string, approved bool) error {
	r, err := s.get(ctx, reviewID)
	if err != nil {
		return err
	}
	if err := s.reviews.SetApproved(ctx, reviewID, approved); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return persistenceErr("set review approval", err)
	}
	log.Info().Str("review_id", reviewID).Bool("approved", approved).Msg("review moderated")

	s.refresh(ctx, r.ListingID, reviewID)
	return nil
}

// Remove deletes a review. The listing id is captured before the delete since
// it cannot be read afterwards.
func (s *ReviewService) Remove(ctx context.Context, reviewID string) error {
	r, err := s.get(ctx, reviewID)
	if err != nil {
		return err
	}
	listingID := r.ListingID

	if err := s.reviews.Delete(ctx, reviewID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return persistenceErr("delete review", err)
	}
	log.Info().Str("review_id", reviewID).Str("listing_id", listingID).Msg("review deleted")

	s.refresh(ctx, listingID, reviewID)
	return nil
}

func (s *ReviewService) get(ctx context.Context, reviewID string) (domain.Review, error) {
	r, err := s.reviews.Get(ctx, reviewID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Review{}, fmt.Errorf("review %s: %w", reviewID, err)
		}
		return domain.Review{}, persistenceErr("get review", err)
	}
	return r, nil
}

// refresh recomputes after a committed mutation. A failure leaves the cached
// aggregate stale; it is logged for reconciliation and the mutation stands.
func (s *ReviewService) refresh(ctx context.Context, listingID, reviewID string) {
	if _, err := s.aggregator.RecomputeForListing(ctx, listingID); err != nil {
		log.Error().
			Err(err).
			Str("listing_id", listingID).
			Str("review_id", reviewID).
			Bool("reconcile", true).
			Msg("rating aggregate is stale")
	}
}
