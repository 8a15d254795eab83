package domain

import "context"

type BookingRepository interface {
	// Create assigns ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id string) (Booking, error)
	// MarkConfirmed unconditionally sets status=confirmed; repeating it is safe.
	MarkConfirmed(ctx context.Context, id string) error
}

type ReviewRepository interface {
	Create(ctx context.Context, r *Review) error
	Get(ctx context.Context, id string) (Review, error)
	SetApproved(ctx context.Context, id string, approved bool) error
	Delete(ctx context.Context, id string) error
	ListApproved(ctx context.Context, listingID string) ([]Review, error)
	ListApprovedPage(ctx context.Context, listingID string, pg PageQuery) (ReviewsPage, error)
}

type ListingRepository interface {
	Get(ctx context.Context, id string) (Listing, error)
	ListIDs(ctx context.Context) ([]string, error)
	// UpdateRating writes averageRating and reviewCount and nothing else.
	UpdateRating(ctx context.Context, id string, agg RatingAggregate) error
}

// RatingTx is implemented by stores that can read approved reviews and write
// the aggregate inside a single transaction.
type RatingTx interface {
	RecomputeTx(ctx context.Context, listingID string, compute func([]Review) RatingAggregate) (RatingAggregate, error)
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	// ParseEvent verifies the signature header against the payload. A verification
	// failure wraps ErrAuthentication.
	ParseEvent(payload []byte, signature string) (PaymentEvent, error)
}

type Notifier interface {
	NotifyBookingCreated(ctx context.Context, b Booking) error
	NotifyBookingConfirmed(ctx context.Context, b Booking) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
	// Incr atomically bumps an integer counter and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
}

type PageQuery struct {
	Limit  int
	Cursor *string
	Sort   string
}

type ReviewsPage struct {
	Items      []Review `json:"items"`
	NextCursor *string  `json:"nextCursor,omitempty"`
}
