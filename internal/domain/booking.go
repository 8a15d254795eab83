package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// DateLayout is the calendar-date format used for Booking.Date.
const DateLayout = "2006-01-02"

type Customer struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required"`
	Phone string `json:"phone" validate:"required"`
}

// Guests.Total is expected to equal Adults+Children but that is not enforced.
type Guests struct {
	Adults   uint `json:"adults"`
	Children uint `json:"children"`
	Total    uint `json:"total" validate:"gt=0"`
}

type Booking struct {
	ID           string        `json:"id"`
	ListingID    string        `json:"listingId"`
	ListingTitle string        `json:"listingTitle"`
	Customer     Customer      `json:"customer"`
	Date         string        `json:"date"`
	Guests       Guests        `json:"guests"`
	Notes        string        `json:"notes,omitempty"`
	Status       BookingStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type BookingInput struct {
	ListingID    string `validate:"required"`
	ListingTitle string
	Date         string `validate:"required"`
	Guests       Guests
	Customer     Customer
	Notes        string
}

// CheckoutSession is what the payment gateway hands back for a booking.
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// CheckoutRequest carries everything the gateway needs to open a hosted checkout.
type CheckoutRequest struct {
	BookingID     string
	ListingTitle  string
	CustomerEmail string
	Currency      string
	UnitAmount    int64 // per guest, minor units
	Quantity      int64
}

const PaymentEventCheckoutCompleted = "checkout.session.completed"

// PaymentEvent is a verified gateway event reduced to what the orchestrator acts on.
type PaymentEvent struct {
	ID        string
	Type      string
	BookingID string // correlation id, empty when the event carries none
}
