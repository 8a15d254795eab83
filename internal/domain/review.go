package domain

import "time"

type Review struct {
	ID         string    `json:"id"`
	ListingID  string    `json:"listingId"`
	AuthorName string    `json:"authorName"`
	Rating     float64   `json:"rating"` // 0..5 in steps of 0.5
	Text       string    `json:"text"`
	IsApproved bool      `json:"isApproved"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ReviewInput is a public review submission. It is stored unapproved.
type ReviewInput struct {
	AuthorName string  `validate:"required"`
	Rating     float64 `validate:"gte=0,lte=5"`
	Text       string  `validate:"required"`
}
