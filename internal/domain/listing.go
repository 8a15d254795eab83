package domain

import "math"

// Listing is the subset of the bookable product this service reads.
// Everything except the aggregate fields is owned by the catalog.
type Listing struct {
	ID            string
	Title         string
	PricePerGuest int64 // minor units
	Currency      string
	AverageRating float64
	ReviewCount   int
}

// RatingAggregate is the denormalized rating cache stored on a listing.
// Reviews are the source of truth; this value is always recomputed from them.
type RatingAggregate struct {
	AverageRating float64 `json:"averageRating"`
	ReviewCount   int     `json:"reviewCount"`
}

// Rounded returns the average rounded to one decimal, for display only.
func (a RatingAggregate) Rounded() float64 {
	return math.Round(a.AverageRating*10) / 10
}

type RatingView struct {
	ListingID            string  `json:"listingId"`
	AverageRating        float64 `json:"averageRating"`
	AverageRatingDisplay float64 `json:"averageRatingDisplay"`
	ReviewCount          int     `json:"reviewCount"`
}
