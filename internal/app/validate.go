package app

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"tour_booking/internal/domain"
)

var validate = validator.New()

// validationError flattens validator output into a single ErrValidation-wrapped error.
func validationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	fields := make([]string, 0, len(ves))
	for _, fe := range ves {
		fields = append(fields, fe.Namespace()+" "+fe.Tag())
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(fields, ", "))
}

func normalizeBooking(in domain.BookingInput) domain.BookingInput {
	in.ListingID = strings.TrimSpace(in.ListingID)
	in.ListingTitle = strings.TrimSpace(in.ListingTitle)
	in.Date = strings.TrimSpace(in.Date)
	in.Customer.Name = strings.TrimSpace(in.Customer.Name)
	in.Customer.Email = strings.TrimSpace(in.Customer.Email)
	in.Customer.Phone = strings.TrimSpace(in.Customer.Phone)
	return in
}

func validateBooking(in domain.BookingInput) error {
	if err := validate.Struct(in); err != nil {
		return validationError(err)
	}
	if _, err := time.Parse(domain.DateLayout, in.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrValidation)
	}
	return nil
}

func validateReview(in domain.ReviewInput) error {
	if err := validate.Struct(in); err != nil {
		return validationError(err)
	}
	// whole or half stars only
	if doubled := in.Rating * 2; doubled != math.Trunc(doubled) {
		return fmt.Errorf("%w: rating must be a multiple of 0.5", domain.ErrValidation)
	}
	return nil
}
