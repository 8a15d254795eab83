package domain

import "errors"

var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication failed")
	ErrNotFound       = errors.New("not found")
	ErrPersistence    = errors.New("persistence failure")
	ErrNotification   = errors.New("notification failed")
)

var (
	ErrBookingNotPending = errors.New("booking is not in pending status")
	ErrGateway           = errors.New("payment gateway failure")
)
