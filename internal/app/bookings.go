package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tour_booking/internal/adapters/observability"
	"tour_booking/internal/domain"
)

// BookingOrchestrator owns the booking lifecycle: pending creation, checkout
// session creation and webhook-driven confirmation.
type BookingOrchestrator struct {
	bookings domain.BookingRepository
	listings domain.ListingRepository
	gateway  domain.PaymentGateway
	notifier domain.Notifier

	// in-flight notifications, drained by Wait
	wg sync.WaitGroup
}

func NewBookingOrchestrator(
	b domain.BookingRepository,
	l domain.ListingRepository,
	g domain.PaymentGateway,
	n domain.Notifier,
) *BookingOrchestrator {
	return &BookingOrchestrator{bookings: b, listings: l, gateway: g, notifier: n}
}

// CreateBooking validates the request and stores it as a pending booking.
// Nothing is written when validation fails.
func (s *BookingOrchestrator) CreateBooking(ctx context.Context, in domain.BookingInput) (domain.Booking, error) {
	in = normalizeBooking(in)
	if err := validateBooking(in); err != nil {
		observability.ObserveBooking("rejected")
		return domain.Booking{}, err
	}

	b := domain.Booking{
		ListingID:    in.ListingID,
		ListingTitle: in.ListingTitle,
		Customer:     in.Customer,
		Date:         in.Date,
		Guests:       in.Guests,
		Notes:        in.Notes,
		Status:       domain.BookingStatusPending,
	}
	if err := s.bookings.Create(ctx, &b); err != nil {
		return domain.Booking{}, persistenceErr("create booking", err)
	}

	observability.ObserveBooking("created")
	log.Info().
		Str("booking_id", b.ID).
		Str("listing_id", b.ListingID).
		Str("date", b.Date).
		Uint("guests", b.Guests.Total).
		Msg("booking created")

	s.dispatch(ctx, b, "created", s.notifyCreated)
	return b, nil
}

func (s *BookingOrchestrator) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	b, err := s.bookings.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Booking{}, err
		}
		return domain.Booking{}, persistenceErr("get booking", err)
	}
	return b, nil
}

// StartCheckout opens a hosted checkout session for a pending booking. The
// booking id travels in the session metadata so the webhook can find it again.
func (s *BookingOrchestrator) StartCheckout(ctx context.Context, bookingID string) (domain.CheckoutSession, error) {
	b, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	if b.Status != domain.BookingStatusPending {
		return domain.CheckoutSession{}, fmt.Errorf("%w: booking %s is %s", domain.ErrBookingNotPending, b.ID, b.Status)
	}

	l, err := s.listings.Get(ctx, b.ListingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.CheckoutSession{}, fmt.Errorf("listing %s: %w", b.ListingID, err)
		}
		return domain.CheckoutSession{}, persistenceErr("get listing", err)
	}

	title := l.Title
	if title == "" {
		title = b.ListingTitle
	}
	sess, err := s.gateway.CreateCheckoutSession(ctx, domain.CheckoutRequest{
		BookingID:     b.ID,
		ListingTitle:  title,
		CustomerEmail: b.Customer.Email,
		Currency:      l.Currency,
		UnitAmount:    l.PricePerGuest,
		Quantity:      int64(b.Guests.Total),
	})
	if err != nil {
		if !errors.Is(err, domain.ErrGateway) {
			err = fmt.Errorf("%w: %w", domain.ErrGateway, err)
		}
		return domain.CheckoutSession{}, err
	}

	log.Info().Str("booking_id", b.ID).Str("session_id", sess.ID).Msg("checkout session created")
	return sess, nil
}

// ConfirmFromPaymentEvent is the webhook boundary. It returns ErrAuthentication
// for payloads that fail signature verification and ErrPersistence when the
// gateway should redeliver. Everything else is acknowledged with a nil error.
func (s *BookingOrchestrator) ConfirmFromPaymentEvent(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		observability.ObserveWebhook("", "rejected")
		log.Warn().Err(err).Msg("payment event failed verification")
		if !errors.Is(err, domain.ErrAuthentication) {
			err = fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
		}
		return err
	}
	return s.ApplyPaymentEvent(ctx, ev)
}

// ApplyPaymentEvent applies an already verified event. Duplicate deliveries are no-ops.
func (s *BookingOrchestrator) ApplyPaymentEvent(ctx context.Context, ev domain.PaymentEvent) error {
	l := log.With().Str("event_id", ev.ID).Str("event_type", ev.Type).Logger()

	if ev.Type != domain.PaymentEventCheckoutCompleted {
		observability.ObserveWebhook(ev.Type, "ignored")
		l.Info().Msg("payment event ignored")
		return nil
	}
	if ev.BookingID == "" {
		observability.ObserveWebhook(ev.Type, "no_correlation")
		l.Warn().Msg("payment event has no booking id in metadata")
		return nil
	}
	l = l.With().Str("booking_id", ev.BookingID).Logger()

	b, err := s.bookings.Get(ctx, ev.BookingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			observability.ObserveWebhook(ev.Type, "unknown_booking")
			l.Warn().Msg("payment event for unknown booking")
			return nil
		}
		observability.ObserveWebhook(ev.Type, "error")
		return persistenceErr("load booking for confirmation", err)
	}

	switch b.Status {
	case domain.BookingStatusConfirmed:
		observability.ObserveWebhook(ev.Type, "duplicate")
		observability.ObserveBooking("duplicate")
		l.Info().Msg("booking already confirmed")
		return nil
	case domain.BookingStatusCancelled:
		observability.ObserveWebhook(ev.Type, "cancelled")
		l.Warn().Msg("payment completed for a cancelled booking; left unchanged")
		return nil
	}

	if err := s.bookings.MarkConfirmed(ctx, b.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			observability.ObserveWebhook(ev.Type, "unknown_booking")
			l.Warn().Msg("booking disappeared before confirmation")
			return nil
		}
		observability.ObserveWebhook(ev.Type, "error")
		l.Error().Err(err).Msg("confirm booking failed")
		return persistenceErr("confirm booking", err)
	}

	b.Status = domain.BookingStatusConfirmed
	b.UpdatedAt = time.Now().UTC()
	observability.ObserveWebhook(ev.Type, "confirmed")
	observability.ObserveBooking("confirmed")
	l.Info().Msg("booking confirmed")

	s.dispatch(ctx, b, "confirmed", s.notifyConfirmed)
	return nil
}

// Wait blocks until every fire-and-forget notification has finished.
func (s *BookingOrchestrator) Wait() { s.wg.Wait() }

func (s *BookingOrchestrator) notifyCreated(ctx context.Context, b domain.Booking) error {
	return s.notifier.NotifyBookingCreated(ctx, b)
}

func (s *BookingOrchestrator) notifyConfirmed(ctx context.Context, b domain.Booking) error {
	return s.notifier.NotifyBookingConfirmed(ctx, b)
}

// dispatch runs fn detached from the request; a failure is only logged.
func (s *BookingOrchestrator) dispatch(ctx context.Context, b domain.Booking, kind string, fn func(context.Context, domain.Booking) error) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("booking_id", b.ID).Msg("notifier panicked")
			}
		}()
		if err := fn(ctx, b); err != nil {
			if !errors.Is(err, domain.ErrNotification) {
				err = fmt.Errorf("%w: %w", domain.ErrNotification, err)
			}
			log.Error().Err(err).Str("booking_id", b.ID).Str("kind", kind).Msg("booking notification failed")
		}
	}()
}

func persistenceErr(op string, err error) error {
	if errors.Is(err, domain.ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}
