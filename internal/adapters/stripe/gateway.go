// Package stripead adapts Stripe hosted checkout to domain.PaymentGateway.
// Card data never reaches this service: it only opens sessions and verifies
// the signed webhook events Stripe sends back.
package stripead

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"tour_booking/internal/adapters/observability"
	"tour_booking/internal/domain"
)

// MetadataBookingID is the session metadata key carrying the correlation id.
const MetadataBookingID = "bookingId"

const defaultTolerance = 5 * time.Minute

type sessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type Gateway struct {
	sessions      sessionCreator
	webhookSecret string
	successURL    string
	cancelURL     string
	tolerance     time.Duration
}

type Option func(*Gateway)

// WithTolerance overrides the accepted age of a webhook signature timestamp.
func WithTolerance(d time.Duration) Option { return func(g *Gateway) { g.tolerance = d } }

func withSessions(s sessionCreator) Option { return func(g *Gateway) { g.sessions = s } }

func New(secretKey, webhookSecret, successURL, cancelURL string, opts ...Option) (*Gateway, error) {
	if webhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook signing secret is required")
	}
	g := &Gateway{
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
		tolerance:     defaultTolerance,
	}
	for _, o := range opts {
		o(g)
	}
	if g.sessions == nil {
		if secretKey == "" {
			return nil, fmt.Errorf("stripe secret key is required")
		}
		g.sessions = client.New(secretKey, nil).CheckoutSessions
	}
	return g, nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	if req.UnitAmount <= 0 || req.Quantity <= 0 {
		return domain.CheckoutSession{}, fmt.Errorf("%w: nothing to charge for booking %s", domain.ErrGateway, req.BookingID)
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "usd"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(req.BookingID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ListingTitle),
				},
				UnitAmount: stripe.Int64(req.UnitAmount),
			},
			Quantity: stripe.Int64(req.Quantity),
		}},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata(MetadataBookingID, req.BookingID)
	params.Context = ctx

	start := time.Now()
	s, err := g.sessions.New(params)
	observability.ObserveExternal("stripe", "checkout_sessions", statusOf(err), time.Since(start))
	if err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("%w: create checkout session: %w", domain.ErrGateway, err)
	}
	return domain.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// ParseEvent verifies the Stripe-Signature header and extracts the booking id
// from checkout session events.
func (g *Gateway) ParseEvent(payload []byte, signature string) (domain.PaymentEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                g.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
	}

	out := domain.PaymentEvent{ID: ev.ID, Type: string(ev.Type)}
	if !strings.HasPrefix(out.Type, "checkout.session.") || ev.Data == nil {
		return out, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		// authentic but unreadable: acknowledge without a correlation id
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("decode checkout session failed")
		return out, nil
	}
	out.BookingID = cs.Metadata[MetadataBookingID]
	if out.BookingID == "" {
		out.BookingID = cs.ClientReferenceID
	}
	return out, nil
}

func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode != 0 {
		return se.HTTPStatusCode
	}
	return 0
}
