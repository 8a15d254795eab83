package stripead

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"tour_booking/internal/domain"
)

const secret = "whsec_test_secret"

// sign builds a Stripe-Signature header for payload at ts.
func sign(payload []byte, key string, ts time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: key, Timestamp: ts}).Header
}

func completedEvent(meta, clientRef string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "client_reference_id": %q,
    "metadata": {"bookingId": %q}
  }}
}`, clientRef, meta))
}

type fakeSessions struct {
	got *stripe.CheckoutSessionParams
	err error
}

func (f *fakeSessions) New(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.got = p
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func newGateway(t *testing.T, fs *fakeSessions) *Gateway {
	t.Helper()
	g, err := New("", secret, "https://example.com/ok", "https://example.com/cancel", withSessions(fs))
	require.NoError(t, err)
	return g
}

func TestParseEvent_ValidSignature(t *testing.T) {
	g := newGateway(t, &fakeSessions{})
	p := completedEvent("bk-42", "bk-42")

	ev, err := g.ParseEvent(p, sign(p, secret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentEvent{ID: "evt_1", Type: domain.PaymentEventCheckoutCompleted, BookingID: "bk-42"}, ev)
}

func TestParseEvent_FallsBackToClientReference(t *testing.T) {
	g := newGateway(t, &fakeSessions{})
	p := completedEvent("", "bk-7")

	ev, err := g.ParseEvent(p, sign(p, secret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "bk-7", ev.BookingID)
}

func TestParseEvent_Rejects(t *testing.T) {
	g := newGateway(t, &fakeSessions{})
	p := completedEvent("bk-42", "")

	cases := map[string]string{
		"wrong secret": sign(p, "whsec_other", time.Now()),
		"stale":        sign(p, secret, time.Now().Add(-time.Hour)),
		"missing":      "",
		"garbage":      "t=abc,v1=zzz",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := g.ParseEvent(p, header)
			require.ErrorIs(t, err, domain.ErrAuthentication)
		})
	}

	// tampered body, original signature
	hdr := sign(p, secret, time.Now())
	_, err := g.ParseEvent(completedEvent("bk-other", ""), hdr)
	require.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestParseEvent_OtherTypesCarryNoCorrelation(t *testing.T) {
	g := newGateway(t, &fakeSessions{})
	p := []byte(`{"id":"evt_2","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge","metadata":{"bookingId":"bk-1"}}}}`)

	ev, err := g.ParseEvent(p, sign(p, secret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "charge.refunded", ev.Type)
	assert.Empty(t, ev.BookingID)
}

func TestCreateCheckoutSession_EmbedsCorrelation(t *testing.T) {
	fs := &fakeSessions{}
	g := newGateway(t, fs)

	sess, err := g.CreateCheckoutSession(context.Background(), domain.CheckoutRequest{
		BookingID:     "bk-1",
		ListingTitle:  "Sunset Cruise",
		CustomerEmail: "jane@x.com",
		Currency:      "USD",
		UnitAmount:    4500,
		Quantity:      2,
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)

	p := fs.got
	require.NotNil(t, p)
	assert.Equal(t, "bk-1", p.Metadata[MetadataBookingID])
	assert.Equal(t, "bk-1", *p.ClientReferenceID)
	assert.Equal(t, "payment", *p.Mode)
	require.Len(t, p.LineItems, 1)
	assert.Equal(t, int64(2), *p.LineItems[0].Quantity)
	assert.Equal(t, int64(4500), *p.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "usd", *p.LineItems[0].PriceData.Currency)
}

func TestCreateCheckoutSession_Errors(t *testing.T) {
	fs := &fakeSessions{err: errors.New("connection reset")}
	g := newGateway(t, fs)

	_, err := g.CreateCheckoutSession(context.Background(), domain.CheckoutRequest{BookingID: "bk-1", UnitAmount: 100, Quantity: 1})
	require.ErrorIs(t, err, domain.ErrGateway)

	_, err = g.CreateCheckoutSession(context.Background(), domain.CheckoutRequest{BookingID: "bk-1", UnitAmount: 0, Quantity: 1})
	require.ErrorIs(t, err, domain.ErrGateway)
}

func TestNew_RequiresSecrets(t *testing.T) {
	_, err := New("sk_test", "", "", "")
	require.Error(t, err)
	_, err = New("", "whsec", "", "")
	require.Error(t, err)
}
