package mailer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tour_booking/internal/adapters/mailer"
	"tour_booking/internal/domain"
)

var _ domain.Notifier = (*mailer.Client)(nil)

func booking() domain.Booking {
	return domain.Booking{
		ID:           "bk-1",
		ListingTitle: "Sunset Cruise",
		Customer:     domain.Customer{Name: "Jane", Email: "jane@x.com", Phone: "+1 555"},
		Date:         "2025-07-01",
		Guests:       domain.Guests{Adults: 2, Total: 2},
	}
}

func TestClient_Confirmed_RetriesThenSuccess(t *testing.T) {
	var hits int32
	var got mailer.Message
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" || r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusAccepted)
		}
	}))
	defer ts.Close()

	cl, err := mailer.New(ts.URL, "test-key", "tours@example.com", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := cl.NotifyBookingConfirmed(ctx, booking()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
	if got.To != "jane@x.com" || got.From != "tours@example.com" {
		t.Fatalf("unexpected envelope: %+v", got)
	}
	if !strings.Contains(got.Subject, "Sunset Cruise") || !strings.Contains(got.Text, "bk-1") {
		t.Fatalf("unexpected content: %+v", got)
	}
	if got.Tags["kind"] != "confirmed" {
		t.Fatalf("unexpected tags: %+v", got.Tags)
	}
}

func TestClient_HonorsRetryAfter(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cl, _ := mailer.New(ts.URL, "k", "tours@example.com", 100)
	if err := cl.NotifyBookingCreated(context.Background(), booking()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 calls, got %d", hits)
	}
}

func TestClient_NonRetryableErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, mailer.ErrUnauthorized},
		{http.StatusUnprocessableEntity, mailer.ErrRejected},
	}
	for _, tc := range cases {
		var hits int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.WriteHeader(tc.status)
		}))
		cl, _ := mailer.New(ts.URL, "k", "tours@example.com", 100)
		err := cl.NotifyBookingCreated(context.Background(), booking())
		ts.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		if hits != 1 {
			t.Fatalf("status %d: expected a single call, got %d", tc.status, hits)
		}
	}
}

func TestClient_ContextCancelStopsRetries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	cl, _ := mailer.New(ts.URL, "k", "tours@example.com", 100)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := cl.NotifyBookingCreated(ctx, booking())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClient_RequiresRecipientAndKey(t *testing.T) {
	if _, err := mailer.New("http://x", "", "a@b", 1); err == nil {
		t.Fatalf("expected error for missing key")
	}
	cl, _ := mailer.New("http://x", "k", "a@b", 1)
	b := booking()
	b.Customer.Email = ""
	if err := cl.NotifyBookingCreated(context.Background(), b); !errors.Is(err, mailer.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}
