// internal/adapters/mailer/client.go
package mailer

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tour_booking/internal/adapters/observability"
	"tour_booking/internal/domain"
)

// Client sends transactional email through an HTTP mail API
// (POST {base}/messages with a bearer key). It implements domain.Notifier.
type Client struct {
	base string
	hc   *http.Client
	key  string
	from string
	rl   *rate.Limiter
}

func New(base, key, from string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("mail API key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("mail sender address is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		from: from,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

type Message struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text"`
	Tags    map[string]string `json:"tags,omitempty"`
}

func (c *Client) NotifyBookingCreated(ctx context.Context, b domain.Booking) error {
	return c.Send(ctx, Message{
		To:      b.Customer.Email,
		Subject: fmt.Sprintf("We received your booking for %s", title(b)),
		Text:    body(b, "Your booking request is in. We will email you again once payment is complete."),
		Tags:    map[string]string{"booking_id": b.ID, "kind": "created"},
	})
}

func (c *Client) NotifyBookingConfirmed(ctx context.Context, b domain.Booking) error {
	return c.Send(ctx, Message{
		To:      b.Customer.Email,
		Subject: fmt.Sprintf("Booking confirmed: %s on %s", title(b), b.Date),
		Text:    body(b, "Payment received. Your booking is confirmed."),
		Tags:    map[string]string{"booking_id": b.ID, "kind": "confirmed"},
	})
}

func title(b domain.Booking) string {
	if b.ListingTitle != "" {
		return b.ListingTitle
	}
	return "your tour"
}

func body(b domain.Booking, lead string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hi %s,\n\n%s\n\n", b.Customer.Name, lead)
	fmt.Fprintf(&sb, "Reference: %s\nTour: %s\nDate: %s\nGuests: %d (adults %d, children %d)\n",
		b.ID, title(b), b.Date, b.Guests.Total, b.Guests.Adults, b.Guests.Children)
	if b.Notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", b.Notes)
	}
	return sb.String()
}

var (
	ErrUnauthorized = errors.New("mailer: unauthorized")
	ErrRejected     = errors.New("mailer: message rejected")
)

// Send posts m with client-side rate limiting and retries on 429 and
// transient 5xx, honoring Retry-After when provided.
func (c *Client) Send(ctx context.Context, m Message) error {
	if m.To == "" {
		return fmt.Errorf("%w: no recipient", ErrRejected)
	}
	if m.From == "" {
		m.From = c.from
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}

	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	url := c.base + "/messages"
	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.key)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "tour-booking/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("mail", "messages", 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("mail", "messages", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("mail API %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns false early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date); 0 if absent.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
