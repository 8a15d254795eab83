// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"tour_booking/internal/app"
	"tour_booking/internal/domain"
)

const (
	maxBodyBytes    = 1 << 20
	maxWebhookBytes = 65536
	signatureHeader = "Stripe-Signature"
	maxCursorLen    = 64 // review ids are UUIDs or ObjectIDs
)

type Handlers struct {
	Bookings *app.BookingOrchestrator
	Reviews  *app.ReviewService
	Q        *app.QueryService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Post("/v1/bookings", h.createBooking)
	s.mux.Post("/v1/bookings/{id}/checkout", h.startCheckout)
	s.mux.Post("/v1/payments/webhook", h.paymentWebhook)

	s.mux.Get("/v1/listings/{id}/rating", h.getRating)
	s.mux.Get("/v1/listings/{id}/reviews", h.listReviews)
	s.mux.Post("/v1/listings/{id}/reviews", h.submitReview)

	s.mux.Route("/v1/admin", func(r chi.Router) {
		r.Use(AdminAuth(s.adminSecret))
		r.Put("/reviews/{id}", h.setApproval)
		r.Delete("/reviews/{id}", h.deleteReview)
		r.Get("/bookings/{id}", h.getBooking)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// writeError maps domain errors to problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, domain.ErrAuthentication):
		writeProblem(w, http.StatusBadRequest, "Invalid Signature", "signature verification failed")
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrBookingNotPending):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, domain.ErrGateway):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("payment gateway failure")
		writeProblem(w, http.StatusBadGateway, "Bad Gateway", "payment provider unavailable")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	return true
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeWithETag(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

// ---- bookings ----

type bookingRequest struct {
	ListingID    string          `json:"listingId"`
	ListingTitle string          `json:"listingTitle"`
	Date         string          `json:"date"`
	Adults       uint            `json:"adults"`
	Children     uint            `json:"children"`
	TotalGuests  uint            `json:"totalGuests"`
	Customer     domain.Customer `json:"customer"`
	Notes        string          `json:"notes"`
	Status       string          `json:"status"` // ignored, bookings start pending
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	b, err := h.Bookings.CreateBooking(r.Context(), domain.BookingInput{
		ListingID:    req.ListingID,
		ListingTitle: req.ListingTitle,
		Date:         req.Date,
		Guests:       domain.Guests{Adults: req.Adults, Children: req.Children, Total: req.TotalGuests},
		Customer:     req.Customer,
		Notes:        req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": b.ID})
}

func (h *Handlers) startCheckout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Bookings.StartCheckout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handlers) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "payload too large or unreadable")
		return
	}
	if err := h.Bookings.ConfirmFromPaymentEvent(r.Context(), payload, r.Header.Get(signatureHeader)); err != nil {
		if errors.Is(err, domain.ErrAuthentication) {
			writeError(w, r, err)
			return
		}
		// non-2xx makes the gateway redeliver
		log.Error().Err(err).Msg("payment webhook processing failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ---- listings & reviews ----

func (h *Handlers) getRating(w http.ResponseWriter, r *http.Request) {
	v, err := h.Q.GetRating(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeWithETag(w, r, v)
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	limit := app.DefaultReviewLimit
	if ls := r.URL.Query().Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > app.MaxReviewLimit {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}

	// newest first, matches the (listing_id, is_approved, created_at, id) index
	page := domain.PageQuery{Limit: limit, Sort: "-created_at"}
	if c := strings.TrimSpace(r.URL.Query().Get("cursor")); c != "" {
		if len(c) > maxCursorLen {
			writeProblem(w, http.StatusBadRequest, "Invalid cursor", "cursor is not a value returned by a previous page")
			return
		}
		page.Cursor = &c
	}
	out, err := h.Q.ListReviews(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeWithETag(w, r, out)
}

type reviewRequest struct {
	AuthorName string  `json:"authorName"`
	Rating     float64 `json:"rating"`
	Text       string  `json:"text"`
}

func (h *Handlers) submitReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rv, err := h.Reviews.Submit(r.Context(), chi.URLParam(r, "id"), domain.ReviewInput{
		AuthorName: req.AuthorName,
		Rating:     req.Rating,
		Text:       req.Text,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": rv.ID})
}

// ---- admin ----

type approvalRequest struct {
	IsApproved *bool `json:"isApproved"`
}

func (h *Handlers) setApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IsApproved == nil {
		writeProblem(w, http.StatusBadRequest, "Validation Failed", "isApproved must be a boolean")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Reviews.SetApproval(r.Context(), id, *req.IsApproved); err != nil {
		writeError(w, r, err)
		return
	}
	log.Info().Str("review_id", id).Bool("approved", *req.IsApproved).Str("admin", Subject(r.Context())).Msg("review moderated")
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "isApproved": *req.IsApproved})
}

func (h *Handlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Reviews.Remove(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	log.Info().Str("review_id", id).Str("admin", Subject(r.Context())).Msg("review removed")
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}
