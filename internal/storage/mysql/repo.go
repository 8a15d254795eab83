package mysql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"tour_booking/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("mysql"); err != nil {
		return err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

type bookingRow struct {
	ID            string         `db:"id"`
	ListingID     string         `db:"listing_id"`
	ListingTitle  string         `db:"listing_title"`
	CustomerName  string         `db:"customer_name"`
	CustomerEmail string         `db:"customer_email"`
	CustomerPhone string         `db:"customer_phone"`
	TourDate      string         `db:"tour_date"`
	Adults        uint           `db:"adults"`
	Children      uint           `db:"children"`
	TotalGuests   uint           `db:"total_guests"`
	Notes         sql.NullString `db:"notes"`
	Status        string         `db:"status"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r bookingRow) toDomain() domain.Booking {
	return domain.Booking{
		ID:           r.ID,
		ListingID:    r.ListingID,
		ListingTitle: r.ListingTitle,
		Customer:     domain.Customer{Name: r.CustomerName, Email: r.CustomerEmail, Phone: r.CustomerPhone},
		Date:         r.TourDate,
		Guests:       domain.Guests{Adults: r.Adults, Children: r.Children, Total: r.TotalGuests},
		Notes:        r.Notes.String,
		Status:       domain.BookingStatus(r.Status),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type reviewRow struct {
	ID         string    `db:"id"`
	ListingID  string    `db:"listing_id"`
	AuthorName string    `db:"author_name"`
	Rating     float64   `db:"rating"`
	Text       string    `db:"text"`
	IsApproved bool      `db:"is_approved"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r reviewRow) toDomain() domain.Review {
	return domain.Review{
		ID:         r.ID,
		ListingID:  r.ListingID,
		AuthorName: r.AuthorName,
		Rating:     r.Rating,
		Text:       r.Text,
		IsApproved: r.IsApproved,
		CreatedAt:  r.CreatedAt,
	}
}

func toReviews(rows []reviewRow) []domain.Review {
	out := make([]domain.Review, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}

type listingRow struct {
	ID            string  `db:"id"`
	Title         string  `db:"title"`
	PricePerGuest int64   `db:"price_per_guest"`
	Currency      string  `db:"currency"`
	AverageRating float64 `db:"average_rating"`
	ReviewCount   int     `db:"review_count"`
}

// Repo is the MySQL store. It implements the booking, review and listing
// repositories plus domain.RatingTx.
type Repo struct{ db *sqlx.DB }

func New(db *sql.DB) *Repo { return &Repo{db: sqlx.NewDb(db, "mysql")} }

func wrap(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: mysql %s: %w", domain.ErrPersistence, op, err)
}

func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// ---- bookings ----

func (r *Repo) Create(ctx context.Context, b *domain.Booking) error {
	t := now()
	row := bookingRow{
		ID:            uuid.NewString(),
		ListingID:     b.ListingID,
		ListingTitle:  b.ListingTitle,
		CustomerName:  b.Customer.Name,
		CustomerEmail: b.Customer.Email,
		CustomerPhone: b.Customer.Phone,
		TourDate:      b.Date,
		Adults:        b.Guests.Adults,
		Children:      b.Guests.Children,
		TotalGuests:   b.Guests.Total,
		Notes:         sql.NullString{String: b.Notes, Valid: b.Notes != ""},
		Status:        string(b.Status),
		CreatedAt:     t,
		UpdatedAt:     t,
	}
	if row.Status == "" {
		row.Status = string(domain.BookingStatusPending)
	}
	if _, err := r.db.NamedExecContext(ctx, insertBookingSQL, row); err != nil {
		return wrap("insert booking", err)
	}
	b.ID, b.Status, b.CreatedAt, b.UpdatedAt = row.ID, domain.BookingStatus(row.Status), t, t
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (domain.Booking, error) {
	var row bookingRow
	if err := r.db.GetContext(ctx, &row, getBookingSQL, id); err != nil {
		return domain.Booking{}, wrap("get booking", err)
	}
	return row.toDomain(), nil
}

func (r *Repo) MarkConfirmed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, markConfirmedSQL, now(), id)
	if err != nil {
		return wrap("confirm booking", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ---- reviews ----

// Reviews exposes the review side of the store, whose method names overlap
// with the booking side.
func (r *Repo) Reviews() *ReviewRepo { return &ReviewRepo{db: r.db} }

// Listings exposes the listing side of the store.
func (r *Repo) Listings() *ListingRepo { return &ListingRepo{db: r.db} }

type ReviewRepo struct{ db *sqlx.DB }

func (r *ReviewRepo) Create(ctx context.Context, rv *domain.Review) error {
	row := reviewRow{
		ID:         uuid.NewString(),
		ListingID:  rv.ListingID,
		AuthorName: rv.AuthorName,
		Rating:     rv.Rating,
		Text:       rv.Text,
		IsApproved: rv.IsApproved,
		CreatedAt:  now(),
	}
	if _, err := r.db.NamedExecContext(ctx, insertReviewSQL, row); err != nil {
		return wrap("insert review", err)
	}
	rv.ID, rv.CreatedAt = row.ID, row.CreatedAt
	return nil
}

func (r *ReviewRepo) Get(ctx context.Context, id string) (domain.Review, error) {
	var row reviewRow
	if err := r.db.GetContext(ctx, &row, getReviewSQL, id); err != nil {
		return domain.Review{}, wrap("get review", err)
	}
	return row.toDomain(), nil
}

func (r *ReviewRepo) SetApproved(ctx context.Context, id string, approved bool) error {
	res, err := r.db.ExecContext(ctx, setApprovedSQL, approved, id)
	if err != nil {
		return wrap("set approved", err)
	}
	// RowsAffected is 0 when the flag already has the value, so confirm existence.
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *ReviewRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, deleteReviewSQL, id)
	if err != nil {
		return wrap("delete review", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ReviewRepo) ListApproved(ctx context.Context, listingID string) ([]domain.Review, error) {
	var rows []reviewRow
	if err := r.db.SelectContext(ctx, &rows, listApprovedSQL, listingID); err != nil {
		return nil, wrap("list approved reviews", err)
	}
	return toReviews(rows), nil
}

func (r *ReviewRepo) ListApprovedPage(ctx context.Context, listingID string, pg domain.PageQuery) (domain.ReviewsPage, error) {
	if pg.Sort != "" && pg.Sort != "-created_at" {
		return domain.ReviewsPage{}, fmt.Errorf("%w: unsupported sort %q", domain.ErrValidation, pg.Sort)
	}
	var (
		rows []reviewRow
		err  error
	)
	if pg.Cursor != nil && strings.TrimSpace(*pg.Cursor) != "" {
		err = r.db.SelectContext(ctx, &rows, listApprovedAfterSQL, listingID, *pg.Cursor, pg.Limit)
	} else {
		err = r.db.SelectContext(ctx, &rows, listApprovedPageSQL, listingID, pg.Limit)
	}
	if err != nil {
		return domain.ReviewsPage{}, wrap("list reviews page", err)
	}
	out := domain.ReviewsPage{Items: toReviews(rows)}
	if pg.Limit > 0 && len(rows) == pg.Limit {
		next := rows[len(rows)-1].ID
		out.NextCursor = &next
	}
	return out, nil
}

// ---- listings ----

type ListingRepo struct{ db *sqlx.DB }

// Upsert writes catalog fields. The aggregate columns are left untouched.
func (r *ListingRepo) Upsert(ctx context.Context, l domain.Listing) error {
	if _, err := r.db.ExecContext(ctx, upsertListingSQL, l.ID, l.Title, l.PricePerGuest, l.Currency); err != nil {
		return wrap("upsert listing", err)
	}
	return nil
}

func (r *ListingRepo) Get(ctx context.Context, id string) (domain.Listing, error) {
	var row listingRow
	if err := r.db.GetContext(ctx, &row, getListingSQL, id); err != nil {
		return domain.Listing{}, wrap("get listing", err)
	}
	return domain.Listing(row), nil
}

func (r *ListingRepo) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, listListingIDsSQL); err != nil {
		return nil, wrap("list listing ids", err)
	}
	return ids, nil
}

func (r *ListingRepo) UpdateRating(ctx context.Context, id string, agg domain.RatingAggregate) error {
	res, err := r.db.ExecContext(ctx, updateRatingSQL, agg.AverageRating, agg.ReviewCount, id)
	if err != nil {
		return wrap("update rating", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// unchanged values also report 0 rows
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeTx locks the listing row, reads its approved reviews and writes the
// aggregate in one transaction.
func (r *ListingRepo) RecomputeTx(ctx context.Context, listingID string, compute func([]domain.Review) domain.RatingAggregate) (agg domain.RatingAggregate, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return agg, wrap("begin recompute", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked string
	if err = tx.GetContext(ctx, &locked, lockListingSQL, listingID); err != nil {
		return agg, wrap("lock listing", err)
	}

	var rows []reviewRow
	if err = tx.SelectContext(ctx, &rows, listApprovedSQL, listingID); err != nil {
		return agg, wrap("read approved reviews", err)
	}
	agg = compute(toReviews(rows))

	if _, err = tx.ExecContext(ctx, updateRatingSQL, agg.AverageRating, agg.ReviewCount, listingID); err != nil {
		return agg, wrap("write rating", err)
	}
	if err = tx.Commit(); err != nil {
		return agg, wrap("commit recompute", err)
	}
	return agg, nil
}
