// Package mongostore is the document-store implementation of the repositories.
// Aggregate writes use a partial $set so catalog fields on a listing are
// never overwritten.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tour_booking/internal/domain"
)

const (
	bookingsColl = "bookings"
	reviewsColl  = "reviews"
	listingsColl = "listings"
)

// Connect dials uri and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return c, nil
}

type bookingDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ListingID    string             `bson:"listing_id"`
	ListingTitle string             `bson:"listing_title"`
	Customer     customerDoc        `bson:"customer"`
	Date         string             `bson:"date"`
	Guests       guestsDoc          `bson:"guests"`
	Notes        string             `bson:"notes,omitempty"`
	Status       string             `bson:"status"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

type customerDoc struct {
	Name  string `bson:"name"`
	Email string `bson:"email"`
	Phone string `bson:"phone"`
}

type guestsDoc struct {
	Adults   uint `bson:"adults"`
	Children uint `bson:"children"`
	Total    uint `bson:"total"`
}

func (d bookingDoc) toDomain() domain.Booking {
	return domain.Booking{
		ID:           d.ID.Hex(),
		ListingID:    d.ListingID,
		ListingTitle: d.ListingTitle,
		Customer:     domain.Customer(d.Customer),
		Date:         d.Date,
		Guests:       domain.Guests(d.Guests),
		Notes:        d.Notes,
		Status:       domain.BookingStatus(d.Status),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type reviewDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	ListingID  string             `bson:"listing_id"`
	AuthorName string             `bson:"author_name"`
	Rating     float64            `bson:"rating"`
	Text       string             `bson:"text"`
	IsApproved bool               `bson:"is_approved"`
	CreatedAt  time.Time          `bson:"created_at"`
}

func (d reviewDoc) toDomain() domain.Review {
	return domain.Review{
		ID:         d.ID.Hex(),
		ListingID:  d.ListingID,
		AuthorName: d.AuthorName,
		Rating:     d.Rating,
		Text:       d.Text,
		IsApproved: d.IsApproved,
		CreatedAt:  d.CreatedAt,
	}
}

type listingDoc struct {
	ID            string  `bson:"_id"`
	Title         string  `bson:"title"`
	PricePerGuest int64   `bson:"price_per_guest"`
	Currency      string  `bson:"currency"`
	AverageRating float64 `bson:"average_rating"`
	ReviewCount   int     `bson:"review_count"`
}

func wrap(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: mongo %s: %w", domain.ErrPersistence, op, err)
}

// objectID parses a hex id; anything unparsable cannot exist in the store.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return primitive.NilObjectID, domain.ErrNotFound
	}
	return oid, nil
}

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// Store holds the booking repository and hands out the review and listing ones.
type Store struct{ db *mongo.Database }

func New(db *mongo.Database) *Store { return &Store{db: db} }

func (s *Store) Reviews() *ReviewRepo   { return &ReviewRepo{c: s.db.Collection(reviewsColl)} }
func (s *Store) Listings() *ListingRepo { return &ListingRepo{c: s.db.Collection(listingsColl)} }

// EnsureIndexes creates the index backing the approved-reviews queries.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(reviewsColl).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "is_approved", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
	})
	if err != nil {
		return wrap("create review index", err)
	}
	return nil
}

// ---- bookings ----

func (s *Store) Create(ctx context.Context, b *domain.Booking) error {
	t := now()
	doc := bookingDoc{
		ID:           primitive.NewObjectID(),
		ListingID:    b.ListingID,
		ListingTitle: b.ListingTitle,
		Customer:     customerDoc(b.Customer),
		Date:         b.Date,
		Guests:       guestsDoc(b.Guests),
		Notes:        b.Notes,
		Status:       string(b.Status),
		CreatedAt:    t,
		UpdatedAt:    t,
	}
	if doc.Status == "" {
		doc.Status = string(domain.BookingStatusPending)
	}
	if _, err := s.db.Collection(bookingsColl).InsertOne(ctx, doc); err != nil {
		return wrap("insert booking", err)
	}
	b.ID, b.Status, b.CreatedAt, b.UpdatedAt = doc.ID.Hex(), domain.BookingStatus(doc.Status), t, t
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.Booking, error) {
	oid, err := objectID(id)
	if err != nil {
		return domain.Booking{}, err
	}
	var doc bookingDoc
	if err := s.db.Collection(bookingsColl).FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return domain.Booking{}, wrap("get booking", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) MarkConfirmed(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := s.db.Collection(bookingsColl).UpdateByID(ctx, oid, bson.M{
		"$set": bson.M{"status": string(domain.BookingStatusConfirmed), "updated_at": now()},
	})
	if err != nil {
		return wrap("confirm booking", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ---- reviews ----

type ReviewRepo struct{ c *mongo.Collection }

func (r *ReviewRepo) Create(ctx context.Context, rv *domain.Review) error {
	doc := reviewDoc{
		ID:         primitive.NewObjectID(),
		ListingID:  rv.ListingID,
		AuthorName: rv.AuthorName,
		Rating:     rv.Rating,
		Text:       rv.Text,
		IsApproved: rv.IsApproved,
		CreatedAt:  now(),
	}
	if _, err := r.c.InsertOne(ctx, doc); err != nil {
		return wrap("insert review", err)
	}
	rv.ID, rv.CreatedAt = doc.ID.Hex(), doc.CreatedAt
	return nil
}

func (r *ReviewRepo) Get(ctx context.Context, id string) (domain.Review, error) {
	oid, err := objectID(id)
	if err != nil {
		return domain.Review{}, err
	}
	var doc reviewDoc
	if err := r.c.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return domain.Review{}, wrap("get review", err)
	}
	return doc.toDomain(), nil
}

func (r *ReviewRepo) SetApproved(ctx context.Context, id string, approved bool) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.c.UpdateByID(ctx, oid, bson.M{"$set": bson.M{"is_approved": approved}})
	if err != nil {
		return wrap("set approved", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ReviewRepo) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.c.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return wrap("delete review", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

func (r *ReviewRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Review, error) {
	cur, err := r.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrap("find reviews", err)
	}
	var docs []reviewDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap("decode reviews", err)
	}
	out := make([]domain.Review, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *ReviewRepo) ListApproved(ctx context.Context, listingID string) ([]domain.Review, error) {
	return r.find(ctx, bson.M{"listing_id": listingID, "is_approved": true}, options.Find().SetSort(newestFirst))
}

func (r *ReviewRepo) ListApprovedPage(ctx context.Context, listingID string, pg domain.PageQuery) (domain.ReviewsPage, error) {
	if pg.Sort != "" && pg.Sort != "-created_at" {
		return domain.ReviewsPage{}, fmt.Errorf("%w: unsupported sort %q", domain.ErrValidation, pg.Sort)
	}
	filter := bson.M{"listing_id": listingID, "is_approved": true}
	if pg.Cursor != nil && strings.TrimSpace(*pg.Cursor) != "" {
		after, err := r.Get(ctx, *pg.Cursor)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ReviewsPage{}, fmt.Errorf("%w: unknown cursor", domain.ErrValidation)
			}
			return domain.ReviewsPage{}, err
		}
		oid, _ := objectID(after.ID)
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$lt": after.CreatedAt}},
			bson.M{"created_at": after.CreatedAt, "_id": bson.M{"$lt": oid}},
		}
	}
	rs, err := r.find(ctx, filter, options.Find().SetSort(newestFirst).SetLimit(int64(pg.Limit)))
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	out := domain.ReviewsPage{Items: rs}
	if pg.Limit > 0 && len(rs) == pg.Limit {
		next := rs[len(rs)-1].ID
		out.NextCursor = &next
	}
	return out, nil
}

// ---- listings ----

type ListingRepo struct{ c *mongo.Collection }

// Upsert writes catalog fields only.
func (r *ListingRepo) Upsert(ctx context.Context, l domain.Listing) error {
	_, err := r.c.UpdateByID(ctx, l.ID, bson.M{
		"$set":         bson.M{"title": l.Title, "price_per_guest": l.PricePerGuest, "currency": l.Currency},
		"$setOnInsert": bson.M{"average_rating": 0.0, "review_count": 0},
	}, options.Update().SetUpsert(true))
	if err != nil {
		return wrap("upsert listing", err)
	}
	return nil
}

func (r *ListingRepo) Get(ctx context.Context, id string) (domain.Listing, error) {
	var doc listingDoc
	if err := r.c.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return domain.Listing{}, wrap("get listing", err)
	}
	return domain.Listing(doc), nil
}

func (r *ListingRepo) ListIDs(ctx context.Context) ([]string, error) {
	cur, err := r.c.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrap("list listing ids", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap("decode listing ids", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (r *ListingRepo) UpdateRating(ctx context.Context, id string, agg domain.RatingAggregate) error {
	res, err := r.c.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"average_rating": agg.AverageRating, "review_count": agg.ReviewCount},
	})
	if err != nil {
		return wrap("update rating", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
