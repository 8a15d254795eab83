// Package storage opens the configured repository implementation.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"tour_booking/internal/domain"
	"tour_booking/internal/shared"
	mongostore "tour_booking/internal/storage/mongo"
	mysqlrepo "tour_booking/internal/storage/mysql"
)

type Stores struct {
	Bookings domain.BookingRepository
	Reviews  domain.ReviewRepository
	Listings domain.ListingRepository
	Close    func() error
}

// Open connects to the store selected by cfg.StoreDriver. With migrate set,
// the MySQL schema is brought up to date and Mongo indexes are ensured.
func Open(ctx context.Context, cfg shared.Config, migrate bool) (Stores, error) {
	switch cfg.StoreDriver {
	case shared.DriverMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return Stores{}, fmt.Errorf("sql.Open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return Stores{}, fmt.Errorf("db.Ping: %w", err)
		}
		if migrate {
			if err := mysqlrepo.Migrate(db); err != nil {
				_ = db.Close()
				return Stores{}, err
			}
		}
		log.Info().Str("driver", cfg.StoreDriver).Msg("database connection ok")
		repo := mysqlrepo.New(db)
		return Stores{Bookings: repo, Reviews: repo.Reviews(), Listings: repo.Listings(), Close: db.Close}, nil

	case shared.DriverMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return Stores{}, err
		}
		st := mongostore.New(client.Database(cfg.MongoDB))
		if migrate {
			if err := st.EnsureIndexes(ctx); err != nil {
				_ = client.Disconnect(context.Background())
				return Stores{}, err
			}
		}
		log.Info().Str("driver", cfg.StoreDriver).Str("db", cfg.MongoDB).Msg("database connection ok")
		return Stores{
			Bookings: st,
			Reviews:  st.Reviews(),
			Listings: st.Listings(),
			Close:    func() error { return client.Disconnect(context.Background()) },
		}, nil
	}
	return Stores{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}
