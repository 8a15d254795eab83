package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "tour_booking/internal/adapters/http_server"
	"tour_booking/internal/adapters/mailer"
	"tour_booking/internal/adapters/observability"
	redisad "tour_booking/internal/adapters/redis"
	stripead "tour_booking/internal/adapters/stripe"
	"tour_booking/internal/app"
	"tour_booking/internal/domain"
	"tour_booking/internal/shared"
	"tour_booking/internal/storage"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// db
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	stores, err := storage.Open(openCtx, cfg, true)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("open store failed")
	}
	defer stores.Close()

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unreachable; reads fall through to the store")
	}

	gateway, err := stripead.New(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Stripe gateway")
	}

	var notifier domain.Notifier
	if cfg.MailAPIKey != "" {
		m, err := mailer.New(cfg.MailBaseURL, cfg.MailAPIKey, cfg.MailFrom, cfg.MailRPS)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize mailer")
		}
		notifier = m
	}

	// deps
	bookings := app.NewBookingOrchestrator(stores.Bookings, stores.Listings, gateway, notifier)
	agg := app.NewRatingAggregator(stores.Reviews, stores.Listings, cache)
	reviews := app.NewReviewService(stores.Reviews, stores.Listings, agg)
	q := app.NewQueryService(stores.Reviews, stores.Listings, cache, cfg.CacheTTL)

	// http
	srv := server.New(cfg.HTTPTimeout, cfg.AdminJWTSecret)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Bookings: bookings, Reviews: reviews, Q: q})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	// let in-flight booking emails finish
	bookings.Wait()
	log.Info().Msg("bye")
}
