package shared

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	DriverMySQL = "mysql"
	DriverMongo = "mongo"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	HTTPTimeout time.Duration

	StoreDriver string
	MySQLDSN    string
	MongoURI    string
	MongoDB     string

	RedisAddr string
	RedisDB   int
	RedisPass string
	CacheTTL  time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	MailBaseURL string
	MailAPIKey  string
	MailFrom    string
	MailRPS     int

	AdminJWTSecret   string
	ReconcileWorkers int
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Variables already set win over the file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg(".env could not be parsed; using process environment")
	}

	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		HTTPTimeout: time.Duration(atoi("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,

		StoreDriver: env("STORE_DRIVER", DriverMySQL),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/tours?parseTime=true&charset=utf8mb4&loc=UTC"),
		MongoURI:    env("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     env("MONGO_DB", "tours"),

		RedisAddr: env("REDIS_ADDR", "localhost:6379"),
		RedisPass: env("REDIS_PASSWORD", ""),
		RedisDB:   atoi("REDIS_DB", 0),
		CacheTTL:  time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,

		StripeSecretKey:     env("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: env("STRIPE_WEBHOOK_SECRET", ""),
		CheckoutSuccessURL:  env("CHECKOUT_SUCCESS_URL", "http://localhost:3000/booking/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:   env("CHECKOUT_CANCEL_URL", "http://localhost:3000/booking/cancelled"),

		MailBaseURL: env("MAIL_BASE_URL", "https://api.mail.example.com/v1"),
		MailAPIKey:  env("MAIL_API_KEY", ""),
		MailFrom:    env("MAIL_FROM", "bookings@example.com"),
		MailRPS:     atoi("MAIL_RPS", 5),

		AdminJWTSecret:   env("ADMIN_JWT_SECRET", ""),
		ReconcileWorkers: atoi("RECONCILE_WORKERS", 8),
	}
	if c.StripeWebhookSecret == "" {
		log.Warn().Msg("STRIPE_WEBHOOK_SECRET is empty")
	}
	if c.AdminJWTSecret == "" {
		log.Warn().Msg("ADMIN_JWT_SECRET is empty; admin routes will reject every request")
	}
	if c.MailAPIKey == "" {
		log.Warn().Msg("MAIL_API_KEY is empty; booking emails are disabled")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Str("value", v).Msg("not an integer; using default")
	}
	return def
}
