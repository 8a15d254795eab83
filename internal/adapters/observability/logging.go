package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog Logger.
// APP_ENV=dev (or development) uses a human-friendly console writer;
// APP_ENV=test only logs errors so test output stays readable.
func NewLogger(env string) zerolog.Logger {
	return newLogger(os.Stdout, env)
}

func newLogger(out io.Writer, env string) zerolog.Logger {
	switch env {
	case "dev", "development":
		return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	case "test":
		return zerolog.New(out).Level(zerolog.ErrorLevel).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}
