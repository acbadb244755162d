package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the service logger. JSON to stdout by default, pretty
// console output when requested for local development.
func NewLogger(level string, pretty bool) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if pretty {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(output)
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(logLevel).With().Timestamp().Logger()
}
