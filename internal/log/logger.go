package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func New(environment string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		NoColor:    environment == "production",
	}
	return NewWithWriter(environment, output)
}

// NewWithWriter builds the service logger on top of an arbitrary sink.
func NewWithWriter(environment string, w io.Writer) zerolog.Logger {
	level := zerolog.DebugLevel
	if environment == "production" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", "portfolio-api").
		Str("env", environment).
		Logger()
}
