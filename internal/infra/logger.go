package infra

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Development gets console output at
// debug level; everything else logs JSON at info. The logger also becomes the
// fallback for zerolog.Ctx so code running outside a request still logs.
func NewLogger(appEnv, service string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	zerolog.DefaultContextLogger = &logger
	return logger
}

// Logger aliases zerolog.Logger for packages that only pass it along.
type Logger = zerolog.Logger
