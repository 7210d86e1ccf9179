package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	base = newLogger(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("ENVIRONMENT") == "development" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// Configure switches to JSON output outside development and applies the level.
// An unknown level keeps the current one.
func Configure(level, environment string) {
	if environment != "development" {
		base = newLogger(os.Stdout)
	}

	if environment == "development" && level == "" {
		level = "debug"
	}

	if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil && level != "" {
		zerolog.SetGlobalLevel(lvl)
	}
}

// SetOutput redirects all logging. Used by tests to keep output quiet.
func SetOutput(w io.Writer) {
	base = newLogger(w)
}

func Info(format string, v ...interface{}) {
	base.Info().Caller(1).Msgf(format, v...)
}

func Error(format string, v ...interface{}) {
	base.Error().Caller(1).Msgf(format, v...)
}

func Debug(format string, v ...interface{}) {
	base.Debug().Caller(1).Msgf(format, v...)
}

func Warn(format string, v ...interface{}) {
	base.Warn().Caller(1).Msgf(format, v...)
}

// Component returns a logger tagged with the component name, for long-running loops.
func Component(name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
