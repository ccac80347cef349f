// Package logger builds the zerolog.Logger used throughout the engine.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Config controls how New builds a logger.
type Config struct {
	Level  string
	Pretty bool
}

func init() {
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05Z07:00"
}

// New builds a zerolog.Logger writing to stdout and sets the process-wide
// global level from cfg.Level (unknown/empty levels default to info).
func New(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var writer = os.Stdout
	var log zerolog.Logger
	if cfg.Pretty {
		console := zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
		log = zerolog.New(console)
	} else {
		log = zerolog.New(writer)
	}

	return log.With().Timestamp().Caller().Logger().Level(level)
}

// SetGlobalLogger installs l as the package-level zerolog default logger.
func SetGlobalLogger(l zerolog.Logger) {
	zerolog.DefaultContextLogger = &l
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
