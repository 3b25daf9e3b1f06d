// Package logging initializes the process-wide zerolog logger.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds a component-scoped logger: pretty console output when
// stdout is a terminal, structured JSON otherwise.
func New(service string) zerolog.Logger {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if isTerminal() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().
			Timestamp().
			Caller().
			Logger()
	}

	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// SetLevel updates the global log level from a configured string,
// defaulting to info on an empty or unrecognized value.
func SetLevel(logger *zerolog.Logger, levelStr string) {
	level := zerolog.InfoLevel
	switch levelStr {
	case "debug":
		level = zerolog.DebugLevel
	case "", "info":
		level = zerolog.InfoLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	default:
		logger.Warn().Str("configured_level", levelStr).Msg("unknown log level, defaulting to info")
	}
	zerolog.SetGlobalLevel(level)
}

func isTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
