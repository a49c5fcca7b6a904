package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// InitLogger builds the process logger. Output defaults to stderr so that
// CLI command output on stdout stays machine readable.
func InitLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stderr
	}

	return zerolog.New(output).
		Level(ParseLogLevel(level)).
		With().
		Timestamp().
		Caller().
		Logger()
}

// InitConsoleLogger is InitLogger with human readable output, used by
// interactive CLI commands.
func InitConsoleLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stderr
	}
	return InitLogger(level, zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"})
}

func ParseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
