package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName tags every log line so shipped logs can be told apart from the
// upstream course platform.
const ServiceName = "learntrack"

// Setup builds the process logger.
//   - level: trace, debug, info, warn, error (unknown or empty means info)
//   - format: "pretty" for console output, anything else for JSON lines
//
// Caller information is only attached at debug level and below.
func Setup(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.DurationFieldUnit = time.Millisecond

	var writer io.Writer = os.Stdout
	if format == "pretty" {
		writer = zerolog.ConsoleWriter{
			Out:           os.Stdout,
			TimeFormat:    time.RFC3339,
			FieldsExclude: []string{"service"},
		}
	}

	ctx := zerolog.New(writer).With().Timestamp().Str("service", ServiceName)
	if lvl <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}
