package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the zerolog logger with the specified debug mode and output format.
func InitLogger(debug, human bool) {
	InitLoggerTo(os.Stdout, debug, human)
}

// InitLoggerTo is InitLogger writing to out.
func InitLoggerTo(out io.Writer, debug, human bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano         // always initialize base logger with timestamp.
	base := zerolog.New(out).With().Timestamp().Logger() // initialize base logger.
	if human {
		log.Logger = base.Output(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339Nano,
		}) // select output format.
	} else {
		log.Logger = base // use JSON logger.
	}
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel) // set debug level.
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel) // set info level.
	}
}

// Configure applies the log.level and log.format settings.
func Configure(out io.Writer, level, format string) {
	InitLoggerTo(out, false, !strings.EqualFold(format, "json"))

	if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	} else if level != "" {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
	}
}

// LogPress logs a key press with structured fields.
func LogPress(pressID string, key int, actionID, actionName string) {
	log.Info().
		Str("event", "key_pressed").
		Str("press_id", pressID).
		Int("key", key).
		Str("action_id", actionID).
		Str("action_name", actionName).
		Msg("key pressed")
}

// LogOutcome logs the result of a key press with structured fields.
func LogOutcome(
	pressID string,
	key int,
	action string,
	outcome string,
	err error,
	elapsed time.Duration,
) {
	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.
		Str("event", "plugin_execute").
		Str("press_id", pressID).
		Int("key", key).
		Str("action", action).
		Str("outcome", outcome).
		Dur("elapsed", elapsed).
		Msg("key press handled")
}
