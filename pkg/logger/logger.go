package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	Log         zerolog.Logger
	development bool
)

func init() {
	Init(os.Getenv("ENVIRONMENT"))
}

// Init rebuilds the global logger. Development gets a console writer with
// caller info, everything else gets JSON lines.
func Init(env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	development = env == "" || env == "development"

	if development {
		Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
			With().
			Timestamp().
			CallerWithSkipFrameCount(3).
			Logger()
		return
	}

	Log = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}

func Info(format string, v ...interface{}) {
	Log.Info().Msgf(format, v...)
}

func Error(format string, v ...interface{}) {
	Log.Error().Msgf(format, v...)
}

func Debug(format string, v ...interface{}) {
	if development {
		Log.Debug().Msgf(format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	Log.Warn().Msgf(format, v...)
}

// With returns a child logger carrying the given fields, used by long-lived
// components such as conversation sessions.
func With(fields map[string]interface{}) zerolog.Logger {
	return Log.With().Fields(fields).Logger()
}
