package uloop

import (
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the event loop's structured logging handle, a
// logiface.Logger[*izerolog.Event] bound to a zerolog sink. Replaces the
// teacher's hand-rolled Logger/LogEntry facade (logging.go) with the real
// logiface stack used across the rest of the corpus
// (logiface-zerolog/logiface-testsuite), since this distillation's
// ambient stack calls for genuine structured logging rather than a
// bespoke JSON encoder.
type Logger = logiface.Logger[*izerolog.Event]

// defaultLogger builds a Logger writing JSON-ish console output to
// stderr at info level, used when a Loop is constructed without
// WithLogger. Mirrors the teacher's NewDefaultLogger default (stdout,
// pretty-printed when attached to a terminal); this package writes to
// stderr instead, since uloop's stdout is frequently the application's
// own output stream.
func defaultLogger() *Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	zl := zerolog.New(w).With().Timestamp().Logger()
	return logiface.New[*izerolog.Event](
		izerolog.WithZerolog(zl),
		logiface.WithLevel[*izerolog.Event](logiface.LevelInformational),
	)
}

// noopLogger discards everything, used by WithLogger(nil) and by tests
// that don't want console noise.
func noopLogger() *Logger {
	return logiface.New[*izerolog.Event](
		logiface.WithLevel[*izerolog.Event](logiface.LevelDisabled),
	)
}
