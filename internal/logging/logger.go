package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates a human-readable zerolog.Logger writing to w. An unknown
// level falls back to info.
func NewLogger(w io.Writer, level string) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal(w),
	}
	logger := zerolog.New(out).With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return logger.Level(lvl)
}
