package app

import (
	"fmt"
	"io"
	"time"

	"github.com/de-tools/variance-atlas/pkg/services/config"
	"github.com/rs/zerolog"
)

// NewLogger builds the process logger from the log section of the config.
func NewLogger(cfg config.LogConfig, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
