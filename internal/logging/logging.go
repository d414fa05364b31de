// Package logging builds the process zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level      string `yaml:"level" json:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format     string `yaml:"format" json:"format" default:"console" validate:"oneof=json console"`
	Output     string `yaml:"output" json:"output" default:"stderr"`
	TimeFormat string `yaml:"time_format" json:"time_format"`
}

// New returns a logger writing JSON or console lines to stdout, stderr
// or an append-only file.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level: %w", err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("could not open log file: %w", err)
		}
		out, closer = f, f
	}

	return NewWithWriter(cfg, out).Level(level), closer, nil
}

// NewWithWriter is New without level parsing or file handling.
func NewWithWriter(cfg Config, out io.Writer) zerolog.Logger {
	tf := cfg.TimeFormat
	if tf == "" {
		tf = time.RFC3339
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
