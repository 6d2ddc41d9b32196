// Package logging builds the process logger: JSON slog records to stdout and
// an optional rotating file, with the most recent lines kept in memory for
// the status query.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	RingSize   int
}

// New returns a logger and the ring that captures its recent lines. The
// returned closer flushes the rotating file, if any.
func New(opts Options) (*slog.Logger, *Ring, func() error) {
	var w io.Writer = os.Stdout
	closer := func() error { return nil }

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		w = io.MultiWriter(os.Stdout, rotator)
		closer = rotator.Close
	}

	ring := NewRing(opts.RingSize)
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
	return slog.New(NewRingHandler(base, ring)), ring, closer
}

// ParseLevel maps a config level name to a slog level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
