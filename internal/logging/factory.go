package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
)

const (
	BackendSlog    = "slog"
	BackendZerolog = "zerolog"
)

// Options selects and tunes a Logger implementation.
type Options struct {
	// Backend is BackendSlog or BackendZerolog.
	Backend string
	// Level is one of debug, info, warn, error.
	Level string
	// Console switches to a human-readable format (text for slog,
	// ConsoleWriter for zerolog).
	Console bool
	// Color enables ANSI colour in zerolog console output.
	Color bool
}

// New builds a Logger writing to w.
func New(w io.Writer, opts Options) (Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(opts.Backend) {
	case "", BackendSlog:
		hopts := &slog.HandlerOptions{Level: level}
		var h slog.Handler
		if opts.Console {
			h = slog.NewTextHandler(w, hopts)
		} else {
			h = slog.NewJSONHandler(w, hopts)
		}
		return NewSlogLogger(slog.New(h)), nil

	case BackendZerolog:
		out := w
		if opts.Console {
			out = zerolog.ConsoleWriter{Out: w, NoColor: !opts.Color, TimeFormat: "15:04:05"}
		}
		zl := zerolog.New(out).Level(zerologLevel(level)).With().Timestamp().Logger()
		return NewZerologLogger(zl), nil
	}

	return nil, fmt.Errorf("unknown log backend %q", opts.Backend)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l <= slog.LevelDebug:
		return zerolog.DebugLevel
	case l <= slog.LevelInfo:
		return zerolog.InfoLevel
	case l <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
