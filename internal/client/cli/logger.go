package cli

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/dmitrijs2005/gpstracker/internal/client/config"
	"github.com/dmitrijs2005/gpstracker/internal/logging"
)

var isTerminal = term.IsTerminal

// newLogger logs to cfg.LogFile as JSON, or to stderr in console format
// when no file is set. The returned func closes the file.
func newLogger(cfg *config.Config) (logging.Logger, func() error, error) {
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		l, err := logging.New(f, logging.Options{Backend: cfg.LogBackend, Level: cfg.LogLevel})
		if err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		return l, f.Close, nil
	}

	l, err := newConsoleLogger(os.Stderr, isTerminal(int(os.Stderr.Fd())), cfg)
	if err != nil {
		return nil, nil, err
	}
	return l, func() error { return nil }, nil
}

func newConsoleLogger(w io.Writer, color bool, cfg *config.Config) (logging.Logger, error) {
	return logging.New(w, logging.Options{
		Backend: cfg.LogBackend,
		Level:   cfg.LogLevel,
		Console: true,
		Color:   color,
	})
}
