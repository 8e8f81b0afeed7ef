package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sadopc/autotrackr/internal/config"
)

// setupLogger configures the logger based on configuration. A configured
// file takes precedence over stderr; the caller runs the returned cleanup.
func setupLogger(cfg config.LoggingConfig) (zerolog.Logger, func(), error) {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	cleanup := func() {}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Logger{}, cleanup, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, cleanup, fmt.Errorf("open log file: %w", err)
		}
		out = f
		cleanup = func() { _ = f.Close() }
	}

	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: cfg.File != ""}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger, cleanup, nil
}

// discardLogger is used by the TUI when no log file is configured, since the
// terminal is owned by the program.
func discardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
