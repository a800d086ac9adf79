// Package logging builds the process-wide slog handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Output formats.
const (
	FormatAuto   = "auto"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// Config selects the handler format and minimum level.
type Config struct {
	Format string
	Level  string
}

// ParseLevel maps debug, info, warn and error (any case) to a slog level.
// Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// NewHandler returns a colorized handler for pretty output (or auto on a
// terminal) and a JSON handler otherwise.
func NewHandler(out io.Writer, cfg Config) (slog.Handler, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	pretty := false
	switch strings.ToLower(cfg.Format) {
	case "", FormatAuto:
		pretty = isTerminal(out)
	case FormatPretty:
		pretty = true
	case FormatJSON:
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: auto, json, pretty)", cfg.Format)
	}

	if pretty {
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(out),
		}), nil
	}
	return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}), nil
}

// Setup installs the handler as the slog default.
func Setup(out io.Writer, cfg Config) error {
	h, err := NewHandler(out, cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
