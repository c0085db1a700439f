// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging builds the run logger and the colored status printer used
// for per-item operator output.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// Options configures the run logger.
type Options struct {
	// Level is one of debug, info, warn, error (default info).
	Level string

	// NoColor disables ANSI colors in both the logger and the printer.
	NoColor bool

	// RunID is stamped on every event when set.
	RunID string
}

// New returns a console logger writing to w.
func New(w io.Writer, opts Options) (zerolog.Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if opts.NoColor {
		color.NoColor = true
	}

	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: opts.NoColor}
	ctx := zerolog.New(cw).Level(lvl).With().Timestamp()
	if opts.RunID != "" {
		ctx = ctx.Str("run", opts.RunID)
	}
	return ctx.Logger(), nil
}

// ParseLevel maps a level name to a zerolog level. An empty name is info.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", s)
	}
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
)

// Printer writes status lines of the form "<label>: <message>" with the
// label colored by outcome.
type Printer struct {
	w io.Writer
}

// NewPrinter returns a printer writing to w. A nil w discards output.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = io.Discard
	}
	return &Printer{w: w}
}

// Success prints a green status line.
func (p *Printer) Success(label, format string, args ...any) { p.print(green, label, format, args) }

// Warning prints a yellow status line.
func (p *Printer) Warning(label, format string, args ...any) { p.print(yellow, label, format, args) }

// Error prints a red status line.
func (p *Printer) Error(label, format string, args ...any) { p.print(red, label, format, args) }

// Info prints a blue status line.
func (p *Printer) Info(label, format string, args ...any) { p.print(blue, label, format, args) }

func (p *Printer) print(paint func(...any) string, label, format string, args []any) {
	fmt.Fprintf(p.w, "%s %s\n", paint(fmt.Sprintf("%-9s", label+":")), fmt.Sprintf(format, args...))
}
