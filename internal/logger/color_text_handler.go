package logger

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const ansiReset = "\033[0m"

// ColorTextHandler renders records as single text lines with an ANSI-colored
// level for interactive terminals. It writes the escape codes itself:
// routing them through slog.TextHandler would quote-escape them inside the
// message value, printing literal `\x1b[...` instead of color.
type ColorTextHandler struct {
	opts     slog.HandlerOptions
	showTime bool
	attrs    []slog.Attr

	mu *sync.Mutex
	w  io.Writer
}

func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	h := &ColorTextHandler{showTime: showTime, mu: &sync.Mutex{}, w: w}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

// Enabled implements slog.Handler.
func (h *ColorTextHandler) Enabled(_ context.Context, l slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return l >= min
}

// WithAttrs implements slog.Handler. The clone shares the writer and its
// mutex so concurrent handlers never interleave lines.
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &c
}

// WithGroup implements slog.Handler; grouped attrs are rendered flat.
func (h *ColorTextHandler) WithGroup(string) slog.Handler { return h }

// Handle implements slog.Handler.
func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	if h.showTime && !r.Time.IsZero() {
		b.WriteString(r.Time.Format(time.RFC3339))
		b.WriteByte(' ')
	}
	b.WriteString(levelColor(r.Level))
	b.WriteString(r.Level.String())
	b.WriteString(ansiReset)
	b.WriteString("  ")
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		appendAttr(&b, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func appendAttr(b *strings.Builder, a slog.Attr) {
	val := a.Value.String()
	if strings.ContainsAny(val, " \t\"=") {
		val = strconv.Quote(val)
	}
	b.WriteByte(' ')
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(val)
}

func levelColor(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "\033[36m" // cyan
	case l < slog.LevelWarn:
		return "\033[32m" // green
	case l < slog.LevelError:
		return "\033[33m" // yellow
	default:
		return "\033[31m" // red
	}
}
