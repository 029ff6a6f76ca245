// Package colorlog provides a compact slog handler for command-line tools.
// Lines look like:
//
//	2026/10/14 09:12:44  (shdc)  compiled  [ output = bin/Model.vert.bin ]
package colorlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const (
	colorReset  = "\033[0m"
	colorGray   = "\033[37m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorBlue   = "\033[34m"
)

const timeLayout = "2006/01/02 15:04:05"

type Options struct {
	Output   io.Writer    // default: os.Stderr
	Level    slog.Leveler // default: slog.LevelInfo
	UseColor *bool        // nil = color only when Output is a terminal
}

type Handler struct {
	label string
	out   io.Writer
	level slog.Leveler
	color bool
	mu    *sync.Mutex // shared by clones
	attrs []slog.Attr
	group string
}

func New(label string, opts ...Options) *slog.Logger {
	return slog.New(NewHandler(label, opts...))
}

func NewHandler(label string, opts ...Options) *Handler {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Output == nil {
		o.Output = os.Stderr
	}
	if o.Level == nil {
		o.Level = slog.LevelInfo
	}
	return &Handler{
		label: label,
		out:   o.Output,
		level: o.Level,
		color: detectColor(o.Output, o.UseColor),
		mu:    &sync.Mutex{},
	}
}

func detectColor(w io.Writer, override *bool) bool {
	if override != nil {
		return *override
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	if !r.Time.IsZero() {
		b.WriteString(h.paint(colorGray, r.Time.Format(timeLayout)))
		b.WriteString("  ")
	}
	b.WriteString("(" + h.paint(colorBlue, h.label) + ")  ")
	b.WriteString(h.paint(levelColor(r.Level), levelPrefix(r.Level)+r.Message))

	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.qualify(a))
		return true
	})
	for i, a := range attrs {
		if i == 0 {
			b.WriteString("  ")
		} else {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s %s %v %s",
			h.paint(colorGray, "["),
			h.paint(colorGray, a.Key+" ="),
			a.Value.Resolve().Any(),
			h.paint(colorGray, "]"),
		)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	for _, a := range attrs {
		c.attrs = append(c.attrs, h.qualify(a))
	}
	return c
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.group = h.group + name + "."
	return c
}

func (h *Handler) clone() *Handler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	return &c
}

func (h *Handler) qualify(a slog.Attr) slog.Attr {
	if h.group == "" {
		return a
	}
	return slog.Attr{Key: h.group + a.Key, Value: a.Value}
}

func (h *Handler) paint(color, s string) string {
	if !h.color {
		return s
	}
	return color + s + colorReset
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorCyan
	default:
		return colorGray
	}
}

func levelPrefix(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR  "
	case level >= slog.LevelWarn:
		return "WARNING  "
	case level >= slog.LevelInfo:
		return ""
	default:
		return "DEBUG  "
	}
}
