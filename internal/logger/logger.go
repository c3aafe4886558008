// Package logger provides structured logging for the mapflag daemon, pretty in development and JSON in production.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ComponentKey is the attribute Component sets. The pretty handler prints it
// as a bracketed column instead of a key=value pair.
const ComponentKey = "component"

const (
	ansiReset = "\033[0m"
	ansiDim   = "\033[2m"
	ansiBold  = "\033[1m"
	ansiBlue  = "\033[34m"
	ansiCyan  = "\033[36m"
)

var levelStyles = map[slog.Level]struct{ label, color string }{
	slog.LevelDebug: {"DBG", "\033[35m"},
	slog.LevelInfo:  {"INF", "\033[32m"},
	slog.LevelWarn:  {"WRN", "\033[33m"},
	slog.LevelError: {"ERR", "\033[31m"},
}

// Logger wraps slog.Logger with the helpers the daemon uses.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Writer io.Writer
	// Format is "json" or "pretty". Empty picks by Environment.
	Format      string
	Environment string
	Level       slog.Level
	AddSource   bool
}

// New creates a logger writing to cfg.Writer, or stdout when nil.
func New(cfg Config) *Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: shortSource,
	}

	format := cfg.Format
	if format == "" && cfg.Environment == "production" {
		format = "json"
	}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = NewPrettyHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h)}
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// ParseLevel converts a level name. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *slog.Logger {
	return l.With(slog.String(ComponentKey, name))
}

func shortSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	if src, ok := a.Value.Any().(*slog.Source); ok {
		return slog.String(slog.SourceKey, filepath.Base(src.File)+":"+strconv.Itoa(src.Line))
	}
	return a
}

// PrettyHandler writes one coloured line per record:
//
//	15:04:05 INF [session] token refreshed delay=5s
type PrettyHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	opts   slog.HandlerOptions
	comp   string
	attrs  string
	groups string
}

// NewPrettyHandler creates a PrettyHandler. A nil opts logs at info and above.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{mu: &sync.Mutex{}, w: w}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

// Enabled implements slog.Handler.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.opts.Level == nil {
		return level >= slog.LevelInfo
	}
	return level >= h.opts.Level.Level()
}

// Handle implements slog.Handler.
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	b.WriteString(ansiDim + r.Time.Format(time.TimeOnly) + ansiReset + " ")

	style, ok := levelStyles[r.Level]
	if !ok {
		style.label, style.color = r.Level.String(), ansiDim
	}
	b.WriteString(style.color + style.label + ansiReset + " ")

	comp := h.comp
	var tail strings.Builder
	tail.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == ComponentKey && h.groups == "" {
			comp = a.Value.String()
			return true
		}
		h.appendAttr(&tail, h.groups, a)
		return true
	})
	if h.opts.AddSource && r.PC != 0 {
		src := shortSource(nil, slog.Any(slog.SourceKey, r.Source()))
		h.appendAttr(&tail, "", src)
	}

	if comp != "" {
		b.WriteString(ansiBlue + "[" + comp + "]" + ansiReset + " ")
	}
	b.WriteString(ansiBold + r.Message + ansiReset)
	if tail.Len() > 0 {
		b.WriteString(ansiCyan + tail.String() + ansiReset)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs implements slog.Handler.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		if a.Key == ComponentKey && h.groups == "" {
			next.comp = a.Value.String()
			continue
		}
		h.appendAttr(&b, h.groups, a)
	}
	next.attrs = b.String()
	return &next
}

// WithGroup implements slog.Handler. Keys logged afterwards are prefixed with "name.".
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = h.groups + name + "."
	return &next
}

func (h *PrettyHandler) appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			h.appendAttr(b, prefix, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix + a.Key + "=" + formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = v.String()
		}
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return strconv.Quote(s)
	}
	return s
}
