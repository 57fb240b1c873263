package display

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// levelWidth pads level names so messages line up ("WARNING" is the widest)
const levelWidth = 7

// Handler is a slog.Handler that writes one plain line per record
type Handler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	theme  *Theme
	name   string
	attrs  string
	groups []string
	now    func() time.Time
}

// NewHandler creates a Handler writing to w
func NewHandler(w io.Writer, opts Options) *Handler {
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	theme := DefaultTheme()
	if opts.NoColor {
		theme = NoColorTheme()
	}
	return &Handler{
		mu:    &sync.Mutex{},
		w:     w,
		level: level,
		theme: theme,
		now:   time.Now,
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	name := h.name
	var extra strings.Builder
	extra.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == LoggerKey && len(h.groups) == 0 {
			name = a.Value.String()
			return true
		}
		h.appendAttr(&extra, h.groups, a)
		return true
	})

	if name != "" {
		b.WriteString(h.theme.Name("[" + name + "]"))
		b.WriteByte(' ')
	}

	ts := r.Time
	if ts.IsZero() {
		ts = h.now()
	}
	b.WriteString(h.theme.Timestamp(ts.UTC().Format("15:04:05")))
	b.WriteByte(' ')
	b.WriteString(h.colorLevel(r.Level, fmt.Sprintf("%-*s", levelWidth, levelName(r.Level))))
	b.WriteByte(' ')
	b.WriteString(r.Message)
	if extra.Len() > 0 {
		b.WriteString(h.theme.Attr(extra.String()))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		if a.Key == LoggerKey && len(h.groups) == 0 {
			h2.name = a.Value.String()
			continue
		}
		h.appendAttr(&b, h.groups, a)
	}
	h2.attrs = b.String()
	return h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(append([]string(nil), h.groups...), name)
	return h2
}

func (h *Handler) clone() *Handler {
	h2 := *h
	return &h2
}

func (h *Handler) appendAttr(b *strings.Builder, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := groups
		if a.Key != "" {
			sub = append(append([]string(nil), groups...), a.Key)
		}
		for _, ga := range a.Value.Group() {
			h.appendAttr(b, sub, ga)
		}
		return
	}

	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	val := a.Value.String()
	if strings.ContainsAny(val, " \t\n\"") {
		val = fmt.Sprintf("%q", val)
	}
	fmt.Fprintf(b, " %s=%s", key, val)
}

func (h *Handler) colorLevel(level slog.Level, s string) string {
	switch {
	case level >= slog.LevelError:
		return h.theme.Error(s)
	case level >= slog.LevelWarn:
		return h.theme.Warning(s)
	case level >= slog.LevelInfo:
		return h.theme.Info(s)
	default:
		return h.theme.Debug(s)
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARNING"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
