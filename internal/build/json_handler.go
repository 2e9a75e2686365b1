package build

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// JSONHandler is a btclog handler that emits one JSON object per record. It
// backs the json log format, with the subsystem tag carried as an attribute.
type JSONHandler struct {
	inner  slog.Handler
	level  *atomic.Uint32
	tag    string
	prefix string
}

// NewJSONHandler returns a JSONHandler writing to w at the info level.
func NewJSONHandler(w io.Writer) *JSONHandler {
	inner := slog.NewJSONHandler(w, &slog.HandlerOptions{
		// Filtering happens in Enabled against the btclog level.
		Level: slogLevel(btclog.LevelTrace),
	})

	level := new(atomic.Uint32)
	level.Store(uint32(btclog.LevelInfo))

	return &JSONHandler{inner: inner, level: level}
}

// Enabled is part of the slog.Handler interface.
func (h *JSONHandler) Enabled(_ context.Context, level slog.Level) bool {
	current := h.Level()
	if current == btclog.LevelOff {
		return false
	}

	return level >= slogLevel(current)
}

// Handle is part of the slog.Handler interface.
func (h *JSONHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.prefix != "" {
		r.Message = h.prefix + " " + r.Message
	}
	if h.tag != "" {
		r = r.Clone()
		r.AddAttrs(slog.String("subsystem", h.tag))
	}

	return h.inner.Handle(ctx, r)
}

// WithAttrs is part of the slog.Handler interface.
func (h *JSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.copy()
	c.inner = h.inner.WithAttrs(attrs)

	return c
}

// WithGroup is part of the slog.Handler interface.
func (h *JSONHandler) WithGroup(name string) slog.Handler {
	c := h.copy()
	c.inner = h.inner.WithGroup(name)

	return c
}

// SubSystem is part of the btclog.Handler interface.
func (h *JSONHandler) SubSystem(tag string) btclogv2.Handler {
	c := h.copy()
	c.tag = tag

	return c
}

// WithPrefix is part of the btclog.Handler interface.
func (h *JSONHandler) WithPrefix(prefix string) btclogv2.Handler {
	c := h.copy()
	c.prefix = prefix

	return c
}

// SetLevel is part of the btclog.Handler interface.
func (h *JSONHandler) SetLevel(level btclog.Level) {
	h.level.Store(uint32(level))
}

// Level is part of the btclog.Handler interface.
func (h *JSONHandler) Level() btclog.Level {
	return btclog.Level(h.level.Load())
}

// copy returns a derived handler with its own level, starting from the
// parent's current level.
func (h *JSONHandler) copy() *JSONHandler {
	level := new(atomic.Uint32)
	level.Store(h.level.Load())

	return &JSONHandler{
		inner:  h.inner,
		level:  level,
		tag:    h.tag,
		prefix: h.prefix,
	}
}

var _ btclogv2.Handler = (*JSONHandler)(nil)

// slogLevel maps a btclog level onto the slog scale btclog's own loggers use
// when building records.
func slogLevel(level btclog.Level) slog.Level {
	switch level {
	case btclog.LevelTrace:
		return slog.LevelDebug - 4
	case btclog.LevelDebug:
		return slog.LevelDebug
	case btclog.LevelInfo:
		return slog.LevelInfo
	case btclog.LevelWarn:
		return slog.LevelWarn
	case btclog.LevelError:
		return slog.LevelError
	default:
		return slog.LevelError + 4
	}
}
