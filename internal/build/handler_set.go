package build

import (
	"context"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// HandlerSet fans every log record out to a list of btclog handlers. The
// daemon uses it to write the same stream to the console and to the rotating
// log file, each possibly in a different format.
type HandlerSet struct {
	level btclog.Level
	set   []btclogv2.Handler
}

// NewHandlerSet returns a HandlerSet over the given handlers, starting at the
// info level.
func NewHandlerSet(handlers ...btclogv2.Handler) *HandlerSet {
	h := &HandlerSet{set: handlers}
	h.SetLevel(btclog.LevelInfo)

	return h
}

// Enabled reports whether every member handles records at the given level.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Enabled(ctx context.Context, level slog.Level) bool {
	return allEnabled(ctx, level, asSlog(h.set))
}

// Handle passes the record to each member, stopping on the first error.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) Handle(ctx context.Context, record slog.Record) error {
	return handleAll(ctx, record, asSlog(h.set))
}

// WithAttrs returns a plain slog handler set with attrs applied to each
// member.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	return mapSlog(asSlog(h.set), func(s slog.Handler) slog.Handler {
		return s.WithAttrs(attrs)
	})
}

// WithGroup returns a plain slog handler set with the group opened on each
// member.
//
// NOTE: this is part of the slog.Handler interface.
func (h *HandlerSet) WithGroup(name string) slog.Handler {
	return mapSlog(asSlog(h.set), func(s slog.Handler) slog.Handler {
		return s.WithGroup(name)
	})
}

// SubSystem returns a HandlerSet whose members are tagged with the given
// subsystem.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SubSystem(tag string) btclogv2.Handler {
	return h.derive(func(b btclogv2.Handler) btclogv2.Handler {
		return b.SubSystem(tag)
	})
}

// WithPrefix returns a HandlerSet whose members prefix every message.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) WithPrefix(prefix string) btclogv2.Handler {
	return h.derive(func(b btclogv2.Handler) btclogv2.Handler {
		return b.WithPrefix(prefix)
	})
}

// SetLevel sets the level of every member.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) SetLevel(level btclog.Level) {
	for _, handler := range h.set {
		handler.SetLevel(level)
	}
	h.level = level
}

// Level returns the level last set on the set.
//
// NOTE: this is part of the btclog.Handler interface.
func (h *HandlerSet) Level() btclog.Level {
	return h.level
}

// derive builds a new set by applying f to each member. The derived set
// inherits the current level.
func (h *HandlerSet) derive(
	f func(btclogv2.Handler) btclogv2.Handler) *HandlerSet {

	derived := &HandlerSet{
		level: h.level,
		set:   make([]btclogv2.Handler, len(h.set)),
	}
	for i, handler := range h.set {
		derived.set[i] = f(handler)
	}

	return derived
}

var _ btclogv2.Handler = (*HandlerSet)(nil)

// slogSet is the plain slog.Handler produced once attrs or groups have been
// applied, since those calls leave the btclog interface.
type slogSet []slog.Handler

// Enabled is part of the slog.Handler interface.
func (s slogSet) Enabled(ctx context.Context, level slog.Level) bool {
	return allEnabled(ctx, level, s)
}

// Handle is part of the slog.Handler interface.
func (s slogSet) Handle(ctx context.Context, record slog.Record) error {
	return handleAll(ctx, record, s)
}

// WithAttrs is part of the slog.Handler interface.
func (s slogSet) WithAttrs(attrs []slog.Attr) slog.Handler {
	return mapSlog(s, func(h slog.Handler) slog.Handler {
		return h.WithAttrs(attrs)
	})
}

// WithGroup is part of the slog.Handler interface.
func (s slogSet) WithGroup(name string) slog.Handler {
	return mapSlog(s, func(h slog.Handler) slog.Handler {
		return h.WithGroup(name)
	})
}

var _ slog.Handler = (slogSet)(nil)

func asSlog(handlers []btclogv2.Handler) []slog.Handler {
	out := make([]slog.Handler, len(handlers))
	for i, h := range handlers {
		out[i] = h
	}

	return out
}

func mapSlog(handlers []slog.Handler,
	f func(slog.Handler) slog.Handler) slogSet {

	out := make(slogSet, len(handlers))
	for i, h := range handlers {
		out[i] = f(h)
	}

	return out
}

func allEnabled(ctx context.Context, level slog.Level,
	handlers []slog.Handler) bool {

	for _, h := range handlers {
		if !h.Enabled(ctx, level) {
			return false
		}
	}

	return true
}

func handleAll(ctx context.Context, record slog.Record,
	handlers []slog.Handler) error {

	for _, h := range handlers {
		if err := h.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}

	return nil
}
