package build

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

const (
	// LogFormatHuman is the btclog text format.
	LogFormatHuman = "human"

	// LogFormatJSON writes one JSON object per record.
	LogFormatJSON = "json"
)

// LogConfig describes where and how the daemon logs.
type LogConfig struct {
	// Format is LogFormatHuman or LogFormatJSON.
	Format string

	// Level is a btclog level name such as "info" or "debug".
	Level string

	// Dir enables the rotating log file when non-empty.
	Dir string

	// MaxFiles is the number of rotated files to keep.
	MaxFiles int

	// MaxFileSizeMB is the rotation threshold.
	MaxFileSizeMB int
}

// LogManager owns the root log handler and hands out subsystem loggers.
type LogManager struct {
	root    *HandlerSet
	rotator *RotatingLogWriter
}

// NewLogManager builds the console handler, plus a file handler when a log
// directory is configured, and sets both to the configured level.
func NewLogManager(cfg LogConfig, console io.Writer) (*LogManager, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	newHandler := func(w io.Writer) (btclogv2.Handler, error) {
		switch cfg.Format {
		case "", LogFormatHuman:
			return btclogv2.NewDefaultHandler(w), nil

		case LogFormatJSON:
			return NewJSONHandler(w), nil

		default:
			return nil, fmt.Errorf("unknown log format %q",
				cfg.Format)
		}
	}

	consoleHandler, err := newHandler(console)
	if err != nil {
		return nil, err
	}
	handlers := []btclogv2.Handler{consoleHandler}

	m := &LogManager{}
	if cfg.Dir != "" {
		m.rotator, err = NewRotatingLogWriter(
			cfg.Dir, DefaultLogFilename, cfg.MaxFileSizeMB,
			cfg.MaxFiles,
		)
		if err != nil {
			return nil, err
		}

		fileHandler, err := newHandler(m.rotator)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, fileHandler)
	}

	m.root = NewHandlerSet(handlers...)
	m.root.SetLevel(level)

	return m, nil
}

// Logger returns a structured logger tagged with the given subsystem.
func (m *LogManager) Logger(subsystem string) btclogv2.Logger {
	return btclogv2.NewSLogger(m.root.SubSystem(subsystem))
}

// SlogLogger returns a plain slog logger for libraries that take one.
func (m *LogManager) SlogLogger(subsystem string) *slog.Logger {
	return slog.New(m.root.SubSystem(subsystem))
}

// Close flushes and closes the log file, if any.
func (m *LogManager) Close() error {
	if m.rotator == nil {
		return nil
	}

	return m.rotator.Close()
}

// ParseLevel converts a level name into a btclog level. The empty string
// means info.
func ParseLevel(s string) (btclog.Level, error) {
	if s == "" {
		return btclog.LevelInfo, nil
	}

	level, ok := btclog.LevelFromString(s)
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", s)
	}

	return level, nil
}
