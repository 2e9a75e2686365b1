package build

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

const (
	// DefaultMaxLogFiles is the number of rotated log files kept on disk.
	DefaultMaxLogFiles = 10

	// DefaultMaxLogFileSize is the size in MB at which the log rotates.
	DefaultMaxLogFileSize = 20

	// DefaultLogFilename is the name of the daemon's log file.
	DefaultLogFilename = "pulljoyd.log"
)

// RotatingLogWriter is an io.Writer backed by a jrick/logrotate rotator.
// Writes go through a pipe drained by the rotator goroutine. Rotated files
// are gzip compressed.
type RotatingLogWriter struct {
	pipe    *io.PipeWriter
	rotator *rotator.Rotator
	done    chan struct{}
}

// NewRotatingLogWriter creates the log directory if needed and starts a
// rotator writing to dir/filename. maxSizeMB and maxFiles fall back to the
// package defaults when zero.
func NewRotatingLogWriter(dir, filename string, maxSizeMB,
	maxFiles int) (*RotatingLogWriter, error) {

	if filename == "" {
		filename = DefaultLogFilename
	}
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxLogFileSize
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxLogFiles
	}

	logFile := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	// The rotator threshold is expressed in KB.
	r, err := rotator.New(logFile, int64(maxSizeMB*1024), false, maxFiles)
	if err != nil {
		return nil, fmt.Errorf("create file rotator: %w", err)
	}
	r.SetCompressor(gzip.NewWriter(nil), ".gz")

	pr, pw := io.Pipe()
	w := &RotatingLogWriter{
		pipe:    pw,
		rotator: r,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(w.done)

		// The rotator is the log sink, so its own failure can only go
		// to stderr.
		if err := r.Run(pr); err != nil {
			_, _ = fmt.Fprintf(
				os.Stderr, "log rotator failed: %v\n", err,
			)
		}
	}()

	return w, nil
}

// Write implements io.Writer.
func (w *RotatingLogWriter) Write(b []byte) (int, error) {
	return w.pipe.Write(b)
}

// Close flushes pending writes and waits for the rotator to exit.
func (w *RotatingLogWriter) Close() error {
	err := w.pipe.Close()
	<-w.done

	return err
}
