package trace

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends events to a writer as a stream of CBOR records.
// It is safe for concurrent use. Encoding errors are counted rather than
// propagated, since Log has no error return.
type FileLogger struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	enc    *cbor.Encoder

	dropped uint64
}

// NewFileLogger creates a logger appending to the file at path, creating it
// if necessary.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace log: %w", err)
	}
	return &FileLogger{w: f, closer: f, enc: NewEncoder(f)}, nil
}

// NewWriterLogger creates a logger writing CBOR records to w.
func NewWriterLogger(w io.Writer) *FileLogger {
	return &FileLogger{w: w, enc: NewEncoder(w)}
}

// Log appends one event.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(event); err != nil {
		l.dropped++
	}
}

// Dropped returns the number of events lost to encoding or write errors.
func (l *FileLogger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes the underlying file, if the logger owns one.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Compile-time interface satisfaction check.
var _ Logger = (*FileLogger)(nil)

// ReadAll decodes every event from a CBOR record stream, typically a file
// written by FileLogger.
func ReadAll(r io.Reader) ([]Event, error) {
	dec := NewDecoder(r)
	var events []Event
	for {
		var event Event
		if err := dec.Decode(&event); err != nil {
			if err == io.EOF {
				return events, nil
			}
			return events, fmt.Errorf("failed to decode trace event: %w", err)
		}
		events = append(events, event)
	}
}
