package transport

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// Framing constants.
const (
	// DefaultMaxLineLen is the default maximum command line length.
	DefaultMaxLineLen = 4096

	// DefaultPort is the conventional raw-socket SCPI port.
	DefaultPort = 5025
)

// ErrLineTooLong indicates a command line exceeding the maximum length.
// The session is torn down when this occurs; there is no way to resync a
// line stream after an oversized frame.
var ErrLineTooLong = errors.New("command line too long")

// LineReader reads terminated ASCII lines from an underlying reader,
// reassembling partial reads and splitting batched commands. Empty lines
// are skipped.
type LineReader struct {
	r          *bufio.Reader
	maxLineLen int
}

// NewLineReader creates a line reader with the default maximum line length.
func NewLineReader(r io.Reader) *LineReader {
	return NewLineReaderWithMax(r, DefaultMaxLineLen)
}

// NewLineReaderWithMax creates a line reader with a custom maximum length.
func NewLineReaderWithMax(r io.Reader, maxLineLen int) *LineReader {
	if maxLineLen <= 0 {
		maxLineLen = DefaultMaxLineLen
	}
	return &LineReader{r: bufio.NewReader(r), maxLineLen: maxLineLen}
}

// ReadLine returns the next non-empty line without its terminator.
// It suspends until a full line is available or the connection closes.
// A final unterminated line before EOF is delivered as-is.
func (lr *LineReader) ReadLine() (string, error) {
	var buf []byte
	for {
		b, err := lr.r.ReadByte()
		if err != nil {
			if err == io.EOF && len(buf) > 0 {
				return string(buf), nil
			}
			return "", err
		}

		switch b {
		case '\n':
			if len(buf) == 0 {
				continue
			}
			return string(buf), nil

		case '\r':
			// Swallow the LF of a CRLF pair so it does not read as an
			// extra empty line.
			if next, err := lr.r.Peek(1); err == nil && next[0] == '\n' {
				_, _ = lr.r.ReadByte()
			}
			if len(buf) == 0 {
				continue
			}
			return string(buf), nil

		default:
			if len(buf) >= lr.maxLineLen {
				return "", ErrLineTooLong
			}
			buf = append(buf, b)
		}
	}
}

// LineWriter writes LF-terminated response lines to an underlying writer.
type LineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineWriter creates a line writer.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// WriteLine writes one terminated line.
// Thread-safe: can be called from multiple goroutines.
func (lw *LineWriter) WriteLine(line string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := lw.w.Write(append([]byte(line), '\n'))
	return err
}
