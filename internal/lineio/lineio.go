// Package lineio frames a byte stream into newline-terminated text lines.
package lineio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultMaxLine is the longest inbound line accepted, excluding the terminator.
const DefaultMaxLine = 4096

// ErrLineTooLong is returned when an inbound line exceeds the reader's limit.
var ErrLineTooLong = errors.New("lineio: line too long")

// Reader reads '\n' delimited lines. A '\r' preceding the delimiter is stripped.
type Reader struct {
	br  *bufio.Reader
	max int
}

// NewReader returns a Reader accepting lines of at most max bytes.
// A non-positive max selects DefaultMaxLine.
func NewReader(r io.Reader, max int) *Reader {
	if max <= 0 {
		max = DefaultMaxLine
	}
	// room for "\r\n" so a line of exactly max bytes still fits
	return &Reader{br: bufio.NewReaderSize(r, max+2), max: max}
}

// ReadLine returns the next line without its terminator. At end of stream it
// returns io.EOF; a final unterminated line is returned first.
func (r *Reader) ReadLine() (string, error) {
	buf, err := r.br.ReadSlice('\n')
	switch {
	case err == nil:
	case errors.Is(err, bufio.ErrBufferFull):
		return "", ErrLineTooLong
	case errors.Is(err, io.EOF):
		if len(buf) == 0 {
			return "", io.EOF
		}
	default:
		return "", fmt.Errorf("read: %w", err)
	}

	line := strings.TrimSuffix(string(buf), "\n")
	line = strings.TrimSuffix(line, "\r")
	if len(line) > r.max {
		return "", ErrLineTooLong
	}
	return line, nil
}

// Writer writes lines, each followed by exactly one '\n', and flushes before returning.
// It is not safe for concurrent use.
type Writer struct {
	bw *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteLine writes a single line.
func (w *Writer) WriteLine(line string) error {
	return w.WriteLines(line)
}

// WriteLines writes all lines with a single flush at the end.
func (w *Writer) WriteLines(lines ...string) error {
	for _, line := range lines {
		if _, err := w.bw.WriteString(line); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		if err := w.bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
