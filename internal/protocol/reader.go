package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// DefaultLineMax is the size of the line buffer, terminator included.
const DefaultLineMax = 64

// ErrTruncated is returned once for every line that does not fit the buffer.
var ErrTruncated = errors.New("truncated input")

// Reader splits a command stream into lines using a bounded buffer.
//
// Each read takes at most max-1 bytes or stops after a newline. A chunk with
// no '\r' or '\n' in it is part of an overlong line: the first such chunk
// yields ErrTruncated and puts the reader into the skipping state, in which
// chunks are dropped silently. The first terminated chunk seen while
// skipping is the tail of the overlong line; it is dropped as well and the
// reader goes back to normal.
type Reader struct {
	r        *bufio.Reader
	max      int
	buf      []byte
	err      error
	skipping bool
}

// NewReader returns a Reader using a buffer of max bytes. Values below 3
// select DefaultLineMax.
func NewReader(r io.Reader, max int) *Reader {
	if max < 3 {
		max = DefaultLineMax
	}
	return &Reader{
		r:   bufio.NewReader(r),
		max: max,
		buf: make([]byte, 0, max),
	}
}

// Next returns the next complete line without its terminator. It returns
// ErrTruncated for an overlong line, io.EOF at the clean end of the stream
// and any other error as reported by the underlying reader.
func (r *Reader) Next() (string, error) {
	for {
		chunk, err := r.chunk()
		if err != nil {
			return "", err
		}

		n := bytes.IndexAny(chunk, "\r\n")
		if n < 0 {
			if r.skipping {
				continue
			}
			r.skipping = true
			return "", ErrTruncated
		}
		if r.skipping {
			r.skipping = false
			continue
		}
		return string(chunk[:n]), nil
	}
}

// Skipping reports whether the reader is discarding the rest of an
// overlong line.
func (r *Reader) Skipping() bool {
	return r.skipping
}

// chunk reads like fgets. A partial chunk at end of stream is returned and
// io.EOF is reported on the following call. Data read before any other
// error is discarded.
func (r *Reader) chunk() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}

	r.buf = r.buf[:0]
	for len(r.buf) < r.max-1 {
		c, err := r.r.ReadByte()
		if err != nil {
			r.err = err
			if errors.Is(err, io.EOF) && len(r.buf) > 0 {
				return r.buf, nil
			}
			return nil, err
		}
		r.buf = append(r.buf, c)
		if c == '\n' {
			break
		}
	}
	return r.buf, nil
}
