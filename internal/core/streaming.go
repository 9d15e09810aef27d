package core

// streaming.go provides the reader chain that sits between an uploaded file
// and the CSV decoder:
//
//   - bomReader: drops a leading UTF-8 BOM (0xEF 0xBB 0xBF) written by Excel
//   - utf8Sanitizer: replaces invalid UTF-8 bytes with '?'
//   - CountingReader: tracks bytes consumed for progress and enforces the size cap
//
// Use WrapForStreaming to apply all of them in the correct order.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomReader skips the UTF-8 BOM if the stream starts with one.
type bomReader struct {
	br      *bufio.Reader
	checked bool
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{br: bufio.NewReader(r)}
}

func (r *bomReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		head, err := r.br.Peek(len(utf8BOM))
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			_, _ = r.br.Discard(len(utf8BOM))
		}
	}
	return r.br.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' without buffering the
// whole file. A multi-byte rune split across reads is carried to the next
// call. The replacement is one byte so output never grows past the input.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, s.pending)
	s.pending = append(s.pending[:0], s.pending[n:]...)
	if len(s.pending) > 0 {
		// p is smaller than one rune; hand the bytes over unchecked
		return n, nil
	}

	m, err := s.r.Read(p[n:])
	n += m
	if n == 0 {
		return 0, err
	}

	data := p[:n]
	if utf8.Valid(data) {
		return n, err
	}

	atEOF := err == io.EOF

	w := 0
	for i := 0; i < len(data); {
		c := data[i]
		if c < utf8.RuneSelf {
			data[w] = c
			w++
			i++
			continue
		}
		if !atEOF && !utf8.FullRune(data[i:]) {
			s.pending = append(s.pending, data[i:]...)
			break
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			i++
			continue
		}
		copy(data[w:], data[i:i+size])
		w += size
		i += size
	}

	// Everything left is an incomplete rune; ask the caller to read again.
	if w == 0 && err == nil {
		return s.Read(p)
	}
	return w, err
}

// CountingReader tracks bytes read for progress reporting and rejects
// streams longer than Limit.
type CountingReader struct {
	r         io.Reader
	BytesRead int64
	Total     int64 // 0 if unknown
	Limit     int64 // 0 for no limit
}

// NewCountingReader creates a counting reader with optional total size and limit.
func NewCountingReader(r io.Reader, total, limit int64) *CountingReader {
	return &CountingReader{r: r, Total: total, Limit: limit}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.BytesRead += int64(n)
	if c.Limit > 0 && c.BytesRead > c.Limit {
		return n, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, c.Limit)
	}
	return n, err
}

// Percent returns bytes consumed as a percentage of Total, clamped to
// [0, 99]. Reaching 100 is reserved for an explicit completion signal.
func (c *CountingReader) Percent() int {
	if c.Total <= 0 {
		return 0
	}
	pct := int(c.BytesRead * 100 / c.Total)
	return clampPercent(pct, 99)
}

// WrapForStreaming chains BOM skipping, UTF-8 sanitization and byte counting.
//
// Counting wraps the raw reader so progress and the size cap reflect bytes
// actually taken from the upload, not bytes after sanitization.
func WrapForStreaming(r io.Reader, totalSize, limit int64) (io.Reader, *CountingReader) {
	counter := NewCountingReader(r, totalSize, limit)
	return newUTF8Sanitizer(newBOMReader(counter)), counter
}

func clampPercent(pct, max int) int {
	if pct < 0 {
		return 0
	}
	if pct > max {
		return max
	}
	return pct
}
