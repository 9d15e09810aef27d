package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxParseWarnings caps the per-file warning list. Further warnings are
// counted and summarized in one final entry.
var MaxParseWarnings = 100

// ContextCheckInterval is how often (in records) the parser checks for
// context cancellation.
var ContextCheckInterval = 100

// HeaderTransform maps a raw header cell to the key used in RawRow.
type HeaderTransform func(string) string

// DefaultHeaderTransform lower-cases and trims a header.
func DefaultHeaderTransform(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// Parser turns CSV input into header-keyed records. The first non-blank
// line is the header. Malformed lines become warnings; only empty or
// unreadable input is fatal.
type Parser struct {
	Transform HeaderTransform
	// MaxBytes rejects streams longer than this. 0 means no limit.
	MaxBytes int64
}

// NewParser creates a parser with the default header transform.
func NewParser(maxBytes int64) *Parser {
	return &Parser{Transform: DefaultHeaderTransform, MaxBytes: maxBytes}
}

// ParseResult is the materialized output of ParseAll.
type ParseResult struct {
	Headers  []string
	Records  []Record
	Warnings []string
}

// ParseString parses CSV text.
func (p *Parser) ParseString(text string) (*ParseResult, error) {
	return p.ParseAll(strings.NewReader(text))
}

// ParseAll reads the whole input into memory.
func (p *Parser) ParseAll(r io.Reader) (*ParseResult, error) {
	result := &ParseResult{}
	sr, err := p.Stream(context.Background(), r, 0, func(rec Record) error {
		result.Records = append(result.Records, rec)
		return nil
	}, nil)
	if sr != nil {
		result.Headers = sr.Headers
		result.Warnings = sr.Warnings
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// StreamResult summarizes a streamed parse.
type StreamResult struct {
	Headers  []string
	Rows     int
	Warnings []string
}

// Stream parses r record by record, calling fn for each non-blank data
// line. totalSize drives progress (0 disables it). progress, if non-nil,
// receives non-decreasing percentages in [0, 99]; the caller owns the
// terminal 100.
//
// An error returned by fn stops the stream and is returned unchanged, as is
// a context error. The StreamResult is returned even on error.
func (p *Parser) Stream(
	ctx context.Context,
	r io.Reader,
	totalSize int64,
	fn func(Record) error,
	progress func(percent int),
) (*StreamResult, error) {
	transform := p.Transform
	if transform == nil {
		transform = DefaultHeaderTransform
	}

	wrapped, counter := WrapForStreaming(r, totalSize, p.MaxBytes)

	res := &StreamResult{}
	warn := newWarningList(MaxParseWarnings)
	defer func() { res.Warnings = warn.list() }()

	rr := newRecordReader(wrapped, warn)

	headers, err := readHeader(rr, transform, warn)
	if err != nil {
		return res, err
	}
	res.Headers = headers

	lastPct := 0
	for {
		rec, line, err := rr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, &UnreadableInputError{Err: err}
		}

		if isBlankRecord(rec) {
			continue
		}

		row := buildRow(headers, rec, line, warn)
		res.Rows++

		if err := fn(Record{Line: line, Fields: row}); err != nil {
			return res, err
		}

		if progress != nil {
			if pct := counter.Percent(); pct > lastPct {
				lastPct = pct
				progress(pct)
			}
		}

		if res.Rows%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
	}

	return res, nil
}

// readHeader returns the transformed header of the first non-blank line.
func readHeader(rr *recordReader, transform HeaderTransform, warn *warningList) ([]string, error) {
	for {
		rec, _, err := rr.Read()
		if errors.Is(err, io.EOF) {
			return nil, &EmptyInputError{}
		}
		if err != nil {
			return nil, &UnreadableInputError{Err: err}
		}
		if isBlankRecord(rec) {
			continue
		}

		headers := make([]string, len(rec))
		seen := make(map[string]bool, len(rec))
		named := 0
		for i, h := range rec {
			key := transform(h)
			headers[i] = key
			if key == "" {
				continue
			}
			named++
			if seen[key] {
				warn.add(fmt.Sprintf("duplicate column %q: first non-blank value is used", key))
			}
			seen[key] = true
		}
		if named == 0 {
			return nil, &EmptyInputError{}
		}
		return headers, nil
	}
}

// buildRow maps cells to headers. Missing trailing cells become blank;
// extra non-blank cells are dropped with a warning.
func buildRow(headers, rec []string, line int, warn *warningList) RawRow {
	row := make(RawRow, len(headers))
	for i, key := range headers {
		if key == "" {
			continue
		}
		val := ""
		if i < len(rec) {
			val = rec[i]
		}
		if existing, ok := row[key]; ok && strings.TrimSpace(existing) != "" {
			continue
		}
		row[key] = val
	}

	if len(rec) > len(headers) && !isBlankRecord(rec[len(headers):]) {
		warn.add(fmt.Sprintf("line %d: %d values beyond the header were ignored", line, len(rec)-len(headers)))
	}
	return row
}

func isBlankRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// warningList collects up to max warnings and counts the rest.
type warningList struct {
	max        int
	items      []string
	suppressed int
}

func newWarningList(max int) *warningList {
	return &warningList{max: max}
}

func (w *warningList) add(msg string) {
	if w.max > 0 && len(w.items) >= w.max {
		w.suppressed++
		return
	}
	w.items = append(w.items, msg)
}

func (w *warningList) list() []string {
	out := make([]string, len(w.items), len(w.items)+1)
	copy(out, w.items)
	if w.suppressed > 0 {
		out = append(out, fmt.Sprintf("%d more warnings not shown", w.suppressed))
	}
	return out
}
