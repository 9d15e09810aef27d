package core

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxRecordLines bounds how many physical lines one quoted field may span.
// A quote still open after that many lines is treated as unterminated.
var MaxRecordLines = 1000

// physicalLine is one newline-terminated line of input.
type physicalLine struct {
	text string
	num  int
}

// recordReader splits input into logical CSV records before decoding them,
// so an unterminated quoted field costs only its own row. When a quote is
// still open at end of input (or after MaxRecordLines), the row that
// opened it is dropped with a warning and reading resumes on the next
// physical line.
type recordReader struct {
	br     *bufio.Reader
	warn   *warningList
	replay []physicalLine
	line   int

	// decoded records of the current chunk not yet returned
	queue []parsedRecord
}

type parsedRecord struct {
	fields []string
	line   int
}

func newRecordReader(r io.Reader, warn *warningList) *recordReader {
	return &recordReader{br: bufio.NewReader(r), warn: warn}
}

// Read returns the next record and the physical line it starts on.
// io.EOF marks the end of input; any other error is a read failure.
func (rr *recordReader) Read() ([]string, int, error) {
	for len(rr.queue) == 0 {
		chunk, start, err := rr.nextChunk()
		if err != nil {
			return nil, 0, err
		}
		rr.decode(chunk, start)
	}
	rec := rr.queue[0]
	rr.queue = rr.queue[1:]
	return rec.fields, rec.line, nil
}

// nextChunk collects the physical lines of one logical record.
func (rr *recordReader) nextChunk() (string, int, error) {
	var lines []physicalLine
	inQuote := false

	for {
		l, ok, err := rr.nextLine()
		if err != nil {
			return "", 0, err
		}
		if !ok && len(lines) == 0 {
			return "", 0, io.EOF
		}
		if !ok || len(lines) >= MaxRecordLines {
			rr.warn.add(fmt.Sprintf("line %d: unterminated quoted field, row skipped", lines[0].num))
			rest := append([]physicalLine{}, lines[1:]...)
			if ok {
				rest = append(rest, l)
			}
			rr.replay = append(rest, rr.replay...)
			lines, inQuote = lines[:0], false
			continue
		}

		lines = append(lines, l)
		inQuote = scanQuotes(l.text, inQuote)
		if !inQuote {
			var b strings.Builder
			for _, pl := range lines {
				b.WriteString(pl.text)
			}
			return b.String(), lines[0].num, nil
		}
	}
}

// nextLine returns a replayed line first, then reads from input.
func (rr *recordReader) nextLine() (physicalLine, bool, error) {
	if len(rr.replay) > 0 {
		l := rr.replay[0]
		rr.replay = rr.replay[1:]
		return l, true, nil
	}

	text, err := rr.br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return physicalLine{}, false, err
	}
	if text == "" {
		return physicalLine{}, false, nil
	}
	rr.line++
	return physicalLine{text: text, num: rr.line}, true, nil
}

// decode runs one chunk through encoding/csv. Anything csv still rejects
// becomes a warning for that row.
func (rr *recordReader) decode(chunk string, start int) {
	cr := csv.NewReader(strings.NewReader(chunk))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				rr.warn.add(fmt.Sprintf("line %d: malformed row skipped: %v", start+pe.StartLine-1, pe.Err))
				continue
			}
			rr.warn.add(fmt.Sprintf("line %d: malformed row skipped: %v", start, err))
			return
		}
		line, _ := cr.FieldPos(0)
		rr.queue = append(rr.queue, parsedRecord{fields: rec, line: start + line - 1})
	}
}

// scanQuotes reports whether a quoted field is still open at the end of
// text. It follows encoding/csv's lazy-quote rules: a quote opens a field
// only as the field's first byte, "" is an escaped quote, and a closing
// quote must be followed by a comma, line break or end of input; any
// other quote is literal.
func scanQuotes(text string, inQuote bool) bool {
	fieldStart := !inQuote
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inQuote {
			if c != '"' {
				continue
			}
			var next byte
			if i+1 < len(text) {
				next = text[i+1]
			}
			switch next {
			case '"':
				i++
			case ',', '\n', '\r', 0:
				inQuote = false
			}
			continue
		}
		switch {
		case c == ',':
			fieldStart = true
		case c == '"' && fieldStart:
			inQuote = true
			fieldStart = false
		default:
			fieldStart = false
		}
	}
	return inQuote
}
