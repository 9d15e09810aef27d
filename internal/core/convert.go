package core

// convert.go provides field converters for user-authored CSV cells.
//
// These functions handle the messy reality of hand-maintained spreadsheets:
//   - Multiple date formats (US, ISO, textual months, timestamps)
//   - Thousands separators and stray whitespace in counts
//   - Units and "W x H" pairs in dimension columns
//   - Excel formula prefixes (="value")
//
// Every converter reports ok=false for blank or invalid input instead of
// returning an error; the caller leaves the field unset.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are
// assumed to be in the previous century.
var TwoDigitYearPivot = 20

const dateOnlyLayout = "2006-01-02"

// Date layouts split by year format for proper 2-digit year handling.
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02", "2006-1-2", "2006/1/2",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "Jan 2 2006", "January 2, 2006", "January 2 2006",
		"2 Jan 2006", "2 January 2006", "02-Jan-2006", "2-Jan-2006",
		"Mon, Jan 2, 2006", "Monday, January 2, 2006",
		"20060102",
	}
	// Timestamp layouts keep the calendar date written in the cell. A value
	// like 2024-03-05T23:30:00-05:00 stays on March 5th.
	timestampLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
		"1/2/2006 3:04 PM",
		"1/2/2006 3:04:05 PM",
	}
)

// Sanity bounds for parsed years. Anything outside is treated as junk.
const (
	minYear = 1900
	maxYear = 2200
)

// NormalizeDate converts a free-text date to YYYY-MM-DD.
// It never consults the local time zone: the date written in the cell is the
// date returned.
func NormalizeDate(s string) (string, bool) {
	s = CleanCell(s)
	if s == "" {
		return "", false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return formatDate(t)
		}
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return formatDate(t)
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return formatDate(t)
		}
	}

	return "", false
}

func formatDate(t time.Time) (string, bool) {
	if t.Year() < minYear || t.Year() > maxYear {
		return "", false
	}
	return t.Format(dateOnlyLayout), true
}

// countStripper removes grouping characters users type into counts.
var countStripper = strings.NewReplacer(
	",", "",
	"_", "",
	"'", "",
	" ", "",
	"\t", "",
	"\u00a0", "", // no-break space
	"\u202f", "", // narrow no-break space
)

// ParseCount parses a non-negative integer counter such as "12,345 ".
// Values beyond the 32-bit range of the total_diamonds column are rejected.
func ParseCount(s string) (int, bool) {
	s = countStripper.Replace(CleanCell(s))
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n < 0 {
		return 0, false
	}
	return int(n), true
}

// unitSuffix matches trailing length units on a single dimension value.
var unitSuffix = regexp.MustCompile(`(?i)\s*(cm|mm|in|inch|inches|")\s*$`)

// ParseDimension parses one positive length value, tolerating a unit suffix
// and a decimal comma ("40,5 cm").
func ParseDimension(s string) (float64, bool) {
	s = CleanCell(s)
	s = unitSuffix.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}

// dimensionPair matches "20x30", "20 x 30 cm", "40.5cm × 50cm", "20*30".
var dimensionPair = regexp.MustCompile(
	`(?i)(\d+(?:[.,]\d+)?)\s*(?:cm|mm|in|")?\s*[x×*]\s*(\d+(?:[.,]\d+)?)\s*(?:cm|mm|in|")?`,
)

// ParseDimensions parses a combined "W x H" value.
func ParseDimensions(s string) (width, height float64, ok bool) {
	m := dimensionPair.FindStringSubmatch(CleanCell(s))
	if m == nil {
		return 0, 0, false
	}
	w, okW := ParseDimension(m[1])
	h, okH := ParseDimension(m[2])
	if !okW || !okH {
		return 0, 0, false
	}
	return w, h, true
}

// SplitTags splits a semicolon-delimited tag cell. Commas are not separators
// because free-text tag names may contain them. The result is never nil.
func SplitTags(s string) []string {
	tags := make([]string, 0)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

// CleanCell removes common CSV artifacts from a cell value:
//   - Trims whitespace
//   - Removes the Excel text formula wrapper (="...")
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = strings.TrimSpace(s[2 : len(s)-1])
	}
	return s
}
