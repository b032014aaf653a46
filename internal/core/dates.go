package core

// dates.go parses loosely formatted dates and renders them with the
// YYYY/MM/DD token format used by mapping files.
//
// Input shapes are tried in a fixed order. A shape only wins when its regex
// matches AND the extracted parts form a real calendar date, so 02/30/2024
// falls through to the next shape instead of rolling over into March.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateFormats lists the input shapes accepted by date_format, in the order
// they are tried.
var DateFormats = []string{
	"YYYY-MM-DD",
	"MM/DD/YYYY",
	"DD/MM/YYYY",
	"MM-DD-YYYY",
	"DD-MM-YYYY",
	"YYYY/MM/DD",
	"DD.MM.YYYY",
	"MM.DD.YYYY",
}

var (
	yearFirstDate = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	yearLastDate  = regexp.MustCompile(`^(\d{1,2})[-/.](\d{1,2})[-/.](\d{4})`)
)

// genericDateLayouts is the fallback when no shape matches. Mirrors the
// layouts accepted for date columns on upload.
var genericDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006.01.02",
	"20060102",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Mon, 02 Jan 2006",
	"Mon Jan 2 2006",
}

// dateParts is a calendar date with no time or zone.
type dateParts struct {
	year, month, day int
}

func (d dateParts) time() time.Time {
	return time.Date(d.year, time.Month(d.month), d.day, 0, 0, 0, 0, time.UTC)
}

// validDate reports whether y-m-d exists on the calendar.
func validDate(y, m, d int) bool {
	if y <= 0 || m < 1 || m > 12 || d < 1 {
		return false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return t.Year() == y && int(t.Month()) == m && t.Day() == d
}

// parseDateShape tries one named shape against value.
func parseDateShape(value, shape string) (dateParts, bool) {
	var y, m, d int
	switch shape {
	case "YYYY-MM-DD", "YYYY/MM/DD":
		match := yearFirstDate.FindStringSubmatch(value)
		if match == nil {
			return dateParts{}, false
		}
		y, m, d = atoi(match[1]), atoi(match[2]), atoi(match[3])
	case "MM/DD/YYYY", "MM-DD-YYYY", "MM.DD.YYYY":
		match := yearLastDate.FindStringSubmatch(value)
		if match == nil {
			return dateParts{}, false
		}
		m, d, y = atoi(match[1]), atoi(match[2]), atoi(match[3])
	case "DD/MM/YYYY", "DD-MM-YYYY", "DD.MM.YYYY":
		match := yearLastDate.FindStringSubmatch(value)
		if match == nil {
			return dateParts{}, false
		}
		d, m, y = atoi(match[1]), atoi(match[2]), atoi(match[3])
	default:
		return dateParts{}, false
	}
	if !validDate(y, m, d) {
		return dateParts{}, false
	}
	return dateParts{y, m, d}, true
}

// ParseFlexibleDate parses value using the known shapes, then the generic
// layouts. A preferred shape (one of DateFormats) is tried first when given.
func ParseFlexibleDate(value, preferred string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	if preferred != "" {
		if p, ok := parseDateShape(value, preferred); ok {
			return p.time(), true
		}
	}
	for _, shape := range DateFormats {
		if p, ok := parseDateShape(value, shape); ok {
			return p.time(), true
		}
	}
	for _, layout := range genericDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders t using YYYY, MM, DD, M and D tokens. Longer tokens are
// matched first and output is never re-scanned, so "M" inside a rendered
// value cannot be substituted twice.
func FormatDate(t time.Time, format string) string {
	var b strings.Builder
	b.Grow(len(format) + 4)
	for i := 0; i < len(format); {
		rest := format[i:]
		switch {
		case strings.HasPrefix(rest, "YYYY"):
			fmt.Fprintf(&b, "%04d", t.Year())
			i += 4
		case strings.HasPrefix(rest, "MM"):
			b.WriteString(pad2(int(t.Month())))
			i += 2
		case strings.HasPrefix(rest, "DD"):
			b.WriteString(pad2(t.Day()))
			i += 2
		case rest[0] == 'M':
			b.WriteString(strconv.Itoa(int(t.Month())))
			i++
		case rest[0] == 'D':
			b.WriteString(strconv.Itoa(t.Day()))
			i++
		default:
			b.WriteByte(rest[0])
			i++
		}
	}
	return b.String()
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
