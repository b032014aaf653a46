package formula

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	emailRe        = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe        = regexp.MustCompile(`^[\d\s\-+()]+$`)
	leadingFloatRe = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	leadingIntRe   = regexp.MustCompile(`^[+-]?\d+`)
)

// IsEmail reports whether s looks like local@domain.tld.
func IsEmail(s string) bool {
	return emailRe.MatchString(s)
}

// IsURL reports whether s is an absolute URL with a scheme and a host.
func IsURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// IsPhone reports whether s uses only phone characters and carries at least
// ten digits.
func IsPhone(s string) bool {
	if !phoneRe.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 10
}

// IsEmpty reports whether s is empty after trimming.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ParseLeadingFloat parses the numeric prefix of s, so "12.5kg" is 12.5.
func ParseLeadingFloat(s string) (float64, bool) {
	m := leadingFloatRe.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ToUpper and ToLower are locale independent. A Caser keeps state, so each
// call gets its own.
func ToUpper(s string) string { return cases.Upper(language.Und).String(s) }
func ToLower(s string) string { return cases.Lower(language.Und).String(s) }

// helpers are the functions visible to expressions, on top of expr's
// builtins (trim, replace, split, abs, round, now, date, ...).
var helpers = []expr.Option{
	expr.Function("substring", func(params ...any) (any, error) {
		s := []rune(params[0].(string))
		start := params[1].(int)
		end := len(s)
		if len(params) > 2 {
			end = params[2].(int)
		}
		start = clamp(start, 0, len(s))
		end = clamp(end, 0, len(s))
		if start > end {
			start, end = end, start
		}
		return string(s[start:end]), nil
	},
		new(func(string, int) string),
		new(func(string, int, int) string),
	),
	expr.Function("toUpperCase", func(params ...any) (any, error) {
		return ToUpper(params[0].(string)), nil
	}, new(func(string) string)),
	expr.Function("toLowerCase", func(params ...any) (any, error) {
		return ToLower(params[0].(string)), nil
	}, new(func(string) string)),
	expr.Function("parseInt", func(params ...any) (any, error) {
		s := params[0].(string)
		m := leadingIntRe.FindString(strings.TrimSpace(s))
		if m == "" {
			return nil, fmt.Errorf("parseInt: %q is not a number", s)
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("parseInt: %w", err)
		}
		return n, nil
	}, new(func(string) int)),
	expr.Function("parseFloat", func(params ...any) (any, error) {
		s := params[0].(string)
		f, ok := ParseLeadingFloat(s)
		if !ok {
			return nil, fmt.Errorf("parseFloat: %q is not a number", s)
		}
		return f, nil
	}, new(func(string) float64)),
	expr.Function("isEmpty", func(params ...any) (any, error) {
		return IsEmpty(params[0].(string)), nil
	}, new(func(string) bool)),
	expr.Function("isNumber", func(params ...any) (any, error) {
		_, ok := ParseLeadingFloat(params[0].(string))
		return ok, nil
	}, new(func(string) bool)),
	expr.Function("isEmail", func(params ...any) (any, error) {
		return IsEmail(params[0].(string)), nil
	}, new(func(string) bool)),
	expr.Function("isUrl", func(params ...any) (any, error) {
		return IsURL(params[0].(string)), nil
	}, new(func(string) bool)),
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
