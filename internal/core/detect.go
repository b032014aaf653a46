package core

// detect.go classifies a column from a sample of its values.
//
// Each sampled value falls into exactly one bucket, tested in priority order
// (email, phone, url, number, boolean, date, string). The column type is the
// first bucket, in the same order, whose share of the sample reaches its
// threshold. Anything else is a plain string column.

import (
	"regexp"
	"strings"
)

// maxDetectSamples bounds how many non-empty values are classified.
const maxDetectSamples = 100

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern   = regexp.MustCompile(`^[\d\s\-+()]+$`)
	urlPattern     = regexp.MustCompile(`(?i)^https?://`)
	numberPattern  = regexp.MustCompile(`^-?\d+\.?\d*$`)
	booleanPattern = regexp.MustCompile(`(?i)^(true|false|yes|no|1|0)$`)
	datePattern    = regexp.MustCompile(`\d{4}[-/]\d{1,2}[-/]\d{1,2}|^\d{1,2}[-/]\d{1,2}[-/]\d{4}`)
)

// typeThreshold is the minimum share of samples a bucket needs.
type typeThreshold struct {
	typ   ColumnType
	share float64
}

// detectThresholds is checked in order; the first match wins.
var detectThresholds = []typeThreshold{
	{TypeEmail, 0.9},
	{TypePhone, 0.7},
	{TypeURL, 0.9},
	{TypeNumber, 0.9},
	{TypeBoolean, 0.9},
	{TypeDate, 0.7},
}

// DetectColumnType infers a column type from all raw values of a column.
// Empty values are skipped and only the first 100 non-empty values are
// classified, so the result is deterministic for a given input order.
func DetectColumnType(values []string) ColumnType {
	counts := make(map[ColumnType]int, len(detectThresholds)+1)
	total := 0

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		counts[classifyValue(v)]++
		total++
		if total == maxDetectSamples {
			break
		}
	}

	if total == 0 {
		return TypeUnknown
	}

	for _, th := range detectThresholds {
		if float64(counts[th.typ])/float64(total) >= th.share {
			return th.typ
		}
	}
	return TypeString
}

// classifyValue puts one trimmed, non-empty value into a bucket.
func classifyValue(v string) ColumnType {
	switch {
	case emailPattern.MatchString(v):
		return TypeEmail
	case phonePattern.MatchString(v) && len(v) > 6:
		return TypePhone
	case urlPattern.MatchString(v):
		return TypeURL
	case numberPattern.MatchString(v):
		return TypeNumber
	case booleanPattern.MatchString(v):
		return TypeBoolean
	case datePattern.MatchString(v):
		return TypeDate
	default:
		return TypeString
	}
}
