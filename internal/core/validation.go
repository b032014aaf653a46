package core

// validation.go checks cell values against the rules attached to a mapping.
//
// Validation happens at three levels:
//  1. Value: every rule runs, failures are collected, nothing short-circuits
//  2. Column: one mapping's source column across every row of the data table
//  3. Set: every map-action mapping with a source column, keyed by target
//
// Like transformations, rules are compiled once per column. Problems with the
// rule itself (a bad regex, a formula that does not compile) surface as
// validation failures on each checked value, never as errors.

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/JonMunkholm/colmap/internal/formula"
)

// Messages produced by the built-in rules.
const (
	MsgRequired           = "This field is required"
	MsgInvalidEmail       = "Invalid email format"
	MsgInvalidURL         = "Invalid URL format"
	MsgInvalidPhone       = "Invalid phone number format"
	MsgInvalidDate        = "Invalid date format"
	MsgInvalidNumber      = "Invalid number format"
	MsgPatternMismatch    = "Value does not match required pattern"
	MsgInvalidPattern     = "Invalid regex pattern"
	MsgCustomFailed       = "Custom validation failed"
	msgDateBefore         = "Date must be on or after %s"
	msgDateAfter          = "Date must be on or before %s"
	msgNumberBelowMinimum = "Number must be at least %s"
	msgNumberAboveMaximum = "Number must be at most %s"
)

// RuleError is one failed rule for one value.
type RuleError struct {
	Rule    RuleType `json:"rule"`
	Message string   `json:"message"`
}

func (e RuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

// ValueResult is the outcome of validating one value.
type ValueResult struct {
	IsValid  bool        `json:"isValid"`
	Errors   []string    `json:"errors"`
	Failures []RuleError `json:"failures,omitempty"`
}

// RowFailure records a value that failed at least one rule.
type RowFailure struct {
	RowIndex int      `json:"rowIndex"`
	Value    string   `json:"value"`
	Errors   []string `json:"errors"`
}

// ColumnValidation summarizes one target column.
type ColumnValidation struct {
	ColumnName  string       `json:"columnName"`
	TotalRows   int          `json:"totalRows"`
	ValidRows   int          `json:"validRows"`
	InvalidRows int          `json:"invalidRows"`
	Errors      []RowFailure `json:"errors"`
}

// ruleCheck is one compiled rule. check returns "" when the value passes.
type ruleCheck interface {
	check(value string, row Row, rowIndex int) string
}

type compiledRule struct {
	typ   RuleType
	check ruleCheck
}

// CompiledRules is an ordered rule list ready to run over many values.
type CompiledRules struct {
	rules []compiledRule
}

// Len returns the number of compiled rules.
func (c *CompiledRules) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// CompileRules prepares rules for evaluation, keeping their order. Only an
// unknown rule type is an error; the returned rules still hold every rule
// that did compile.
func CompileRules(rules []ValidationRule, opts CompileOptions) (*CompiledRules, error) {
	out := &CompiledRules{rules: make([]compiledRule, 0, len(rules))}
	var unknown []string

	for _, r := range rules {
		c, ok := compileRule(r, opts)
		if !ok {
			unknown = append(unknown, string(r.Type))
			continue
		}
		out.rules = append(out.rules, compiledRule{typ: r.Type, check: c})
	}

	if len(unknown) > 0 {
		return out, fmt.Errorf("%w: %s", ErrUnknownRule, strings.Join(unknown, ", "))
	}
	return out, nil
}

func compileRule(r ValidationRule, opts CompileOptions) (ruleCheck, bool) {
	switch r.Type {
	case RuleRequired:
		return requiredCheck{enabled: r.Required}, true
	case RuleEmail:
		return formatCheck{valid: formula.IsEmail, message: MsgInvalidEmail}, true
	case RuleURL:
		return formatCheck{valid: formula.IsURL, message: MsgInvalidURL}, true
	case RulePhone:
		return formatCheck{valid: formula.IsPhone, message: MsgInvalidPhone}, true
	case RuleDateRange:
		return newDateRangeCheck(r), true
	case RuleNumberRange:
		return numberRangeCheck{min: r.NumberMin, max: r.NumberMax}, true
	case RuleRegex:
		return newRegexCheck(r), true
	case RuleCustom:
		return newCustomCheck(r, opts), true
	default:
		return nil, false
	}
}

// Validate runs every rule against value and collects all failures.
func (c *CompiledRules) Validate(value string, row Row, rowIndex int) ValueResult {
	res := ValueResult{Errors: []string{}}
	if c != nil {
		for _, r := range c.rules {
			if msg := r.check.check(value, row, rowIndex); msg != "" {
				res.Errors = append(res.Errors, msg)
				res.Failures = append(res.Failures, RuleError{Rule: r.typ, Message: msg})
			}
		}
	}
	res.IsValid = len(res.Errors) == 0
	return res
}

// ValidateValue checks value against rules in order. Unknown rule types are
// skipped.
func ValidateValue(value string, rules []ValidationRule, row Row, rowIndex int) ValueResult {
	compiled, err := CompileRules(rules, CompileOptions{})
	if err != nil {
		slog.Debug("skipping unknown validation rules", "error", err)
	}
	return compiled.Validate(value, row, rowIndex)
}

// ValidateColumn validates the mapping's source column on every row of data.
// A mapping without a source column validates nothing.
func ValidateColumn(m ColumnMapping, data *Table, opts CompileOptions) ColumnValidation {
	result := ColumnValidation{
		ColumnName: m.TargetColumn,
		TotalRows:  data.RowCount,
		Errors:     []RowFailure{},
	}
	if m.SourceColumn == "" {
		return result
	}

	rules, err := CompileRules(m.ValidationRules, opts)
	if err != nil {
		slog.Debug("skipping unknown validation rules",
			"column", m.TargetColumn,
			"error", err,
		)
	}

	for i, row := range data.Rows {
		value := row[m.SourceColumn]
		res := rules.Validate(value, row, i)
		if res.IsValid {
			result.ValidRows++
			continue
		}
		result.InvalidRows++
		result.Errors = append(result.Errors, RowFailure{
			RowIndex: i,
			Value:    value,
			Errors:   res.Errors,
		})
	}
	return result
}

// ValidateAll validates every map-action mapping that has a source column,
// keyed by target column name.
func ValidateAll(mappings []ColumnMapping, data *Table, opts CompileOptions) map[string]ColumnValidation {
	results := make(map[string]ColumnValidation)
	for _, m := range mappings {
		if m.Action != ActionMap || m.SourceColumn == "" {
			continue
		}
		results[m.TargetColumn] = ValidateColumn(m, data, opts)
	}
	return results
}

// ----------------------------------------------------------------------------
// Rule variants
// ----------------------------------------------------------------------------

type requiredCheck struct {
	enabled bool
}

func (r requiredCheck) check(value string, _ Row, _ int) string {
	if r.enabled && strings.TrimSpace(value) == "" {
		return MsgRequired
	}
	return ""
}

// formatCheck only looks at non-empty values; emptiness is the required
// rule's job.
type formatCheck struct {
	valid   func(string) bool
	message string
}

func (f formatCheck) check(value string, _ Row, _ int) string {
	if value != "" && !f.valid(value) {
		return f.message
	}
	return ""
}

// dateRangeCheck bounds are inclusive. A bound that does not parse is
// ignored.
type dateRangeCheck struct {
	min, max       *time.Time
	minRaw, maxRaw string
}

func newDateRangeCheck(r ValidationRule) dateRangeCheck {
	c := dateRangeCheck{minRaw: r.DateMin, maxRaw: r.DateMax}
	if t, ok := ParseFlexibleDate(r.DateMin, ""); ok {
		c.min = &t
	}
	if t, ok := ParseFlexibleDate(r.DateMax, ""); ok {
		c.max = &t
	}
	return c
}

func (d dateRangeCheck) check(value string, _ Row, _ int) string {
	if value == "" {
		return ""
	}
	t, ok := ParseFlexibleDate(value, "")
	if !ok {
		return MsgInvalidDate
	}
	if d.min != nil && t.Before(*d.min) {
		return fmt.Sprintf(msgDateBefore, d.minRaw)
	}
	if d.max != nil && t.After(*d.max) {
		return fmt.Sprintf(msgDateAfter, d.maxRaw)
	}
	return ""
}

// numberRangeCheck bounds are inclusive.
type numberRangeCheck struct {
	min, max *float64
}

func (n numberRangeCheck) check(value string, _ Row, _ int) string {
	if value == "" {
		return ""
	}
	num, ok := formula.ParseLeadingFloat(value)
	if !ok {
		return MsgInvalidNumber
	}
	if n.min != nil && num < *n.min {
		return fmt.Sprintf(msgNumberBelowMinimum, formula.Stringify(*n.min))
	}
	if n.max != nil && num > *n.max {
		return fmt.Sprintf(msgNumberAboveMaximum, formula.Stringify(*n.max))
	}
	return ""
}

type regexCheck struct {
	re      *regexp.Regexp
	bad     bool
	message string
}

func newRegexCheck(r ValidationRule) ruleCheck {
	if r.RegexPattern == "" {
		return passCheck{}
	}
	msg := r.RegexErrorMessage
	if msg == "" {
		msg = MsgPatternMismatch
	}
	re, err := regexp.Compile(r.RegexPattern)
	if err != nil {
		slog.Debug("invalid validation pattern", "pattern", r.RegexPattern, "error", err)
		return regexCheck{bad: true}
	}
	return regexCheck{re: re, message: msg}
}

func (r regexCheck) check(value string, _ Row, _ int) string {
	if value == "" {
		return ""
	}
	if r.bad {
		return MsgInvalidPattern
	}
	if !r.re.MatchString(value) {
		return r.message
	}
	return ""
}

// customCheck evaluates a boolean expression. An expression that does not
// compile fails every non-empty value.
type customCheck struct {
	prog    *formula.Program
	message string
}

func newCustomCheck(r ValidationRule, opts CompileOptions) ruleCheck {
	if strings.TrimSpace(r.CustomExpression) == "" {
		return passCheck{}
	}
	msg := r.CustomErrorMessage
	if msg == "" {
		msg = MsgCustomFailed
	}
	prog, err := opts.compiler().Compile(r.CustomExpression)
	if err != nil {
		slog.Debug("custom validation does not compile", "error", err)
	}
	return customCheck{prog: prog, message: msg}
}

func (c customCheck) check(value string, row Row, rowIndex int) string {
	if value == "" {
		return ""
	}
	if c.prog == nil {
		return c.message
	}
	ok, err := c.prog.RunBool(formula.Env{Value: value, Row: row, RowIndex: rowIndex})
	if err != nil || !ok {
		return c.message
	}
	return ""
}

type passCheck struct{}

func (passCheck) check(string, Row, int) string { return "" }
