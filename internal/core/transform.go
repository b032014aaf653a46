package core

// transform.go applies per-cell transformations.
//
// A Transformation is the JSON shape stored in mapping files. Before use it is
// compiled into a transformer, one small type per variant, so regexes and
// formulas are parsed once per column rather than once per cell. The switch in
// CompileTransformation is the only place that looks at the type tag.
//
// Transformations never fail a row. A compile error or a per-cell error
// degrades to the original value and is logged at debug level.

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/JonMunkholm/colmap/internal/formula"
)

// CompileOptions tunes how transformations and rules are compiled.
type CompileOptions struct {
	// MaxFormulaNodes bounds custom formula size. Zero uses the formula
	// package default.
	MaxFormulaNodes uint
}

func (o CompileOptions) compiler() formula.Compiler {
	return formula.Compiler{MaxNodes: o.MaxFormulaNodes}
}

// transformer is one compiled transformation variant.
type transformer interface {
	apply(value string, row Row) (string, error)
}

// CompiledTransformation is a Transformation ready to run over many cells.
// It is immutable and safe for concurrent use.
type CompiledTransformation struct {
	typ TransformationType
	t   transformer
}

// Type returns the transformation type tag.
func (c *CompiledTransformation) Type() TransformationType {
	return c.typ
}

// Apply transforms one cell. Empty values and nil receivers are returned
// unchanged, and any error yields the original value.
func (c *CompiledTransformation) Apply(value string, row Row) string {
	if c == nil || value == "" {
		return value
	}
	out, err := c.t.apply(value, row)
	if err != nil {
		slog.Debug("transformation failed, keeping original value",
			"type", c.typ,
			"error", err,
		)
		return value
	}
	return out
}

// CompileTransformation validates t and prepares it for Apply. A nil
// transformation compiles to a no-op.
func CompileTransformation(t *Transformation, opts CompileOptions) (*CompiledTransformation, error) {
	if t == nil {
		return &CompiledTransformation{typ: TransformNone, t: noopTransform{}}, nil
	}

	var impl transformer
	switch t.Type {
	case TransformNone, "":
		impl = noopTransform{}
	case TransformUppercase:
		impl = funcTransform(formula.ToUpper)
	case TransformLowercase:
		impl = funcTransform(formula.ToLower)
	case TransformTrim:
		impl = funcTransform(strings.TrimSpace)
	case TransformSplit:
		impl = newSplitTransform(t)
	case TransformConcatenate:
		impl = newConcatTransform(t)
	case TransformRegexReplace:
		rt, err := newRegexTransform(t)
		if err != nil {
			return nil, err
		}
		impl = rt
	case TransformDateFormat:
		impl = newDateTransform(t)
	case TransformNumberFormat:
		impl = newNumberTransform(t)
	case TransformCustomFormula:
		if strings.TrimSpace(t.CustomFormula) == "" {
			impl = noopTransform{}
			break
		}
		prog, err := opts.compiler().Compile(t.CustomFormula)
		if err != nil {
			return nil, err
		}
		impl = formulaTransform{prog: prog}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransformation, t.Type)
	}

	typ := t.Type
	if typ == "" {
		typ = TransformNone
	}
	return &CompiledTransformation{typ: typ, t: impl}, nil
}

// ApplyTransformation compiles and applies t to a single value. It never
// fails: a transformation that does not compile leaves the value unchanged.
// Use CompileTransformation when transforming a whole column.
func ApplyTransformation(value string, t *Transformation, row Row, table *Table) string {
	if t == nil || t.Type == TransformNone || value == "" {
		return value
	}
	ct, err := CompileTransformation(t, CompileOptions{})
	if err != nil {
		file := ""
		if table != nil {
			file = table.Filename
		}
		slog.Debug("transformation does not compile, keeping original value",
			"type", t.Type,
			"file", file,
			"error", err,
		)
		return value
	}
	return ct.Apply(value, row)
}

// ----------------------------------------------------------------------------
// Variants
// ----------------------------------------------------------------------------

type noopTransform struct{}

func (noopTransform) apply(value string, _ Row) (string, error) { return value, nil }

// funcTransform adapts a plain string function.
type funcTransform func(string) string

func (f funcTransform) apply(value string, _ Row) (string, error) { return f(value), nil }

// splitTransform picks one trimmed part of the value. An empty delimiter is a
// literal that never matches, so the whole value is part 0.
type splitTransform struct {
	delim *string
	index int
}

func newSplitTransform(t *Transformation) splitTransform {
	idx := 0
	if t.SplitIndex != nil {
		idx = *t.SplitIndex
	}
	return splitTransform{delim: t.SplitDelimiter, index: idx}
}

func (s splitTransform) apply(value string, _ Row) (string, error) {
	if s.delim == nil {
		return value, nil
	}
	parts := []string{value}
	if *s.delim != "" {
		parts = strings.Split(value, *s.delim)
	}
	if s.index < 0 || s.index >= len(parts) {
		return "", nil
	}
	return strings.TrimSpace(parts[s.index]), nil
}

// concatTransform joins other columns of the row. It ignores the cell value.
type concatTransform struct {
	columns []string
	sep     string
}

func newConcatTransform(t *Transformation) concatTransform {
	sep := " "
	if t.ConcatenateSeparator != nil {
		sep = *t.ConcatenateSeparator
	}
	return concatTransform{columns: t.ConcatenateColumns, sep: sep}
}

func (c concatTransform) apply(_ string, row Row) (string, error) {
	parts := make([]string, 0, len(c.columns))
	for _, col := range c.columns {
		v := row[col]
		if strings.TrimSpace(v) == "" {
			continue
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, c.sep), nil
}

// regexTransform replaces matches of a pattern. Without the g flag only the
// first match is replaced.
type regexTransform struct {
	re       *regexp.Regexp
	template string
	global   bool
}

func newRegexTransform(t *Transformation) (transformer, error) {
	if t.RegexPattern == "" {
		return noopTransform{}, nil
	}
	flags := "g"
	if t.RegexFlags != nil {
		flags = *t.RegexFlags
	}

	prefix, global, err := regexFlags(flags)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(prefix + t.RegexPattern)
	if err != nil {
		return nil, fmt.Errorf("compile regex %q: %w", t.RegexPattern, err)
	}
	return regexTransform{
		re:       re,
		template: replacementTemplate(t.RegexReplacement),
		global:   global,
	}, nil
}

func (r regexTransform) apply(value string, _ Row) (string, error) {
	if r.global {
		return r.re.ReplaceAllString(value, r.template), nil
	}
	loc := r.re.FindStringSubmatchIndex(value)
	if loc == nil {
		return value, nil
	}
	dst := r.re.ExpandString(nil, r.template, value, loc)
	return value[:loc[0]] + string(dst) + value[loc[1]:], nil
}

// regexFlags converts flag letters (g, i, m, s, u, y) into an RE2 inline
// flag prefix. u and y have no RE2 counterpart and are accepted as no-ops.
func regexFlags(flags string) (prefix string, global bool, err error) {
	var inline strings.Builder
	for _, f := range flags {
		switch f {
		case 'g':
			global = true
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline.String(), f) {
				inline.WriteRune(f)
			}
		case 'u', 'y':
		default:
			return "", false, fmt.Errorf("invalid regex flag %q", f)
		}
	}
	if inline.Len() > 0 {
		prefix = "(?" + inline.String() + ")"
	}
	return prefix, global, nil
}

// replacementTemplate rewrites $&, $1 and $$ references into the ${n} form
// understood by regexp.Expand. Any other $ is literal.
func replacementTemplate(repl string) string {
	if !strings.Contains(repl, "$") {
		return repl
	}
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		c := repl[i]
		if c != '$' || i+1 == len(repl) {
			if c == '$' {
				b.WriteString("$$")
			} else {
				b.WriteByte(c)
			}
			continue
		}
		next := repl[i+1]
		switch {
		case next == '$':
			b.WriteString("$$")
			i++
		case next == '&':
			b.WriteString("${0}")
			i++
		case next >= '0' && next <= '9':
			j := i + 1
			for j < len(repl) && j < i+3 && repl[j] >= '0' && repl[j] <= '9' {
				j++
			}
			b.WriteString("${" + repl[i+1:j] + "}")
			i = j - 1
		default:
			b.WriteString("$$")
		}
	}
	return b.String()
}

// dateTransform reformats dates. It needs both formats set, but input values
// are always read with the fixed shape order of DateFormats.
type dateTransform struct {
	output string
}

func newDateTransform(t *Transformation) transformer {
	if t.DateInputFormat == "" || t.DateOutputFormat == "" {
		return noopTransform{}
	}
	return dateTransform{output: t.DateOutputFormat}
}

func (d dateTransform) apply(value string, _ Row) (string, error) {
	parsed, ok := ParseFlexibleDate(value, "")
	if !ok {
		return value, nil
	}
	return FormatDate(parsed, d.output), nil
}

// numberTransform rounds and groups numbers.
type numberTransform struct {
	decimals     int
	thousandsSep string
	decimalSep   string
}

func newNumberTransform(t *Transformation) numberTransform {
	n := numberTransform{decimals: 2, thousandsSep: ",", decimalSep: "."}
	if t.NumberDecimals != nil {
		n.decimals = min(max(*t.NumberDecimals, 0), 20)
	}
	if t.NumberThousandsSeparator != nil {
		n.thousandsSep = *t.NumberThousandsSeparator
	}
	if t.NumberDecimalSeparator != nil {
		n.decimalSep = *t.NumberDecimalSeparator
	}
	return n
}

func (n numberTransform) apply(value string, _ Row) (string, error) {
	num, ok := formula.ParseLeadingFloat(value)
	if !ok {
		return value, nil
	}
	return FormatNumber(num, n.decimals, n.thousandsSep, n.decimalSep), nil
}

// FormatNumber renders num with a fixed number of decimals and grouped
// thousands. decimals == 0 omits the fractional part.
func FormatNumber(num float64, decimals int, thousandsSep, decimalSep string) string {
	fixed := strconv.FormatFloat(num, 'f', decimals, 64)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(thousandsSep)
		}
		b.WriteRune(d)
	}
	if decimals > 0 && fracPart != "" {
		b.WriteString(decimalSep)
		b.WriteString(fracPart)
	}
	return b.String()
}

// formulaTransform evaluates a custom formula against the row.
type formulaTransform struct {
	prog *formula.Program
}

func (f formulaTransform) apply(value string, row Row) (string, error) {
	return f.prog.RunString(formula.Env{Value: value, Row: row})
}
