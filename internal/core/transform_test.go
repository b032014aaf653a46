package core

import (
	"errors"
	"testing"
)

func TestApplyTransformation(t *testing.T) {
	row := Row{"First": "Jane", "Middle": "", "Last": "Doe", "Country": "NZ"}

	tests := []struct {
		name  string
		value string
		tr    *Transformation
		want  string
	}{
		{
			name:  "nil transformation",
			value: "Jane",
			tr:    nil,
			want:  "Jane",
		},
		{
			name:  "none",
			value: " Jane ",
			tr:    &Transformation{Type: TransformNone},
			want:  " Jane ",
		},
		{
			name:  "uppercase",
			value: "hello World",
			tr:    &Transformation{Type: TransformUppercase},
			want:  "HELLO WORLD",
		},
		{
			name:  "lowercase non-ascii",
			value: "ÀBC",
			tr:    &Transformation{Type: TransformLowercase},
			want:  "àbc",
		},
		{
			name:  "trim",
			value: "  padded \t",
			tr:    &Transformation{Type: TransformTrim},
			want:  "padded",
		},

		// Split
		{
			name:  "split first part",
			value: "Jane Doe",
			tr:    &Transformation{Type: TransformSplit, SplitDelimiter: Ptr(" "), SplitIndex: Ptr(0)},
			want:  "Jane",
		},
		{
			name:  "split second part",
			value: "Jane Doe",
			tr:    &Transformation{Type: TransformSplit, SplitDelimiter: Ptr(" "), SplitIndex: Ptr(1)},
			want:  "Doe",
		},
		{
			name:  "split index out of range",
			value: "Jane Doe",
			tr:    &Transformation{Type: TransformSplit, SplitDelimiter: Ptr(" "), SplitIndex: Ptr(5)},
			want:  "",
		},
		{
			name:  "split parts are trimmed",
			value: "a,  b ,c",
			tr:    &Transformation{Type: TransformSplit, SplitDelimiter: Ptr(","), SplitIndex: Ptr(1)},
			want:  "b",
		},
		{
			name:  "split without delimiter keeps value",
			value: "Jane Doe",
			tr:    &Transformation{Type: TransformSplit, SplitIndex: Ptr(1)},
			want:  "Jane Doe",
		},
		{
			name:  "split on empty delimiter is a literal",
			value: "Jane Doe",
			tr:    &Transformation{Type: TransformSplit, SplitDelimiter: Ptr(""), SplitIndex: Ptr(0)},
			want:  "Jane Doe",
		},

		// Concatenate
		{
			name:  "concatenate",
			value: "Jane",
			tr: &Transformation{
				Type:                 TransformConcatenate,
				ConcatenateColumns:   []string{"First", "Last"},
				ConcatenateSeparator: Ptr(" "),
			},
			want: "Jane Doe",
		},
		{
			name:  "concatenate skips empty columns",
			value: "Jane",
			tr: &Transformation{
				Type:                 TransformConcatenate,
				ConcatenateColumns:   []string{"First", "Middle", "Last", "Missing"},
				ConcatenateSeparator: Ptr("-"),
			},
			want: "Jane-Doe",
		},
		{
			name:  "concatenate default separator",
			value: "Jane",
			tr:    &Transformation{Type: TransformConcatenate, ConcatenateColumns: []string{"Last", "First"}},
			want:  "Doe Jane",
		},

		// Regex
		{
			name:  "regex global by default",
			value: "a1b2",
			tr:    &Transformation{Type: TransformRegexReplace, RegexPattern: `\d`, RegexReplacement: "#"},
			want:  "a#b#",
		},
		{
			name:  "regex first match only",
			value: "a1b2",
			tr:    &Transformation{Type: TransformRegexReplace, RegexPattern: `\d`, RegexReplacement: "#", RegexFlags: Ptr("")},
			want:  "a#b2",
		},
		{
			name:  "regex case insensitive",
			value: "aAa",
			tr:    &Transformation{Type: TransformRegexReplace, RegexPattern: "a", RegexReplacement: "x", RegexFlags: Ptr("gi")},
			want:  "xxx",
		},
		{
			name:  "regex capture groups",
			value: "jane@example",
			tr:    &Transformation{Type: TransformRegexReplace, RegexPattern: `(\w+)@(\w+)`, RegexReplacement: "$2 at $1"},
			want:  "example at jane",
		},
		{
			name:  "regex whole match",
			value: "abc",
			tr:    &Transformation{Type: TransformRegexReplace, RegexPattern: "b", RegexReplacement: "[$&]"},
			want:  "a[b]c",
		},
		{
			name:  "regex literal dollar",
			value: "5",
			tr:    &Transformation{Type: TransformRegexReplace, RegexPattern: `^`, RegexReplacement: "$$"},
			want:  "$5",
		},
		{
			name:  "regex invalid pattern keeps value",
			value: "abc",
			tr:    &Transformation{Type: TransformRegexReplace, RegexPattern: "(", RegexReplacement: "x"},
			want:  "abc",
		},
		{
			name:  "regex empty pattern keeps value",
			value: "abc",
			tr:    &Transformation{Type: TransformRegexReplace, RegexReplacement: "x"},
			want:  "abc",
		},

		// Dates
		{
			name:  "date format",
			value: "2024-01-15",
			tr:    &Transformation{Type: TransformDateFormat, DateInputFormat: "YYYY-MM-DD", DateOutputFormat: "MM/DD/YYYY"},
			want:  "01/15/2024",
		},
		{
			name:  "date format reads ambiguous value month first",
			value: "01/02/2024",
			tr:    &Transformation{Type: TransformDateFormat, DateInputFormat: "DD/MM/YYYY", DateOutputFormat: "YYYY-MM-DD"},
			want:  "2024-01-02",
		},
		{
			name:  "date format falls through to day first",
			value: "15/01/2024",
			tr:    &Transformation{Type: TransformDateFormat, DateInputFormat: "MM/DD/YYYY", DateOutputFormat: "YYYY-MM-DD"},
			want:  "2024-01-15",
		},
		{
			name:  "date format keeps unparseable value",
			value: "soon",
			tr:    &Transformation{Type: TransformDateFormat, DateInputFormat: "YYYY-MM-DD", DateOutputFormat: "YYYY"},
			want:  "soon",
		},
		{
			name:  "date format without input format",
			value: "2024-01-15",
			tr:    &Transformation{Type: TransformDateFormat, DateOutputFormat: "MM/DD/YYYY"},
			want:  "2024-01-15",
		},
		{
			name:  "date format without output format",
			value: "2024-01-15",
			tr:    &Transformation{Type: TransformDateFormat},
			want:  "2024-01-15",
		},

		// Numbers
		{
			name:  "number format defaults",
			value: "1234567.5",
			tr:    &Transformation{Type: TransformNumberFormat},
			want:  "1,234,567.50",
		},
		{
			name:  "number format no decimals",
			value: "1234.56",
			tr:    &Transformation{Type: TransformNumberFormat, NumberDecimals: Ptr(0)},
			want:  "1,235",
		},
		{
			name:  "number format european separators",
			value: "1234.5",
			tr: &Transformation{
				Type:                     TransformNumberFormat,
				NumberThousandsSeparator: Ptr("."),
				NumberDecimalSeparator:   Ptr(","),
			},
			want: "1.234,50",
		},
		{
			name:  "number format negative",
			value: "-1234.5",
			tr:    &Transformation{Type: TransformNumberFormat},
			want:  "-1,234.50",
		},
		{
			name:  "number format leading number",
			value: "12.5kg",
			tr:    &Transformation{Type: TransformNumberFormat, NumberDecimals: Ptr(1)},
			want:  "12.5",
		},
		{
			name:  "number format keeps text",
			value: "n/a",
			tr:    &Transformation{Type: TransformNumberFormat},
			want:  "n/a",
		},

		// Formulas
		{
			name:  "formula on value",
			value: "hi",
			tr:    &Transformation{Type: TransformCustomFormula, CustomFormula: `value + "!"`},
			want:  "hi!",
		},
		{
			name:  "formula reads the row",
			value: "Jane",
			tr:    &Transformation{Type: TransformCustomFormula, CustomFormula: `value + " (" + row["Country"] + ")"`},
			want:  "Jane (NZ)",
		},
		{
			name:  "formula helpers",
			value: "jane",
			tr:    &Transformation{Type: TransformCustomFormula, CustomFormula: `substring(toUpperCase(value), 0, 2)`},
			want:  "JA",
		},
		{
			name:  "formula numbers",
			value: "2.5",
			tr:    &Transformation{Type: TransformCustomFormula, CustomFormula: `parseFloat(value) * 2`},
			want:  "5",
		},
		{
			name:  "formula runtime error keeps value",
			value: "abc",
			tr:    &Transformation{Type: TransformCustomFormula, CustomFormula: `parseInt(value) + 1`},
			want:  "abc",
		},
		{
			name:  "formula compile error keeps value",
			value: "abc",
			tr:    &Transformation{Type: TransformCustomFormula, CustomFormula: `value +`},
			want:  "abc",
		},
		{
			name:  "formula unknown identifier keeps value",
			value: "abc",
			tr:    &Transformation{Type: TransformCustomFormula, CustomFormula: `os.Exit(1)`},
			want:  "abc",
		},
		{
			name:  "unknown type keeps value",
			value: "abc",
			tr:    &Transformation{Type: "reverse"},
			want:  "abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ApplyTransformation(tt.value, tt.tr, row, nil); got != tt.want {
				t.Errorf("ApplyTransformation(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestApplyTransformation_EmptyValueUnchanged(t *testing.T) {
	row := Row{"First": "Jane", "Last": "Doe"}
	types := []TransformationType{
		TransformNone, TransformSplit, TransformConcatenate, TransformUppercase,
		TransformLowercase, TransformTrim, TransformRegexReplace, TransformDateFormat,
		TransformNumberFormat, TransformCustomFormula,
	}

	for _, typ := range types {
		t.Run(string(typ), func(t *testing.T) {
			tr := DefaultTransformation(typ)
			tr.ConcatenateColumns = []string{"First", "Last"}
			tr.RegexPattern = "^"
			tr.RegexReplacement = "x"
			tr.CustomFormula = `"constant"`
			if got := ApplyTransformation("", &tr, row, nil); got != "" {
				t.Errorf("ApplyTransformation(\"\") = %q, want empty", got)
			}
		})
	}
}

func TestApplyTransformation_UppercaseIdempotent(t *testing.T) {
	tr := &Transformation{Type: TransformUppercase}
	for _, v := range []string{"hello", "MiXeD 123", "straße", ""} {
		once := ApplyTransformation(v, tr, nil, nil)
		twice := ApplyTransformation(once, tr, nil, nil)
		if once != twice {
			t.Errorf("uppercase(%q) = %q, applied twice = %q", v, once, twice)
		}
	}
}

func TestCompileTransformation(t *testing.T) {
	t.Run("nil compiles to none", func(t *testing.T) {
		ct, err := CompileTransformation(nil, CompileOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ct.Type() != TransformNone {
			t.Errorf("Type() = %q, want none", ct.Type())
		}
	})

	t.Run("empty tag compiles to none", func(t *testing.T) {
		ct, err := CompileTransformation(&Transformation{}, CompileOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ct.Type() != TransformNone {
			t.Errorf("Type() = %q, want none", ct.Type())
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := CompileTransformation(&Transformation{Type: "reverse"}, CompileOptions{})
		if !errors.Is(err, ErrUnknownTransformation) {
			t.Errorf("error = %v, want ErrUnknownTransformation", err)
		}
	})

	t.Run("bad regex flag", func(t *testing.T) {
		_, err := CompileTransformation(&Transformation{
			Type: TransformRegexReplace, RegexPattern: "a", RegexFlags: Ptr("q"),
		}, CompileOptions{})
		if err == nil {
			t.Error("expected error for unknown flag")
		}
	})

	t.Run("formula over node budget", func(t *testing.T) {
		_, err := CompileTransformation(&Transformation{
			Type: TransformCustomFormula, CustomFormula: `value + value + value + value + value`,
		}, CompileOptions{MaxFormulaNodes: 3})
		if err == nil {
			t.Error("expected error for oversized formula")
		}
	})

	t.Run("nil receiver applies nothing", func(t *testing.T) {
		var ct *CompiledTransformation
		if got := ct.Apply("x", nil); got != "x" {
			t.Errorf("Apply() = %q, want x", got)
		}
	})
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		num      float64
		decimals int
		want     string
	}{
		{0, 2, "0.00"},
		{999, 0, "999"},
		{1000, 0, "1,000"},
		{123456, 1, "123,456.0"},
		{-0.5, 2, "-0.50"},
		{1e9, 0, "1,000,000,000"},
	}

	for _, tt := range tests {
		if got := FormatNumber(tt.num, tt.decimals, ",", "."); got != tt.want {
			t.Errorf("FormatNumber(%v, %d) = %q, want %q", tt.num, tt.decimals, got, tt.want)
		}
	}
}

func TestReplacementTemplate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"$1", "${1}"},
		{"$12x", "${12}x"},
		{"$&", "${0}"},
		{"$$", "$$"},
		{"$", "$$"},
		{"$x", "$$x"},
	}

	for _, tt := range tests {
		if got := replacementTemplate(tt.in); got != tt.want {
			t.Errorf("replacementTemplate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
