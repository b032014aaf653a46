package core

import (
	"slices"
	"testing"
)

func TestDefaultValidationRules(t *testing.T) {
	tests := []struct {
		typ  ColumnType
		want RuleType
	}{
		{TypeEmail, RuleEmail},
		{TypeURL, RuleURL},
		{TypePhone, RulePhone},
	}
	for _, tt := range tests {
		rules := DefaultValidationRules(tt.typ)
		if len(rules) != 1 || rules[0].Type != tt.want {
			t.Errorf("DefaultValidationRules(%s) = %+v, want one %s rule", tt.typ, rules, tt.want)
		}
	}

	for _, typ := range []ColumnType{TypeString, TypeNumber, TypeDate, TypeBoolean, TypeUnknown} {
		rules := DefaultValidationRules(typ)
		if rules == nil || len(rules) != 0 {
			t.Errorf("DefaultValidationRules(%s) = %#v, want empty slice", typ, rules)
		}
	}
}

func TestAvailableTransformations(t *testing.T) {
	tests := []struct {
		typ    ColumnType
		has    []TransformationType
		hasNot []TransformationType
	}{
		{
			typ:    TypeString,
			has:    []TransformationType{TransformNone, TransformSplit, TransformConcatenate, TransformCustomFormula},
			hasNot: []TransformationType{TransformDateFormat, TransformNumberFormat},
		},
		{
			typ:    TypeDate,
			has:    []TransformationType{TransformNone, TransformDateFormat},
			hasNot: []TransformationType{TransformUppercase, TransformNumberFormat},
		},
		{
			typ:    TypeNumber,
			has:    []TransformationType{TransformNone, TransformNumberFormat},
			hasNot: []TransformationType{TransformSplit},
		},
		{
			typ:    TypeEmail,
			has:    []TransformationType{TransformLowercase, TransformCustomFormula},
			hasNot: []TransformationType{TransformSplit},
		},
		{
			typ:    TypeBoolean,
			has:    []TransformationType{TransformNone, TransformTrim},
			hasNot: []TransformationType{TransformCustomFormula},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			got := AvailableTransformations(tt.typ)
			for _, want := range tt.has {
				if !slices.Contains(got, want) {
					t.Errorf("missing %s in %v", want, got)
				}
			}
			for _, bad := range tt.hasNot {
				if slices.Contains(got, bad) {
					t.Errorf("unexpected %s in %v", bad, got)
				}
			}
		})
	}
}

func TestDefaultTransformation(t *testing.T) {
	split := DefaultTransformation(TransformSplit)
	if split.SplitDelimiter == nil || *split.SplitDelimiter != " " || split.SplitIndex == nil || *split.SplitIndex != 0 {
		t.Errorf("split defaults = %+v", split)
	}

	num := DefaultTransformation(TransformNumberFormat)
	if *num.NumberDecimals != 2 || *num.NumberThousandsSeparator != "," || *num.NumberDecimalSeparator != "." {
		t.Errorf("number defaults = %+v", num)
	}

	if got := DefaultTransformation("bogus"); got.Type != TransformNone {
		t.Errorf("unknown type default = %+v", got)
	}

	// Every default compiles.
	for _, typ := range AvailableTransformations(TypeString) {
		tr := DefaultTransformation(typ)
		if _, err := CompileTransformation(&tr, CompileOptions{}); err != nil {
			t.Errorf("default %s does not compile: %v", typ, err)
		}
	}
}
