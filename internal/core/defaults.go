package core

// DefaultValidationRules returns the rules suggested for a detected column
// type. Only the format types get a rule; everything else starts empty.
func DefaultValidationRules(t ColumnType) []ValidationRule {
	switch t {
	case TypeEmail:
		return []ValidationRule{{Type: RuleEmail}}
	case TypeURL:
		return []ValidationRule{{Type: RuleURL}}
	case TypePhone:
		return []ValidationRule{{Type: RulePhone}}
	default:
		return []ValidationRule{}
	}
}

// AvailableTransformations lists the transformations offered for a column
// type.
func AvailableTransformations(t ColumnType) []TransformationType {
	base := []TransformationType{
		TransformNone, TransformTrim, TransformUppercase, TransformLowercase, TransformRegexReplace,
	}
	switch t {
	case TypeString:
		return append(base, TransformSplit, TransformConcatenate, TransformCustomFormula)
	case TypeDate:
		return []TransformationType{TransformNone, TransformDateFormat, TransformCustomFormula}
	case TypeNumber:
		return []TransformationType{TransformNone, TransformNumberFormat, TransformCustomFormula}
	case TypeEmail, TypeURL, TypePhone:
		return append(base, TransformCustomFormula)
	default:
		return base
	}
}

// DefaultTransformation returns a transformation of the given type with its
// parameters pre-filled.
func DefaultTransformation(t TransformationType) Transformation {
	switch t {
	case TransformSplit:
		return Transformation{Type: t, SplitDelimiter: Ptr(" "), SplitIndex: Ptr(0)}
	case TransformConcatenate:
		return Transformation{Type: t, ConcatenateColumns: []string{}, ConcatenateSeparator: Ptr(" ")}
	case TransformRegexReplace:
		return Transformation{Type: t, RegexFlags: Ptr("g")}
	case TransformDateFormat:
		return Transformation{Type: t, DateInputFormat: "YYYY-MM-DD", DateOutputFormat: "MM/DD/YYYY"}
	case TransformNumberFormat:
		return Transformation{
			Type:                     t,
			NumberDecimals:           Ptr(2),
			NumberThousandsSeparator: Ptr(","),
			NumberDecimalSeparator:   Ptr("."),
		}
	case TransformCustomFormula:
		return Transformation{Type: t, CustomFormula: "value"}
	case TransformUppercase, TransformLowercase, TransformTrim:
		return Transformation{Type: t}
	default:
		return Transformation{Type: TransformNone}
	}
}
