package core

// types.go defines the data model shared by the parser, the engine and the
// persistence boundary. JSON field names follow the mapping file format so a
// saved mapping round-trips without a translation layer.

// ColumnType is the inferred data type of a column.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number"
	TypeEmail   ColumnType = "email"
	TypePhone   ColumnType = "phone"
	TypeURL     ColumnType = "url"
	TypeDate    ColumnType = "date"
	TypeBoolean ColumnType = "boolean"
	TypeUnknown ColumnType = "unknown"
)

// Label returns a display label for the type.
func (t ColumnType) Label() string {
	switch t {
	case TypeEmail:
		return "Email"
	case TypePhone:
		return "Phone"
	case TypeURL:
		return "URL"
	case TypeNumber:
		return "Number"
	case TypeBoolean:
		return "Boolean"
	case TypeDate:
		return "Date"
	case TypeString:
		return "Text"
	default:
		return "Unknown"
	}
}

// MappingAction is the disposition of a target column.
type MappingAction string

const (
	ActionMap    MappingAction = "map"    // fill from a source column, schema position
	ActionIgnore MappingAction = "ignore" // emit empty values
	ActionNew    MappingAction = "new"    // fill from a source column, appended at the end
)

// Column describes one field of a parsed table.
type Column struct {
	Name         string     `json:"name"`
	CleanName    string     `json:"cleanName"`
	Type         ColumnType `json:"type"`
	Samples      []string   `json:"samples"`
	EmptyCount   int        `json:"emptyCount"`
	EmptyPercent float64    `json:"isEmptyPercent"`
	Index        int        `json:"index"`
}

// Row maps column name to cell value. Column order lives on Table.Columns.
type Row map[string]string

// Table is a parsed dataset. It is read-only once returned by the parser.
type Table struct {
	Filename string         `json:"filename"`
	Columns  []Column       `json:"columns"`
	Rows     []Row          `json:"rows"`
	RowCount int            `json:"rowCount"`
	Warnings []ParseWarning `json:"warnings,omitempty"`
}

// ColumnNames returns the column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table declares a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ParseWarning is a non-fatal issue found while parsing.
type ParseWarning struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// TransformationType tags a Transformation.
type TransformationType string

const (
	TransformNone          TransformationType = "none"
	TransformSplit         TransformationType = "split"
	TransformConcatenate   TransformationType = "concatenate"
	TransformUppercase     TransformationType = "uppercase"
	TransformLowercase     TransformationType = "lowercase"
	TransformTrim          TransformationType = "trim"
	TransformRegexReplace  TransformationType = "regex_replace"
	TransformDateFormat    TransformationType = "date_format"
	TransformNumberFormat  TransformationType = "number_format"
	TransformCustomFormula TransformationType = "custom_formula"
)

// Transformation configures a per-cell transformation. Only the parameters
// belonging to Type are read. Pointer fields distinguish "unset" (use the
// default) from an explicit zero value.
type Transformation struct {
	Type TransformationType `json:"type" yaml:"type"`

	SplitDelimiter *string `json:"splitDelimiter,omitempty" yaml:"splitDelimiter,omitempty"`
	SplitIndex     *int    `json:"splitIndex,omitempty" yaml:"splitIndex,omitempty"`

	ConcatenateColumns   []string `json:"concatenateColumns,omitempty" yaml:"concatenateColumns,omitempty"`
	ConcatenateSeparator *string  `json:"concatenateSeparator,omitempty" yaml:"concatenateSeparator,omitempty"`

	RegexPattern     string  `json:"regexPattern,omitempty" yaml:"regexPattern,omitempty"`
	RegexReplacement string  `json:"regexReplacement,omitempty" yaml:"regexReplacement,omitempty"`
	RegexFlags       *string `json:"regexFlags,omitempty" yaml:"regexFlags,omitempty"`

	DateInputFormat  string `json:"dateInputFormat,omitempty" yaml:"dateInputFormat,omitempty"`
	DateOutputFormat string `json:"dateOutputFormat,omitempty" yaml:"dateOutputFormat,omitempty"`

	NumberDecimals           *int    `json:"numberDecimals,omitempty" yaml:"numberDecimals,omitempty"`
	NumberThousandsSeparator *string `json:"numberThousandsSeparator,omitempty" yaml:"numberThousandsSeparator,omitempty"`
	NumberDecimalSeparator   *string `json:"numberDecimalSeparator,omitempty" yaml:"numberDecimalSeparator,omitempty"`

	CustomFormula string `json:"customFormula,omitempty" yaml:"customFormula,omitempty"`
}

// RuleType tags a ValidationRule.
type RuleType string

const (
	RuleRequired    RuleType = "required"
	RuleEmail       RuleType = "email"
	RuleURL         RuleType = "url"
	RulePhone       RuleType = "phone"
	RuleDateRange   RuleType = "date_range"
	RuleNumberRange RuleType = "number_range"
	RuleRegex       RuleType = "regex"
	RuleCustom      RuleType = "custom"
)

// ValidationRule configures one validation check.
type ValidationRule struct {
	Type RuleType `json:"type" yaml:"type"`

	Required bool `json:"required,omitempty" yaml:"required,omitempty"`

	DateMin string `json:"dateMin,omitempty" yaml:"dateMin,omitempty"`
	DateMax string `json:"dateMax,omitempty" yaml:"dateMax,omitempty"`

	NumberMin *float64 `json:"numberMin,omitempty" yaml:"numberMin,omitempty"`
	NumberMax *float64 `json:"numberMax,omitempty" yaml:"numberMax,omitempty"`

	RegexPattern      string `json:"regexPattern,omitempty" yaml:"regexPattern,omitempty"`
	RegexErrorMessage string `json:"regexErrorMessage,omitempty" yaml:"regexErrorMessage,omitempty"`

	CustomExpression   string `json:"customExpression,omitempty" yaml:"customExpression,omitempty"`
	CustomErrorMessage string `json:"customErrorMessage,omitempty" yaml:"customErrorMessage,omitempty"`
}

// ColumnMapping is the configuration for one target column.
type ColumnMapping struct {
	TargetColumn    string           `json:"targetColumn" yaml:"targetColumn"`
	Action          MappingAction    `json:"action" yaml:"action"`
	SourceColumn    string           `json:"sourceColumn,omitempty" yaml:"sourceColumn,omitempty"`
	Transformation  *Transformation  `json:"transformation,omitempty" yaml:"transformation,omitempty"`
	ValidationRules []ValidationRule `json:"validationRules,omitempty" yaml:"validationRules,omitempty"`
}

// OutputSummary describes a generated output. It is recomputed on every
// generation.
type OutputSummary struct {
	TotalRows              int      `json:"totalRows"`
	TotalColumns           int      `json:"totalColumns"`
	MappedColumns          int      `json:"mappedColumns"`
	NewColumns             int      `json:"newColumns"`
	IgnoredColumns         int      `json:"ignoredColumns"`
	ColumnsWithEmptyValues []string `json:"columnsWithEmptyValues"`
	Warnings               []string `json:"warnings"`
}

// Ptr returns a pointer to v. Handy for building Transformation and
// ValidationRule literals.
func Ptr[T any](v T) *T {
	return &v
}
