// Package formula compiles and runs the small expressions that mapping
// authors attach to columns (custom_formula transformations and custom
// validation rules).
//
// Expressions are parsed by github.com/expr-lang/expr against a fixed
// environment: the cell value, the current row, the row index and a handful
// of helper functions. There is no access to the host program. Referencing
// any other identifier fails at compile time, and expressions larger than
// the node budget are rejected before they ever run.
//
//	value + " (" + row['Country'] + ")"
//	isEmpty(value) || parseFloat(value) > 0
//	substring(toUpperCase(value), 0, 3)
package formula

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultMaxNodes bounds expression size when the compiler has no limit set.
const DefaultMaxNodes uint = 1000

// Env is the evaluation environment. It is the only state an expression can
// read.
type Env struct {
	Value    string            `expr:"value"`
	Row      map[string]string `expr:"row"`
	RowIndex int               `expr:"rowIndex"`
}

// Compiler turns expression source into programs. The zero value is usable.
type Compiler struct {
	// MaxNodes is the largest accepted expression tree. Zero means
	// DefaultMaxNodes.
	MaxNodes uint
}

// Program is a compiled expression, safe for concurrent use.
type Program struct {
	src  string
	prog *vm.Program
}

// Compile parses src against the fixed environment.
func (c Compiler) Compile(src string) (*Program, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("compile formula: empty expression")
	}

	maxNodes := c.MaxNodes
	if maxNodes == 0 {
		maxNodes = DefaultMaxNodes
	}

	opts := append([]expr.Option{
		expr.Env(Env{}),
		expr.MaxNodes(maxNodes),
	}, helpers...)

	prog, err := expr.Compile(src, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile formula %q: %w", src, err)
	}
	return &Program{src: src, prog: prog}, nil
}

// Compile compiles src with the default node budget.
func Compile(src string) (*Program, error) {
	return Compiler{}.Compile(src)
}

// Source returns the expression text.
func (p *Program) Source() string {
	return p.src
}

// Run evaluates the program. Panics inside helpers are returned as errors.
func (p *Program) Run(env Env) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate formula: %v", r)
		}
	}()
	if env.Row == nil {
		env.Row = map[string]string{}
	}
	out, err := expr.Run(p.prog, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate formula: %w", err)
	}
	return out, nil
}

// RunString evaluates the program and renders the result as cell text.
func (p *Program) RunString(env Env) (string, error) {
	out, err := p.Run(env)
	if err != nil {
		return "", err
	}
	return Stringify(out), nil
}

// RunBool evaluates the program and reports whether the result is truthy.
func (p *Program) RunBool(env Env) (bool, error) {
	out, err := p.Run(env)
	if err != nil {
		return false, err
	}
	return Truthy(out), nil
}

// Stringify renders an expression result as cell text. Floats use the
// shortest exact representation; nil becomes "".
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// Truthy follows the usual scripting rules: false, zero, "" and nil are
// false, everything else is true.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	default:
		return true
	}
}
