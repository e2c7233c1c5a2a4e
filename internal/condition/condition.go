// Package condition evaluates boolean loop and branch conditions and detects
// loops that provably never terminate.
package condition

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/expr-lang/expr"
)

// Evaluate compiles expression against env and runs it. The expression
// must produce a bool.
func Evaluate(expression string, env map[string]any) (bool, error) {
	if env == nil {
		env = map[string]any{}
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", expression, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", expression, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q: result %v is not a bool", expression, out)
	}
	return b, nil
}

// Validate checks that expression parses as a bool expression. Undefined
// names are allowed since variables are only known at run time.
func Validate(expression string) error {
	_, err := expr.Compile(expression, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return fmt.Errorf("condition %q: %w", expression, err)
	}
	return nil
}

var comparison = regexp.MustCompile(`^\s*(\w+)\s*(<=|<|>=|>|==|!=)\s*(-?\d+)\s*$`)

var negated = map[string]string{
	"<":  ">=",
	"<=": ">",
	">":  "<=",
	">=": "<",
	"==": "!=",
	"!=": "==",
}

// NeverTerminates reports whether a loop provably runs forever. The loop
// keeps going while continuation holds (or, with negate, while it does not
// hold), and its index takes the values start, start+step, start+2*step...
//
// Only simple "index OP number" comparisons are analysed; anything else
// reports false.
func NeverTerminates(continuation string, negate bool, index string, start, step int) bool {
	m := comparison.FindStringSubmatch(continuation)
	if m == nil || m[1] != index {
		return false
	}
	op := m[2]
	if negate {
		op = negated[op]
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return false
	}

	holds := func(i int) bool {
		switch op {
		case "<":
			return i < n
		case "<=":
			return i <= n
		case ">":
			return i > n
		case ">=":
			return i >= n
		case "==":
			return i == n
		default:
			return i != n
		}
	}

	if !holds(start) {
		return false
	}
	switch op {
	case "<", "<=":
		return step <= 0
	case ">", ">=":
		return step >= 0
	case "==":
		return step == 0
	default:
		if step == 0 {
			return true
		}
		d := n - start
		return d%step != 0 || d/step < 0
	}
}
