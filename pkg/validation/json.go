package validation

import (
	"fmt"
	"sort"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/registry"
)

// JSON compares decoded JSON documents. Every expected object key must be
// present in actual (extra actual keys are allowed), arrays must have equal
// length and are compared element-wise, and expected strings may be matcher
// expressions.
func JSON(matchers *registry.Matchers, expected, actual any) error {
	return compareJSON(matchers, "$", expected, actual)
}

func compareJSON(matchers *registry.Matchers, path string, expected, actual any) error {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return &domain.ValidationError{Field: path, Expected: "object", Actual: actual, Reason: "type mismatch"}
		}
		keys := make([]string, 0, len(exp))
		for k := range exp {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := path + "." + k
			av, present := act[k]
			if !present {
				if s, isStr := exp[k].(string); isStr && s == "@ignore@" {
					continue
				}
				return &domain.ValidationError{Field: child, Expected: exp[k], Reason: "missing field"}
			}
			if err := compareJSON(matchers, child, exp[k], av); err != nil {
				return err
			}
		}
		return nil

	case []any:
		act, ok := actual.([]any)
		if !ok {
			return &domain.ValidationError{Field: path, Expected: "array", Actual: actual, Reason: "type mismatch"}
		}
		if len(exp) != len(act) {
			return &domain.ValidationError{Field: path, Expected: len(exp), Actual: len(act), Reason: "array length mismatch"}
		}
		for i := range exp {
			if err := compareJSON(matchers, fmt.Sprintf("%s[%d]", path, i), exp[i], act[i]); err != nil {
				return err
			}
		}
		return nil

	case string:
		if IsMatcherExpression(exp) {
			return Value(matchers, path, exp, scalarString(actual))
		}
		if s, ok := actual.(string); !ok || s != exp {
			return &domain.ValidationError{Field: path, Expected: exp, Actual: actual, Reason: "values not equal"}
		}
		return nil

	default:
		if expected != actual {
			return &domain.ValidationError{Field: path, Expected: expected, Actual: actual, Reason: "values not equal"}
		}
		return nil
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprint(t)
	}
}
