package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/registry"
	"github.com/google/uuid"
)

// RegisterDefaultMatchers registers the built-in validation matchers into r.
func RegisterDefaultMatchers(r *registry.Matchers) {
	r.Register("ignore", matchIgnore)
	r.Register("equalsIgnoreCase", matchEqualsIgnoreCase)
	r.Register("contains", matchContains)
	r.Register("startsWith", matchStartsWith)
	r.Register("endsWith", matchEndsWith)
	r.Register("matches", matchRegexp)
	r.Register("isNumber", matchIsNumber)
	r.Register("greaterThan", matchGreaterThan)
	r.Register("lowerThan", matchLowerThan)
	r.Register("notEmpty", matchNotEmpty)
	r.Register("isUUID", matchIsUUID)
}

func mismatch(field, actual string, expected any, reason string) error {
	return &domain.ValidationError{Field: field, Expected: expected, Actual: actual, Reason: reason}
}

func oneParam(name string, params []string) (string, error) {
	if len(params) != 1 {
		return "", fmt.Errorf("%w: matcher %s expects 1 parameter, got %d", domain.ErrInvalidConfiguration, name, len(params))
	}
	return params[0], nil
}

func matchIgnore(string, string, []string) error { return nil }

func matchEqualsIgnoreCase(field, actual string, params []string) error {
	want, err := oneParam("equalsIgnoreCase", params)
	if err != nil {
		return err
	}
	if !strings.EqualFold(actual, want) {
		return mismatch(field, actual, want, "not equal ignoring case")
	}
	return nil
}

func matchContains(field, actual string, params []string) error {
	want, err := oneParam("contains", params)
	if err != nil {
		return err
	}
	if !strings.Contains(actual, want) {
		return mismatch(field, actual, want, "does not contain expected text")
	}
	return nil
}

func matchStartsWith(field, actual string, params []string) error {
	want, err := oneParam("startsWith", params)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(actual, want) {
		return mismatch(field, actual, want, "does not start with expected prefix")
	}
	return nil
}

func matchEndsWith(field, actual string, params []string) error {
	want, err := oneParam("endsWith", params)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(actual, want) {
		return mismatch(field, actual, want, "does not end with expected suffix")
	}
	return nil
}

func matchRegexp(field, actual string, params []string) error {
	pattern, err := oneParam("matches", params)
	if err != nil {
		return err
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return fmt.Errorf("%w: invalid pattern %q: %v", domain.ErrInvalidConfiguration, pattern, err)
	}
	if !re.MatchString(actual) {
		return mismatch(field, actual, pattern, "does not match pattern")
	}
	return nil
}

func matchIsNumber(field, actual string, _ []string) error {
	if _, err := strconv.ParseFloat(strings.TrimSpace(actual), 64); err != nil {
		return mismatch(field, actual, "number", "not a number")
	}
	return nil
}

func compareNumbers(name, field, actual string, params []string, ok func(a, b float64) bool) error {
	bound, err := oneParam(name, params)
	if err != nil {
		return err
	}
	b, err := strconv.ParseFloat(strings.TrimSpace(bound), 64)
	if err != nil {
		return fmt.Errorf("%w: matcher %s bound %q is not a number", domain.ErrInvalidConfiguration, name, bound)
	}
	a, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	if err != nil {
		return mismatch(field, actual, bound, "not a number")
	}
	if !ok(a, b) {
		return mismatch(field, actual, bound, name+" failed")
	}
	return nil
}

func matchGreaterThan(field, actual string, params []string) error {
	return compareNumbers("greaterThan", field, actual, params, func(a, b float64) bool { return a > b })
}

func matchLowerThan(field, actual string, params []string) error {
	return compareNumbers("lowerThan", field, actual, params, func(a, b float64) bool { return a < b })
}

func matchNotEmpty(field, actual string, _ []string) error {
	if strings.TrimSpace(actual) == "" {
		return mismatch(field, actual, "non-empty value", "empty")
	}
	return nil
}

func matchIsUUID(field, actual string, _ []string) error {
	if _, err := uuid.Parse(actual); err != nil {
		return mismatch(field, actual, "uuid", "not a UUID")
	}
	return nil
}
