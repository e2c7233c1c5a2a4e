// Package validation checks received messages against expectations.
//
// Expected values are compared literally unless they are matcher
// expressions of the form @name(params)@, e.g. @contains('world')@ or
// @ignore@, which are dispatched to the matcher registry.
package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/registry"
)

var matcherExpr = regexp.MustCompile(`^@([A-Za-z]\w*)(?:\((.*)\))?@$`)

// IsMatcherExpression reports whether s has the form @name(params)@.
func IsMatcherExpression(s string) bool {
	return matcherExpr.MatchString(strings.TrimSpace(s))
}

// Value validates one actual value against expected. Expected matcher
// expressions are evaluated through matchers; anything else must be equal.
func Value(matchers *registry.Matchers, field, expected, actual string) error {
	m := matcherExpr.FindStringSubmatch(strings.TrimSpace(expected))
	if m == nil {
		if expected != actual {
			return &domain.ValidationError{Field: field, Expected: expected, Actual: actual, Reason: "values not equal"}
		}
		return nil
	}
	if matchers == nil {
		return fmt.Errorf("%w: no matchers registered for %s", domain.ErrUnknownFunction, expected)
	}
	matcher, err := matchers.Lookup(m[1])
	if err != nil {
		return err
	}
	return matcher(field, actual, parseParams(m[2]))
}

// Headers validates every expected header of msg. Missing headers fail
// unless the expectation is @ignore@.
func Headers(matchers *registry.Matchers, expected map[string]string, msg *domain.Message) error {
	for name, want := range expected {
		if _, ok := msg.Header(name); !ok && strings.TrimSpace(want) != "@ignore@" {
			return &domain.ValidationError{Field: "header " + name, Expected: want, Reason: "header missing"}
		}
		if err := Value(matchers, "header "+name, want, msg.HeaderString(name)); err != nil {
			return err
		}
	}
	return nil
}

// Payload validates the message payload against expected. When both sides
// are JSON documents they are compared structurally (see JSON); otherwise the
// payload text is validated with Value.
func Payload(matchers *registry.Matchers, expected string, msg *domain.Message) error {
	actual := msg.PayloadString()
	var exp, act any
	if json.Unmarshal([]byte(expected), &exp) == nil && json.Unmarshal([]byte(actual), &act) == nil {
		if isContainer(exp) {
			return JSON(matchers, exp, act)
		}
	}
	return Value(matchers, "payload", expected, actual)
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// parseParams splits matcher parameters on commas outside single quotes and
// strips the quotes.
func parseParams(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var (
		out    []string
		cur    strings.Builder
		quoted bool
	)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '\'':
			quoted = !quoted
			cur.WriteByte(c)
		case c == ',' && !quoted:
			out = append(out, unquote(strings.TrimSpace(cur.String())))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(out, unquote(strings.TrimSpace(cur.String())))
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}
