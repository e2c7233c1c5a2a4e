// Package resolver expands ${variable} references and prefix:function(args)
// calls inside text.
//
// Nested forms are resolved innermost-first, so ${${name}} looks up the
// variable whose name is the value of "name", and
// core:concat(core:upperCase('a'), ${b}) resolves the inner call and the
// variable before calling concat. A resolved value that itself contains
// references is scanned again, bounded by a maximum depth.
package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/registry"
)

// DefaultMaxDepth bounds nested and re-scanned resolution.
const DefaultMaxDepth = 20

var (
	callPrefix   = regexp.MustCompile(`^([A-Za-z][\w-]*):([A-Za-z]\w*)\(`)
	callAnywhere = regexp.MustCompile(`(^|[^\w-])[A-Za-z][\w-]*:[A-Za-z]\w*\(`)
)

// Variables is the read-only view of a variable store.
type Variables interface {
	Lookup(name string) (any, bool)
}

// Map adapts a plain map to Variables.
type Map map[string]any

func (m Map) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Resolver is safe for concurrent use; it holds no per-call state.
type Resolver struct {
	functions *registry.Functions
	maxDepth  int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxDepth overrides DefaultMaxDepth. Non-positive values are ignored.
func WithMaxDepth(depth int) Option {
	return func(r *Resolver) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// New creates a resolver over the given function registry. A nil registry
// makes every function call fail with domain.ErrUnknownFunction.
func New(functions *registry.Functions, opts ...Option) *Resolver {
	if functions == nil {
		functions = registry.NewFunctions()
	}
	r := &Resolver{functions: functions, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns text with every reference replaced by its value.
// Text without references is returned unchanged.
func (r *Resolver) Resolve(vars Variables, text string) (string, error) {
	return r.resolve(vars, text, 0)
}

// ResolveValue resolves strings, and recursively the elements of maps and
// slices. Other values are returned untouched.
func (r *Resolver) ResolveValue(vars Variables, v any) (any, error) {
	switch t := v.(type) {
	case string:
		return r.Resolve(vars, t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			rv, err := r.ResolveValue(vars, e)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, e := range t {
			rv, err := r.Resolve(vars, e)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			rv, err := r.ResolveValue(vars, e)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case []string:
		out := make([]string, len(t))
		for i, e := range t {
			rv, err := r.Resolve(vars, e)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// HasReferences reports whether text contains anything Resolve would expand.
func HasReferences(text string) bool {
	return strings.Contains(text, "${") || callAnywhere.MatchString(text)
}

func (r *Resolver) resolve(vars Variables, text string, depth int) (string, error) {
	if depth > r.maxDepth {
		return "", fmt.Errorf("%w: deeper than %d levels", domain.ErrRecursionLimitExceeded, r.maxDepth)
	}
	if !HasReferences(text) {
		return text, nil
	}

	var b strings.Builder
	i := 0
	for i < len(text) {
		if strings.HasPrefix(text[i:], "${") {
			end := closingBrace(text, i+2)
			if end < 0 {
				// unterminated: keep the rest literally
				b.WriteString(text[i:])
				break
			}
			val, err := r.variable(vars, text[i+2:end], depth)
			if err != nil {
				return "", err
			}
			b.WriteString(val)
			i = end + 1
			continue
		}

		if startsIdentifier(text, i) {
			if m := callPrefix.FindStringSubmatch(text[i:]); m != nil {
				open := i + len(m[0]) - 1
				end := closingParen(text, open+1)
				if end >= 0 {
					val, err := r.call(vars, m[1], m[2], text[open+1:end], depth)
					if err != nil {
						return "", err
					}
					b.WriteString(val)
					i = end + 1
					continue
				}
			}
		}

		b.WriteByte(text[i])
		i++
	}
	return b.String(), nil
}

func (r *Resolver) variable(vars Variables, rawName string, depth int) (string, error) {
	name, err := r.resolve(vars, rawName, depth+1)
	if err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)

	var (
		v  any
		ok bool
	)
	if vars != nil {
		v, ok = vars.Lookup(name)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnresolvedVariable, name)
	}
	s := stringify(v)
	if HasReferences(s) {
		return r.resolve(vars, s, depth+1)
	}
	return s, nil
}

func (r *Resolver) call(vars Variables, prefix, name, rawArgs string, depth int) (string, error) {
	fn, err := r.functions.Lookup(prefix, name)
	if err != nil {
		return "", err
	}

	var args []string
	if strings.TrimSpace(rawArgs) != "" {
		for _, raw := range splitArgs(rawArgs) {
			arg, err := r.resolve(vars, strings.TrimSpace(raw), depth+1)
			if err != nil {
				return "", err
			}
			args = append(args, unquote(arg))
		}
	}

	out, err := fn(args)
	if err != nil {
		return "", fmt.Errorf("function %s:%s: %w", prefix, name, err)
	}
	if HasReferences(out) {
		return r.resolve(vars, out, depth+1)
	}
	return out, nil
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '-' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// startsIdentifier reports whether position i can begin a function prefix.
func startsIdentifier(text string, i int) bool {
	c := text[i]
	if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
		return false
	}
	return i == 0 || !isIdentChar(text[i-1])
}

// closingBrace returns the index of the '}' closing a "${" opened before from.
func closingBrace(text string, from int) int {
	depth := 1
	for i := from; i < len(text); i++ {
		switch {
		case strings.HasPrefix(text[i:], "${"):
			depth++
			i++
		case text[i] == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// closingParen returns the index of the ')' closing a '(' opened before from,
// ignoring parentheses inside single quotes.
func closingParen(text string, from int) int {
	depth := 1
	quoted := false
	for i := from; i < len(text); i++ {
		switch c := text[i]; {
		case c == '\'':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitArgs splits on commas that are outside quotes, parentheses and ${...}.
func splitArgs(s string) []string {
	var (
		out    []string
		parens int
		braces int
		quoted bool
		start  int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			quoted = !quoted
		case quoted:
		case c == '$' && i+1 < len(s) && s[i+1] == '{':
			braces++
			i++
		case c == '}' && braces > 0:
			braces--
		case c == '(':
			parens++
		case c == ')':
			parens--
		case c == ',' && parens == 0 && braces == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any:
		if b, err := json.Marshal(t); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}
