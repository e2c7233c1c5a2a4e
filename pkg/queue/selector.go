package queue

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aretw0/rehearsal/pkg/domain"
)

// Selector decides whether a consumer accepts a message.
type Selector interface {
	Matches(msg *domain.Message) bool
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(msg *domain.Message) bool

func (f SelectorFunc) Matches(msg *domain.Message) bool { return f(msg) }

// AcceptAll matches every message.
var AcceptAll Selector = SelectorFunc(func(*domain.Message) bool { return true })

// HeaderSelector matches messages whose headers equal every given value.
type HeaderSelector map[string]string

func (s HeaderSelector) Matches(msg *domain.Message) bool {
	for k, v := range s {
		if _, ok := msg.Header(k); !ok || msg.HeaderString(k) != v {
			return false
		}
	}
	return true
}

func (s HeaderSelector) String() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s = '%s'", k, s[k])
	}
	return strings.Join(parts, " AND ")
}

// CorrelationSelector matches replies carrying the given correlation id.
func CorrelationSelector(id string) HeaderSelector {
	return HeaderSelector{domain.HeaderCorrelationID: id}
}

var andSplit = regexp.MustCompile(`(?i)\s+AND\s+`)

// ParseSelector parses header equality expressions joined by AND, e.g.
// "id = 'abc' AND operation = greet". Values may be single-quoted or bare.
// An empty expression accepts everything.
func ParseSelector(expr string) (Selector, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return AcceptAll, nil
	}
	sel := HeaderSelector{}
	for _, clause := range andSplit.Split(expr, -1) {
		key, value, ok := strings.Cut(clause, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("%w: malformed selector clause %q", domain.ErrInvalidConfiguration, clause)
		}
		if len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'' {
			value = value[1 : len(value)-1]
		}
		sel[key] = value
	}
	return sel, nil
}
