package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/rehearsal/pkg/domain"
)

// Function defines the signature for an expression function implementation.
// Arguments arrive already resolved and unquoted.
type Function func(args []string) (string, error)

// Functions manages function libraries addressed by prefix, e.g. "core:concat".
type Functions struct {
	mu   sync.RWMutex
	libs map[string]map[string]Function
}

// NewFunctions creates a new empty function registry.
func NewFunctions() *Functions {
	return &Functions{
		libs: make(map[string]map[string]Function),
	}
}

// Register adds a function to the library with the given prefix.
// If a function with the same name exists, it is overwritten.
func (r *Functions) Register(prefix, name string, fn Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lib, ok := r.libs[prefix]
	if !ok {
		lib = make(map[string]Function)
		r.libs[prefix] = lib
	}
	lib[name] = fn
}

// Lookup finds a function by library prefix and name.
// Returns domain.ErrUnknownFunction if either is missing.
func (r *Functions) Lookup(prefix, name string) (Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lib, ok := r.libs[prefix]
	if !ok {
		return nil, fmt.Errorf("%w: no library with prefix %q", domain.ErrUnknownFunction, prefix)
	}
	fn, ok := lib[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", domain.ErrUnknownFunction, prefix, name)
	}
	return fn, nil
}

// HasLibrary reports whether any function is registered under prefix.
func (r *Functions) HasLibrary(prefix string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.libs[prefix]
	return ok
}

// Prefixes returns the registered library prefixes, sorted.
func (r *Functions) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.libs))
	for p := range r.libs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Matcher validates one actual value. It returns nil when the value matches,
// or an error (usually a *domain.ValidationError) describing the mismatch.
type Matcher func(field, actual string, params []string) error

// Matchers manages validation matchers addressed by name, e.g. @contains('x')@.
type Matchers struct {
	mu       sync.RWMutex
	matchers map[string]Matcher
}

// NewMatchers creates a new empty matcher registry.
func NewMatchers() *Matchers {
	return &Matchers{
		matchers: make(map[string]Matcher),
	}
}

// Register adds a matcher. Existing entries are overwritten.
func (r *Matchers) Register(name string, m Matcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matchers[name] = m
}

// Lookup returns the named matcher or domain.ErrUnknownFunction.
func (r *Matchers) Lookup(name string) (Matcher, error) {
	r.mu.RLock()
	m, ok := r.matchers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: matcher not found: %s", domain.ErrUnknownFunction, name)
	}
	return m, nil
}
