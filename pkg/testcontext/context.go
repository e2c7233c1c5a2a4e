// Package testcontext holds the mutable state of one test run: variables,
// saved messages, correlation keys, failures, timers and async branches.
//
// A Context is shared by every branch of a single run (including Parallel,
// Async and Timer goroutines) and never across runs. All mutation is
// serialized under one lock.
package testcontext

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/rehearsal/internal/logging"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/registry"
	"github.com/aretw0/rehearsal/pkg/resolver"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultMessageCapacity bounds the number of named message slots.
const DefaultMessageCapacity = 100

// Variable is one entry of a variables snapshot.
type Variable struct {
	Name  string
	Value any
}

// Context is the per-run state store.
type Context struct {
	name     string
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
	resolver *resolver.Resolver
	matchers *registry.Matchers
	capacity int

	mu          sync.RWMutex
	variables   *orderedmap.OrderedMap[string, any]
	messages    *orderedmap.OrderedMap[string, *domain.Message]
	correlation map[string]string
	failure     error
	background  []error
	timers      map[string]chan struct{}

	async     sync.WaitGroup
	asyncDone chan struct{} // shared by concurrent and repeated WaitAsync calls
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the run logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHooks sets the lifecycle hooks fired by actions.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(c *Context) { c.hooks = h }
}

// WithResolver sets the expression resolver.
func WithResolver(r *resolver.Resolver) Option {
	return func(c *Context) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithMatchers sets the validation matcher registry.
func WithMatchers(m *registry.Matchers) Option {
	return func(c *Context) {
		if m != nil {
			c.matchers = m
		}
	}
}

// WithMessageCapacity bounds the number of saved message slots.
func WithMessageCapacity(n int) Option {
	return func(c *Context) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithVariables seeds the store, e.g. with global variables.
// Keys are inserted in the given order.
func WithVariables(vars []Variable) Option {
	return func(c *Context) {
		for _, v := range vars {
			c.variables.Set(v.Name, v.Value)
		}
	}
}

// New creates an empty Context for the named test.
func New(name string, opts ...Option) *Context {
	c := &Context{
		name:        name,
		logger:      logging.NewNop(),
		resolver:    resolver.New(nil),
		matchers:    registry.NewMatchers(),
		capacity:    DefaultMessageCapacity,
		variables:   orderedmap.New[string, any](),
		messages:    orderedmap.New[string, *domain.Message](),
		correlation: make(map[string]string),
		timers:      make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the test name.
func (c *Context) Name() string { return c.name }

// Logger returns the run logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Hooks returns the lifecycle hooks.
func (c *Context) Hooks() domain.LifecycleHooks { return c.hooks }

// Matchers returns the validation matcher registry.
func (c *Context) Matchers() *registry.Matchers { return c.matchers }

// SetVariable stores value under name; the last write wins and is visible
// immediately to every branch.
func (c *Context) SetVariable(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables.Set(name, value)
}

// GetVariable returns the value of name or domain.ErrNotFound.
func (c *Context) GetVariable(name string) (any, error) {
	v, ok := c.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("variable %q: %w", name, domain.ErrNotFound)
	}
	return v, nil
}

// Lookup implements resolver.Variables.
func (c *Context) Lookup(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.variables.Get(name)
}

// HasVariable reports whether name is defined.
func (c *Context) HasVariable(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// Variables returns a snapshot in first-insertion order.
func (c *Context) Variables() []Variable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Variable, 0, c.variables.Len())
	for pair := c.variables.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Variable{Name: pair.Key, Value: pair.Value})
	}
	return out
}

// Resolve expands references in text against the current variables.
func (c *Context) Resolve(text string) (string, error) {
	return c.resolver.Resolve(c, text)
}

// ResolveValue expands references in strings, maps and slices.
func (c *Context) ResolveValue(v any) (any, error) {
	return c.resolver.ResolveValue(c, v)
}

// SaveMessage stores a copy of msg in the named slot. When the number of
// slots exceeds the capacity the least recently saved slot is evicted.
func (c *Context) SaveMessage(slot string, msg *domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages.Delete(slot)
	c.messages.Set(slot, msg.Copy())
	for c.messages.Len() > c.capacity {
		oldest := c.messages.Oldest()
		c.messages.Delete(oldest.Key)
	}
}

// GetMessage returns the message saved in slot or domain.ErrNotFound.
func (c *Context) GetMessage(slot string) (*domain.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.messages.Get(slot)
	if !ok {
		return nil, fmt.Errorf("message slot %q: %w", slot, domain.ErrNotFound)
	}
	return m.Copy(), nil
}

// SaveCorrelationKey records the id of the last request under key.
func (c *Context) SaveCorrelationKey(key, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.correlation[key] = id
}

// CorrelationKey returns the id recorded under key or domain.ErrNotFound.
func (c *Context) CorrelationKey(key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.correlation[key]
	if !ok {
		return "", fmt.Errorf("correlation key %q: %w", key, domain.ErrNotFound)
	}
	return id, nil
}

// RecordFailure stores err as the primary failure unless one is already
// recorded. It reports whether err became the primary failure.
func (c *Context) RecordFailure(err error) bool {
	if err == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return false
	}
	c.failure = err
	return true
}

// Failure returns the primary failure, if any.
func (c *Context) Failure() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failure
}

// RecordBackgroundFailure appends a failure raised outside the main flow
// (Async branches, Timer firings).
func (c *Context) RecordBackgroundFailure(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.background = append(c.background, err)
}

// BackgroundFailures returns the recorded background failures in order.
func (c *Context) BackgroundFailures() []error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]error, len(c.background))
	copy(out, c.background)
	return out
}

// RegisterTimer registers a running timer and returns its stop signal.
// Registering an id that is already running fails.
func (c *Context) RegisterTimer(id string) (<-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.timers[id]; ok {
		return nil, fmt.Errorf("%w: timer %q already running", domain.ErrInvalidConfiguration, id)
	}
	ch := make(chan struct{})
	c.timers[id] = ch
	return ch, nil
}

// UnregisterTimer forgets a timer that finished on its own. stop must be
// the signal RegisterTimer returned; a later timer reusing id is kept.
func (c *Context) UnregisterTimer(id string, stop <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.timers[id]; ok && (<-chan struct{})(ch) == stop {
		delete(c.timers, id)
	}
}

// StopTimer signals the timer with the given id to stop.
// It reports whether such a timer was running.
func (c *Context) StopTimer(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.timers[id]
	if !ok {
		return false
	}
	close(ch)
	delete(c.timers, id)
	return true
}

// StopTimers signals every running timer to stop.
func (c *Context) StopTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.timers {
		close(ch)
		delete(c.timers, id)
	}
}

// Go runs fn in a goroutine tracked by WaitAsync.
func (c *Context) Go(fn func()) {
	c.async.Add(1)
	go func() {
		defer c.async.Done()
		fn()
	}()
}

// WaitAsync blocks until every goroutine started with Go returns, or
// timeout elapses (domain.ErrTimeout). timeout <= 0 waits without bound.
// Calls that time out share one waiter, which exits with the last branch.
func (c *Context) WaitAsync(timeout time.Duration) error {
	done := c.asyncWaiter()
	if timeout <= 0 {
		<-done
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: async actions still running after %s", domain.ErrTimeout, timeout)
	}
}

func (c *Context) asyncWaiter() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.asyncDone != nil {
		return c.asyncDone
	}
	done := make(chan struct{})
	c.asyncDone = done
	go func() {
		c.async.Wait()
		c.mu.Lock()
		c.asyncDone = nil
		c.mu.Unlock()
		close(done)
	}()
	return done
}
