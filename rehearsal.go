package rehearsal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/rehearsal/internal/config"
	"github.com/aretw0/rehearsal/internal/logging"
	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/adapters/process"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/endpoint"
	"github.com/aretw0/rehearsal/pkg/functions"
	"github.com/aretw0/rehearsal/pkg/ports"
	"github.com/aretw0/rehearsal/pkg/queue"
	"github.com/aretw0/rehearsal/pkg/registry"
	"github.com/aretw0/rehearsal/pkg/resolver"
	"github.com/aretw0/rehearsal/pkg/runner"
	"github.com/aretw0/rehearsal/pkg/testcontext"
	"github.com/aretw0/rehearsal/pkg/validation"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Engine is the high-level entry point of the library. It owns what all
// test runs share and creates one runner per test.
type Engine struct {
	logger    *slog.Logger
	hooks     []domain.LifecycleHooks
	store     ports.ResultStore
	locker    ports.Locker
	lockTTL   time.Duration
	functions *registry.Functions
	matchers  *registry.Matchers
	resolver  *resolver.Resolver
	queues    *queue.Registry
	globals   *orderedmap.OrderedMap[string, any]
	commands  []process.Command
	processes *process.Runner

	defaultTimeout  time.Duration
	asyncTimeout    time.Duration
	messageCapacity int
	maxResolveDepth int

	mu        sync.Mutex
	endpoints map[string]endpoint.Endpoint
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConfig applies timeouts, capacities, global variables and commands
// from cfg. Options given after it override its values. Config globals are
// added in name order since a config file map carries none.
//
// The config package is internal, so only the rehearsal command builds a
// cfg. Other programs set the same values with WithDefaultTimeout,
// WithAsyncTimeout, WithMessageCapacity, WithMaxResolveDepth,
// WithGlobalVariable and WithCommand.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		if cfg == nil {
			return
		}
		e.defaultTimeout = cfg.DefaultTimeout
		e.asyncTimeout = cfg.AsyncTimeout
		e.messageCapacity = cfg.MessageStoreCapacity
		e.maxResolveDepth = cfg.MaxResolveDepth
		names := make([]string, 0, len(cfg.GlobalVariables))
		for name := range cfg.GlobalVariables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			e.globals.Set(name, cfg.GlobalVariables[name])
		}
		e.commands = append(e.commands, cfg.Commands...)
	}
}

// WithCommand allow-lists an external command for process.Exec actions.
func WithCommand(c process.Command) Option {
	return func(e *Engine) {
		e.commands = append(e.commands, c)
	}
}

// WithLifecycleHooks registers observability hooks. Hooks from repeated
// calls are all invoked, in registration order.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hooks)
	}
}

// WithResultStore persists the result of every run.
func WithResultStore(store ports.ResultStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker serializes runs of the same test name through locker.
func WithLocker(locker ports.Locker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = locker
		e.lockTTL = ttl
	}
}

// WithGlobalVariable defines a variable visible to every run. Runs see
// globals in the order they were first defined.
func WithGlobalVariable(name string, value any) Option {
	return func(e *Engine) {
		e.globals.Set(name, value)
	}
}

// WithFunction registers prefix:name(...) for expressions.
func WithFunction(prefix, name string, fn registry.Function) Option {
	return func(e *Engine) {
		e.functions.Register(prefix, name, fn)
	}
}

// WithMatcher registers @name(...)@ for message validation.
func WithMatcher(name string, m registry.Matcher) Option {
	return func(e *Engine) {
		e.matchers.Register(name, m)
	}
}

// WithDefaultTimeout sets the receive timeout of endpoints created by the engine.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.defaultTimeout = d
	}
}

// WithAsyncTimeout bounds how long a run waits for its async branches.
func WithAsyncTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.asyncTimeout = d
	}
}

// WithMessageCapacity bounds the message slots kept per run.
func WithMessageCapacity(n int) Option {
	return func(e *Engine) {
		e.messageCapacity = n
	}
}

// WithMaxResolveDepth bounds expression nesting.
func WithMaxResolveDepth(n int) Option {
	return func(e *Engine) {
		e.maxResolveDepth = n
	}
}

// New initializes an Engine with the core function library and the
// default validation matchers.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		functions:       registry.NewFunctions(),
		matchers:        registry.NewMatchers(),
		globals:         orderedmap.New[string, any](),
		defaultTimeout:  endpoint.DefaultTimeout,
		asyncTimeout:    runner.DefaultAsyncTimeout,
		messageCapacity: testcontext.DefaultMessageCapacity,
		maxResolveDepth: resolver.DefaultMaxDepth,
		endpoints:       make(map[string]endpoint.Endpoint),
	}
	functions.RegisterCore(e.functions)
	validation.RegisterDefaultMatchers(e.matchers)

	for _, opt := range opts {
		opt(e)
	}

	switch {
	case e.defaultTimeout < 0:
		return nil, fmt.Errorf("%w: negative default timeout", domain.ErrInvalidConfiguration)
	case e.asyncTimeout < 0:
		return nil, fmt.Errorf("%w: negative async timeout", domain.ErrInvalidConfiguration)
	case e.messageCapacity < 0:
		return nil, fmt.Errorf("%w: negative message capacity", domain.ErrInvalidConfiguration)
	case e.maxResolveDepth < 0:
		return nil, fmt.Errorf("%w: negative resolve depth", domain.ErrInvalidConfiguration)
	}

	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	e.resolver = resolver.New(e.functions, resolver.WithMaxDepth(e.maxResolveDepth))
	e.queues = queue.NewRegistry(e.logger)
	e.processes = process.NewRunner(process.WithCommands(e.commands))
	return e, nil
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Functions returns the function registry shared by all runs.
func (e *Engine) Functions() *registry.Functions { return e.functions }

// Matchers returns the validation matcher registry shared by all runs.
func (e *Engine) Matchers() *registry.Matchers { return e.matchers }

// Queues returns the registry of named correlation queues.
func (e *Engine) Queues() *queue.Registry { return e.queues }

// Processes returns the runner of allow-listed commands.
func (e *Engine) Processes() *process.Runner { return e.processes }

// Store returns the configured result store, if any.
func (e *Engine) Store() ports.ResultStore { return e.store }

// Queue returns the named queue, creating it on first use.
func (e *Engine) Queue(name string) *queue.Queue { return e.queues.Get(name) }

// DirectEndpoint returns the asynchronous endpoint backed by the queue of
// the same name. Repeated calls return the same endpoint.
func (e *Engine) DirectEndpoint(name string) *endpoint.Direct {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ep, ok := e.endpoints[name].(*endpoint.Direct); ok {
		return ep
	}
	ep := endpoint.NewDirect(name, e.queues.Get(name), endpoint.WithTimeout(e.defaultTimeout))
	e.endpoints[name] = ep
	return ep
}

// SyncEndpoint returns the request/reply endpoint backed by the queues
// "<name>" (requests) and "<name>.reply" (replies).
func (e *Engine) SyncEndpoint(name string) *endpoint.DirectSync {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ep, ok := e.endpoints[name].(*endpoint.DirectSync); ok {
		return ep
	}
	ep := endpoint.NewDirectSync(name, e.queues.Get(name), e.queues.Get(name+".reply"), endpoint.WithTimeout(e.defaultTimeout))
	e.endpoints[name] = ep
	return ep
}

// globalVariables returns the globals in definition order.
func (e *Engine) globalVariables() []testcontext.Variable {
	vars := make([]testcontext.Variable, 0, e.globals.Len())
	for pair := e.globals.Oldest(); pair != nil; pair = pair.Next() {
		vars = append(vars, testcontext.Variable{Name: pair.Key, Value: pair.Value})
	}
	return vars
}

// NewRunner creates a runner for one test, wired to the engine's
// registries, hooks and result store. opts are applied last.
func (e *Engine) NewRunner(name string, opts ...runner.Option) *runner.Runner {
	base := []runner.Option{
		runner.WithLogger(e.logger),
		runner.WithHooks(domain.ComposeHooks(e.hooks...)),
		runner.WithAsyncTimeout(e.asyncTimeout),
		runner.WithContextOptions(
			testcontext.WithResolver(e.resolver),
			testcontext.WithMatchers(e.matchers),
			testcontext.WithMessageCapacity(e.messageCapacity),
			testcontext.WithVariables(e.globalVariables()),
		),
	}
	if e.store != nil {
		base = append(base, runner.WithResultStore(e.store))
	}
	if e.locker != nil {
		base = append(base, runner.WithLocker(e.locker, e.lockTTL))
	}
	return runner.New(name, append(base, opts...)...)
}

// Run executes body as one test and returns its result.
func (e *Engine) Run(ctx context.Context, name string, body []action.Builder, opts ...runner.Option) (domain.TestResult, error) {
	return e.NewRunner(name, opts...).Execute(ctx, body)
}
