package runner

import (
	"log/slog"
	"time"

	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/ports"
	"github.com/aretw0/rehearsal/pkg/testcontext"
)

// DefaultAsyncTimeout bounds how long Stop waits for async branches.
const DefaultAsyncTimeout = 30 * time.Second

// DefaultLockTTL is the lock expiry used by WithLocker when none is given.
const DefaultLockTTL = 5 * time.Minute

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithClass sets the test class reported in the result.
func WithClass(class string) Option {
	return func(r *Runner) {
		r.class = class
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithHooks registers lifecycle callbacks for the run and its actions.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

// WithResultStore persists the finalized result.
func WithResultStore(store ports.ResultStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithLocker makes Start acquire an exclusive lock named after the test,
// held until Stop. A ttl <= 0 selects DefaultLockTTL.
func WithLocker(locker ports.Locker, ttl time.Duration) Option {
	return func(r *Runner) {
		if ttl <= 0 {
			ttl = DefaultLockTTL
		}
		r.locker = locker
		r.lockTTL = ttl
	}
}

// WithAsyncTimeout bounds how long Stop waits for async branches.
// A timeout <= 0 waits without bound.
func WithAsyncTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.asyncTimeout = d
	}
}

// WithFinally registers actions that always run when the test stops.
func WithFinally(builders ...action.Builder) Option {
	return func(r *Runner) {
		r.finally = append(r.finally, builders...)
	}
}

// WithContextOptions passes options to the Test Context the runner creates.
func WithContextOptions(opts ...testcontext.Option) Option {
	return func(r *Runner) {
		r.contextOpts = append(r.contextOpts, opts...)
	}
}
