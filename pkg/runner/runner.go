package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/rehearsal/internal/logging"
	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/ports"
	"github.com/aretw0/rehearsal/pkg/testcontext"
)

// State is the lifecycle position of a Runner.
type State string

const (
	StateCreated State = "CREATED"
	StateRunning State = "RUNNING"
	StatePassed  State = "PASSED"
	StateFailed  State = "FAILED"
	StateSkipped State = "SKIPPED"
)

// Runner executes the actions of one test against its own Test Context.
// Its methods are safe for concurrent use, but actions passed to Run are
// executed one at a time in call order by the calling goroutine.
type Runner struct {
	name        string
	class       string
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	store       ports.ResultStore
	locker      ports.Locker
	lockTTL     time.Duration
	contextOpts []testcontext.Option

	asyncTimeout time.Duration

	tc *testcontext.Context

	stopMu     sync.Mutex
	mu         sync.Mutex
	state      State
	started    bool
	startedAt  time.Time
	skipReason string
	finally    []action.Builder
	unlock     ports.UnlockFunc
	result     *domain.TestResult
	stopErr    error
}

// New creates a runner for the named test.
func New(name string, opts ...Option) *Runner {
	r := &Runner{
		name:         name,
		logger:       logging.NewNop(),
		asyncTimeout: DefaultAsyncTimeout,
		state:        StateCreated,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("test", name)

	ctxOpts := append([]testcontext.Option{
		testcontext.WithLogger(r.logger),
		testcontext.WithHooks(r.hooks),
	}, r.contextOpts...)
	r.tc = testcontext.New(name, ctxOpts...)
	return r
}

// Name returns the test name.
func (r *Runner) Name() string { return r.name }

// Context returns the Test Context of the run.
func (r *Runner) Context() *testcontext.Context { return r.tc }

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start moves the runner to RUNNING. With a Locker configured it first
// acquires the lock for the test name; failing to do so fails the test.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateCreated {
		state := r.state
		r.mu.Unlock()
		return fmt.Errorf("%w: cannot start test %q in state %s", domain.ErrInvalidConfiguration, r.name, state)
	}
	r.started = true
	r.startedAt = time.Now()
	r.state = StateRunning
	r.mu.Unlock()

	if r.hooks.OnTestStart != nil {
		r.hooks.OnTestStart(ctx, &domain.TestEvent{
			EventBase: domain.EventBase{Timestamp: r.startedAt, Type: domain.EventTestStart, TestName: r.name},
		})
	}
	r.logger.Info("test started")

	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, r.name, r.lockTTL)
		if err != nil {
			err = fmt.Errorf("acquire lock for test %q: %w", r.name, err)
			r.fail(err)
			return err
		}
		r.mu.Lock()
		r.unlock = unlock
		r.mu.Unlock()
	}
	return nil
}

// Run builds and executes one action. It returns the executed action and
// its failure. Once the test has failed, Run returns the primary failure
// without executing anything.
func (r *Runner) Run(ctx context.Context, b action.Builder) (action.Action, error) {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	switch state {
	case StateRunning:
	case StateFailed:
		return nil, r.tc.Failure()
	default:
		return nil, fmt.Errorf("%w: cannot run actions of test %q in state %s", domain.ErrInvalidConfiguration, r.name, state)
	}

	a := b.Build()
	if err := action.Run(ctx, r.tc, a); err != nil {
		r.fail(err)
		return a, r.tc.Failure()
	}
	return a, nil
}

// Finally registers actions that run when the test stops, whatever its
// outcome. Their failures never replace a primary failure.
func (r *Runner) Finally(builders ...action.Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finally = append(r.finally, builders...)
}

// Skip marks the test as skipped. A failed or finished test cannot be skipped.
func (r *Runner) Skip(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateCreated && r.state != StateRunning {
		return fmt.Errorf("%w: cannot skip test %q in state %s", domain.ErrInvalidConfiguration, r.name, r.state)
	}
	r.state = StateSkipped
	r.skipReason = reason
	r.logger.Info("test skipped", "reason", reason)
	return nil
}

func (r *Runner) fail(err error) {
	if r.tc.RecordFailure(err) {
		r.logger.Warn("test failed", "action", domain.FailedAction(err), "error", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRunning || r.state == StateSkipped {
		r.state = StateFailed
	}
}

// Stop finalizes the test and returns its result. The returned error
// reports infrastructure problems (persistence, lock release); the test
// outcome itself is carried by the result. Stop is idempotent.
func (r *Runner) Stop(ctx context.Context) (domain.TestResult, error) {
	r.stopMu.Lock()
	defer r.stopMu.Unlock()

	r.mu.Lock()
	if r.result != nil {
		defer r.mu.Unlock()
		return *r.result, r.stopErr
	}
	started := r.started
	startedAt := r.startedAt
	finally := r.finally
	r.mu.Unlock()

	if !started {
		startedAt = time.Now()
	}

	// Cleanup must run even when the caller's context is already cancelled.
	cleanup := context.WithoutCancel(ctx)

	if started {
		if err := action.Sequence(cleanup, r.tc, finally); err != nil {
			if !r.tc.RecordFailure(err) {
				r.logger.Warn("finally action failed after primary failure", "error", err)
			} else {
				r.logger.Warn("finally action failed", "action", domain.FailedAction(err), "error", err)
			}
		}
	}

	r.tc.StopTimers()
	if err := r.tc.WaitAsync(r.asyncTimeout); err != nil {
		r.tc.RecordBackgroundFailure(fmt.Errorf("async branches still running after %s: %w", r.asyncTimeout, err))
	}
	r.mergeBackground()

	r.mu.Lock()
	result := r.finalize(startedAt)
	r.result = &result
	unlock := r.unlock
	r.unlock = nil
	r.mu.Unlock()

	var errs []error
	if r.store != nil {
		if err := r.store.Save(cleanup, result); err != nil {
			errs = append(errs, fmt.Errorf("save result of test %q: %w", r.name, err))
		}
	}
	if unlock != nil {
		if err := unlock(cleanup); err != nil {
			errs = append(errs, fmt.Errorf("release lock of test %q: %w", r.name, err))
		}
	}

	if r.hooks.OnTestFinish != nil {
		r.hooks.OnTestFinish(ctx, &domain.TestEvent{
			EventBase: domain.EventBase{Timestamp: result.FinishedAt, Type: domain.EventTestFinish, TestName: r.name},
			Result:    &result,
		})
	}
	r.logger.Info("test finished", "outcome", result.Outcome, "duration", result.Duration())

	stopErr := errors.Join(errs...)
	r.mu.Lock()
	r.stopErr = stopErr
	r.mu.Unlock()
	return result, stopErr
}

// mergeBackground promotes async and timer failures to the primary failure
// when the main body did not fail.
func (r *Runner) mergeBackground() {
	bg := r.tc.BackgroundFailures()
	if len(bg) == 0 {
		return
	}
	var merged error = &domain.AggregateError{Errs: bg}
	if len(bg) == 1 {
		merged = bg[0]
	}
	if !r.tc.RecordFailure(merged) {
		r.logger.Debug("background failures ignored after primary failure", "count", len(bg))
	}
}

// finalize moves to the terminal state and builds the result. Callers hold r.mu.
func (r *Runner) finalize(startedAt time.Time) domain.TestResult {
	cause := r.tc.Failure()
	outcome := domain.OutcomeSuccess
	switch {
	case cause != nil:
		outcome = domain.OutcomeFailure
		r.state = StateFailed
	case r.state == StateSkipped || !r.started:
		outcome = domain.OutcomeSkipped
		reason := r.skipReason
		if reason == "" {
			reason = "test was never started"
		}
		cause = fmt.Errorf("%w: %s", domain.ErrTestSkipped, reason)
		r.state = StateSkipped
	default:
		r.state = StatePassed
	}
	return domain.NewTestResult(r.name, r.class, outcome, cause, startedAt, time.Now())
}

// Execute starts the test, runs body until the first failure and stops it.
func (r *Runner) Execute(ctx context.Context, body []action.Builder) (domain.TestResult, error) {
	if err := r.Start(ctx); err == nil {
		for _, b := range body {
			if _, err := r.Run(ctx, b); err != nil {
				break
			}
		}
	}
	return r.Stop(ctx)
}

// RunTest runs body as one test and returns its finalized result.
func RunTest(ctx context.Context, name string, body []action.Builder, opts ...Option) (domain.TestResult, error) {
	return New(name, opts...).Execute(ctx, body)
}
