package container

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/rehearsal/internal/condition"
	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/resolver"
	"github.com/aretw0/rehearsal/pkg/testcontext"
)

// LoopConditionFunc decides a loop condition in code instead of an expression.
type LoopConditionFunc func(index int, tc *testcontext.Context) (bool, error)

// Backoff returns the pause before retry number attempt (1-based) given
// the configured base sleep.
type Backoff func(attempt int, base time.Duration) time.Duration

// LinearBackoff sleeps base × attempt.
func LinearBackoff(attempt int, base time.Duration) time.Duration {
	return base * time.Duration(attempt)
}

// ExponentialBackoff doubles the sleep on every attempt, capped at limit
// (no cap when limit <= 0).
func ExponentialBackoff(limit time.Duration) Backoff {
	return func(attempt int, base time.Duration) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if limit > 0 && d >= limit {
				return limit
			}
		}
		if limit > 0 && d > limit {
			return limit
		}
		return d
	}
}

type loop struct {
	condition string
	condFn    LoopConditionFunc
	index     string
	start     int
	step      int
	autoSleep time.Duration
	backoff   Backoff
	children  []action.Builder
}

// LoopOption configures Iterate, RepeatUntilTrue and RepeatOnErrorUntilTrue.
type LoopOption func(*loop)

// WithIndex names the index variable (default "i").
func WithIndex(name string) LoopOption {
	return func(l *loop) { l.index = name }
}

// WithStart sets the first index value (default 1).
func WithStart(n int) LoopOption {
	return func(l *loop) { l.start = n }
}

// WithStep sets the index increment (default 1).
func WithStep(n int) LoopOption {
	return func(l *loop) { l.step = n }
}

// WithConditionFunc replaces the condition expression.
func WithConditionFunc(fn LoopConditionFunc) LoopOption {
	return func(l *loop) { l.condFn = fn }
}

// WithAutoSleep sets the base pause between retries of RepeatOnErrorUntilTrue.
func WithAutoSleep(d time.Duration) LoopOption {
	return func(l *loop) { l.autoSleep = d }
}

// WithBackoff sets the retry pause curve of RepeatOnErrorUntilTrue
// (default LinearBackoff).
func WithBackoff(b Backoff) LoopOption {
	return func(l *loop) {
		if b != nil {
			l.backoff = b
		}
	}
}

func newLoop(kind, cond string, children []action.Builder, opts []LoopOption) (*loop, error) {
	l := &loop{condition: cond, index: "i", start: 1, step: 1, backoff: LinearBackoff, children: children}
	for _, opt := range opts {
		opt(l)
	}
	if l.index == "" {
		return nil, fmt.Errorf("%w: %s needs an index variable name", domain.ErrInvalidConfiguration, kind)
	}
	if l.step == 0 {
		return nil, fmt.Errorf("%w: %s step must not be zero", domain.ErrInvalidConfiguration, kind)
	}
	if l.autoSleep < 0 {
		return nil, fmt.Errorf("%w: %s auto sleep must not be negative", domain.ErrInvalidConfiguration, kind)
	}
	if l.condFn != nil {
		return l, nil
	}
	if l.condition == "" {
		return nil, fmt.Errorf("%w: %s needs a condition", domain.ErrInvalidConfiguration, kind)
	}
	if !resolver.HasReferences(l.condition) {
		if err := condition.Validate(l.condition); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfiguration, kind, err)
		}
	}
	return l, nil
}

// evaluate sets the index variable and decides the condition for index i.
func (l *loop) evaluate(tc *testcontext.Context, i int) (bool, error) {
	tc.SetVariable(l.index, i)
	if l.condFn != nil {
		return l.condFn(i, tc)
	}
	return evaluateExpression(tc, l.condition)
}

func evaluateExpression(tc *testcontext.Context, expression string) (bool, error) {
	resolved, err := tc.Resolve(expression)
	if err != nil {
		return false, err
	}
	vars := tc.Variables()
	env := make(map[string]any, len(vars))
	for _, v := range vars {
		env[v.Name] = v.Value
	}
	return condition.Evaluate(resolved, env)
}

// Iterate runs its children while the condition holds, checking it before
// every pass. The index variable starts at Start and advances by Step.
// Zero passes is a valid outcome.
type Iterate struct{ *loop }

// NewIterate creates an Iterate container. Conditions of the form
// "index OP number" that can never become false are rejected.
func NewIterate(cond string, children []action.Builder, opts ...LoopOption) (*Iterate, error) {
	l, err := newLoop("iterate", cond, children, opts)
	if err != nil {
		return nil, err
	}
	if l.condFn == nil && condition.NeverTerminates(l.condition, false, l.index, l.start, l.step) {
		return nil, fmt.Errorf("%w: iterate condition %q never becomes false", domain.ErrInvalidConfiguration, l.condition)
	}
	return &Iterate{l}, nil
}

func (*Iterate) Name() string { return "iterate" }

func (it *Iterate) Execute(ctx context.Context, tc *testcontext.Context) error {
	for i := it.start; ; i += it.step {
		ok, err := it.evaluate(tc, i)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := action.Sequence(ctx, tc, it.children); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// RepeatUntilTrue runs a pass, then checks the condition with the index of
// that pass, and stops once it holds. At least one pass always runs.
type RepeatUntilTrue struct{ *loop }

// NewRepeatUntilTrue creates a RepeatUntilTrue container. Conditions of the
// form "index OP number" that can never become true are rejected.
func NewRepeatUntilTrue(cond string, children []action.Builder, opts ...LoopOption) (*RepeatUntilTrue, error) {
	l, err := newLoop("repeat", cond, children, opts)
	if err != nil {
		return nil, err
	}
	if l.condFn == nil && condition.NeverTerminates(l.condition, true, l.index, l.start, l.step) {
		return nil, fmt.Errorf("%w: repeat condition %q never becomes true", domain.ErrInvalidConfiguration, l.condition)
	}
	return &RepeatUntilTrue{l}, nil
}

func (*RepeatUntilTrue) Name() string { return "repeat" }

func (r *RepeatUntilTrue) Execute(ctx context.Context, tc *testcontext.Context) error {
	for i := r.start; ; i += r.step {
		tc.SetVariable(r.index, i)
		if err := action.Sequence(ctx, tc, r.children); err != nil {
			return err
		}
		done, err := r.evaluate(tc, i)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// RepeatOnErrorUntilTrue retries its children while they fail. A passing
// attempt ends the loop at once. After a failed attempt the condition is
// checked with that attempt's index: once it holds, the last failure is
// returned; otherwise the loop sleeps according to the backoff and retries.
type RepeatOnErrorUntilTrue struct{ *loop }

// NewRepeatOnErrorUntilTrue creates a retry container.
func NewRepeatOnErrorUntilTrue(cond string, children []action.Builder, opts ...LoopOption) (*RepeatOnErrorUntilTrue, error) {
	l, err := newLoop("repeat-on-error", cond, children, opts)
	if err != nil {
		return nil, err
	}
	return &RepeatOnErrorUntilTrue{l}, nil
}

func (*RepeatOnErrorUntilTrue) Name() string { return "repeat-on-error" }

func (r *RepeatOnErrorUntilTrue) Execute(ctx context.Context, tc *testcontext.Context) error {
	attempt := 0
	for i := r.start; ; i += r.step {
		tc.SetVariable(r.index, i)
		lastErr := action.Sequence(ctx, tc, r.children)
		if lastErr == nil {
			return nil
		}
		attempt++

		done, err := r.evaluate(tc, i)
		if err != nil {
			return err
		}
		if done {
			return lastErr
		}

		pause := time.Duration(0)
		if r.autoSleep > 0 {
			pause = r.backoff(attempt, r.autoSleep)
		}
		tc.Logger().Warn("retrying after failure", "attempt", attempt, "index", i, "pause", pause, "error", lastErr)
		if pause > 0 {
			if err := sleep(ctx, pause); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
