package container

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/testcontext"
	"github.com/google/uuid"
)

// Timer fires its children every interval after an initial delay, until
// the repeat count is reached or the timer is stopped by id. The current
// firing number is stored in the "<id>-index" variable. Failed firings are
// recorded as background failures.
type Timer struct {
	id            string
	interval      time.Duration
	delay         time.Duration
	repeatCount   int
	fork          bool
	stopOnFailure bool
	children      []action.Builder
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// WithTimerID sets the id used by StopTimer. A random id is used otherwise.
func WithTimerID(id string) TimerOption {
	return func(t *Timer) { t.id = id }
}

// WithDelay postpones the first firing.
func WithDelay(d time.Duration) TimerOption {
	return func(t *Timer) { t.delay = d }
}

// WithRepeatCount limits the number of firings; 0 fires until stopped.
func WithRepeatCount(n int) TimerOption {
	return func(t *Timer) { t.repeatCount = n }
}

// Forked runs the timer in the background instead of blocking the caller.
func Forked() TimerOption {
	return func(t *Timer) { t.fork = true }
}

// StopOnFailure ends the timer after the first failed firing.
func StopOnFailure() TimerOption {
	return func(t *Timer) { t.stopOnFailure = true }
}

// NewTimer creates a timer firing every interval.
func NewTimer(interval time.Duration, children []action.Builder, opts ...TimerOption) (*Timer, error) {
	t := &Timer{interval: interval, children: children}
	for _, opt := range opts {
		opt(t)
	}
	switch {
	case t.interval <= 0:
		return nil, fmt.Errorf("%w: timer interval must be positive", domain.ErrInvalidConfiguration)
	case t.delay < 0:
		return nil, fmt.Errorf("%w: timer delay must not be negative", domain.ErrInvalidConfiguration)
	case t.repeatCount < 0:
		return nil, fmt.Errorf("%w: timer repeat count must not be negative", domain.ErrInvalidConfiguration)
	}
	return t, nil
}

func (*Timer) Name() string { return "timer" }

func (t *Timer) Execute(ctx context.Context, tc *testcontext.Context) error {
	id := t.id
	if id == "" {
		id = "timer-" + uuid.NewString()
	}
	stop, err := tc.RegisterTimer(id)
	if err != nil {
		return err
	}

	if t.fork {
		bg := context.WithoutCancel(ctx)
		tc.Go(func() { t.run(bg, tc, id, stop) })
		return nil
	}
	t.run(ctx, tc, id, stop)
	return nil
}

func (t *Timer) run(ctx context.Context, tc *testcontext.Context, id string, stop <-chan struct{}) {
	defer tc.UnregisterTimer(id, stop)
	log := tc.Logger().With("timer", id)

	if t.delay > 0 {
		delay := time.NewTimer(t.delay)
		defer delay.Stop()
		select {
		case <-delay.C:
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for index := 1; ; index++ {
		tc.SetVariable(id+"-index", index)
		if err := action.Sequence(ctx, tc, t.children); err != nil {
			log.Warn("timer firing failed", "index", index, "error", err)
			tc.RecordBackgroundFailure(err)
			if t.stopOnFailure {
				return
			}
		}
		if t.repeatCount > 0 && index >= t.repeatCount {
			return
		}
		select {
		case <-ticker.C:
		case <-stop:
			log.Debug("timer stopped", "index", index)
			return
		case <-ctx.Done():
			return
		}
	}
}
