package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/functions"
	"github.com/aretw0/rehearsal/pkg/registry"
	"github.com/aretw0/rehearsal/pkg/resolver"
	"github.com/aretw0/rehearsal/pkg/testcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext() *testcontext.Context {
	fns := registry.NewFunctions()
	functions.RegisterCore(fns)
	return testcontext.New("container-test", testcontext.WithResolver(resolver.New(fns)))
}

// recorder collects the labels of executed steps.
type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) step(label string, err error) action.Builder {
	return action.Of(action.Func{Label: label, Fn: func(context.Context, *testcontext.Context) error {
		r.mu.Lock()
		r.steps = append(r.steps, label)
		r.mu.Unlock()
		return err
	}})
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

func TestSequence_StopsAtFirstFailure(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	seq := NewSequence(rec.step("a1", nil), rec.step("a2", nil), rec.step("a3", boom), rec.step("a4", nil))

	err := action.Run(context.Background(), newContext(), seq)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, "a3", domain.FailedAction(err))
	assert.Equal(t, []string{"a1", "a2", "a3"}, rec.seen())
}

func TestSequence_Empty(t *testing.T) {
	assert.NoError(t, action.Run(context.Background(), newContext(), NewSequence()))
	assert.Equal(t, "setup", NewNamedSequence("setup").Name())
}

func TestParallel_CompletesAllBranches(t *testing.T) {
	rec := &recorder{}
	slow := action.Of(action.Func{Label: "slow", Fn: func(context.Context, *testcontext.Context) error {
		time.Sleep(30 * time.Millisecond)
		rec.mu.Lock()
		rec.steps = append(rec.steps, "slow")
		rec.mu.Unlock()
		return nil
	}})
	p := NewParallel(rec.step("fast-fail", domain.ErrTimeout), slow)

	err := action.Run(context.Background(), newContext(), p)
	require.Error(t, err)

	var agg *domain.AggregateError
	require.True(t, errors.As(err, &agg))
	require.Len(t, agg.Errs, 1)
	assert.True(t, errors.Is(agg.First(), domain.ErrTimeout))
	assert.Equal(t, "fast-fail", domain.FailedAction(err))
	assert.ElementsMatch(t, []string{"fast-fail", "slow"}, rec.seen())
}

func TestParallel_RunsConcurrently(t *testing.T) {
	var running, peak int32
	branch := action.Of(action.Func{Fn: func(context.Context, *testcontext.Context) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}})

	require.NoError(t, action.Run(context.Background(), newContext(), NewParallel(branch, branch, branch)))
	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))

	atomic.StoreInt32(&peak, 0)
	bounded, err := NewBoundedParallel(1, branch, branch, branch)
	require.NoError(t, err)
	require.NoError(t, action.Run(context.Background(), newContext(), bounded))
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))

	_, err = NewBoundedParallel(0)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestAsync_RecordsBackgroundFailure(t *testing.T) {
	tc := newContext()
	rec := &recorder{}
	release := make(chan struct{})
	blocked := action.Of(action.Func{Label: "wait", Fn: func(context.Context, *testcontext.Context) error {
		<-release
		return errors.New("late failure")
	}})

	a := NewAsync([]action.Builder{blocked}, OnError(rec.step("on-error", nil)), OnSuccess(rec.step("on-success", nil)))
	require.NoError(t, action.Run(context.Background(), tc, a), "async returns without waiting")
	assert.Empty(t, tc.BackgroundFailures())

	close(release)
	require.NoError(t, tc.WaitAsync(time.Second))
	require.Len(t, tc.BackgroundFailures(), 1)
	assert.Equal(t, "wait", domain.FailedAction(tc.BackgroundFailures()[0]))
	assert.Equal(t, []string{"on-error"}, rec.seen())
}

func TestAsync_SuccessCallback(t *testing.T) {
	tc := newContext()
	rec := &recorder{}
	a := NewAsync([]action.Builder{rec.step("work", nil)}, OnSuccess(rec.step("done", nil)))
	require.NoError(t, action.Run(context.Background(), tc, a))
	require.NoError(t, tc.WaitAsync(time.Second))
	assert.Equal(t, []string{"work", "done"}, rec.seen())
	assert.Empty(t, tc.BackgroundFailures())
}

func indexRecorder(name string, seen *[]int) action.Builder {
	return action.Of(action.Func{Fn: func(_ context.Context, tc *testcontext.Context) error {
		v, err := tc.GetVariable(name)
		if err != nil {
			return err
		}
		*seen = append(*seen, v.(int))
		return nil
	}})
}

func TestIterate(t *testing.T) {
	var seen []int
	it, err := NewIterate("i <= 3", []action.Builder{indexRecorder("i", &seen)})
	require.NoError(t, err)
	require.NoError(t, action.Run(context.Background(), newContext(), it))
	assert.Equal(t, []int{1, 2, 3}, seen)

	seen = nil
	it, err = NewIterate("idx < 10", []action.Builder{indexRecorder("idx", &seen)}, WithIndex("idx"), WithStart(0), WithStep(4))
	require.NoError(t, err)
	require.NoError(t, action.Run(context.Background(), newContext(), it))
	assert.Equal(t, []int{0, 4, 8}, seen)
}

func TestIterate_ZeroPasses(t *testing.T) {
	var seen []int
	it, err := NewIterate("i > 5", []action.Builder{indexRecorder("i", &seen)})
	require.NoError(t, err)
	require.NoError(t, action.Run(context.Background(), newContext(), it))
	assert.Empty(t, seen)
}

func TestIterate_ResolvesPlaceholders(t *testing.T) {
	tc := newContext()
	tc.SetVariable("max", 2)
	var seen []int
	it, err := NewIterate("i <= ${max}", []action.Builder{indexRecorder("i", &seen)})
	require.NoError(t, err)
	require.NoError(t, action.Run(context.Background(), tc, it))
	assert.Equal(t, []int{1, 2}, seen)
}

func TestLoops_RejectInvalidConfiguration(t *testing.T) {
	_, err := NewIterate("i < 3", nil, WithStep(0))
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))

	_, err = NewIterate("i > 0", nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration), "never terminates")

	_, err = NewIterate("", nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))

	_, err = NewIterate("i <", nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))

	_, err = NewRepeatUntilTrue("i == 4", nil, WithStep(2))
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration), "index skips 4")

	_, err = NewRepeatOnErrorUntilTrue("i >= 3", nil, WithAutoSleep(-time.Second))
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestRepeatUntilTrue_PostCondition(t *testing.T) {
	var seen []int
	r, err := NewRepeatUntilTrue("i >= 3", []action.Builder{indexRecorder("i", &seen)})
	require.NoError(t, err)
	require.NoError(t, action.Run(context.Background(), newContext(), r))
	assert.Equal(t, []int{1, 2, 3}, seen)

	seen = nil
	r, err = NewRepeatUntilTrue("true", []action.Builder{indexRecorder("i", &seen)})
	require.NoError(t, err)
	require.NoError(t, action.Run(context.Background(), newContext(), r))
	assert.Equal(t, []int{1}, seen, "at least one pass")
}

func TestRepeatOnErrorUntilTrue_ExactlyThreeAttempts(t *testing.T) {
	attempts := 0
	failing := action.Of(action.Func{Label: "flaky", Fn: func(context.Context, *testcontext.Context) error {
		attempts++
		return fmt.Errorf("attempt %d: %w", attempts, domain.ErrTimeout)
	}})

	r, err := NewRepeatOnErrorUntilTrue("i >= 3", []action.Builder{failing}, WithAutoSleep(time.Millisecond))
	require.NoError(t, err)

	err = action.Run(context.Background(), newContext(), r)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.Contains(t, err.Error(), "attempt 3")
}

func TestRepeatOnErrorUntilTrue_StopsOnSuccess(t *testing.T) {
	attempts := 0
	eventually := action.Of(action.Func{Fn: func(context.Context, *testcontext.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("not yet")
		}
		return nil
	}})
	r, err := NewRepeatOnErrorUntilTrue("i >= 5", []action.Builder{eventually})
	require.NoError(t, err)
	require.NoError(t, action.Run(context.Background(), newContext(), r))
	assert.Equal(t, 2, attempts)
}

func TestRepeatOnErrorUntilTrue_Backoff(t *testing.T) {
	var pauses []time.Duration
	recordBackoff := func(attempt int, base time.Duration) time.Duration {
		d := LinearBackoff(attempt, base)
		pauses = append(pauses, d)
		return d
	}
	r, err := NewRepeatOnErrorUntilTrue("i >= 3", action.All(action.Fail{Message: "x"}),
		WithAutoSleep(2*time.Millisecond), WithBackoff(recordBackoff))
	require.NoError(t, err)
	require.Error(t, action.Run(context.Background(), newContext(), r))
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 4 * time.Millisecond}, pauses, "no pause after the final attempt")

	exp := ExponentialBackoff(5 * time.Second)
	assert.Equal(t, time.Second, exp(1, time.Second))
	assert.Equal(t, 4*time.Second, exp(3, time.Second))
	assert.Equal(t, 5*time.Second, exp(10, time.Second))
}

func TestRepeatOnErrorUntilTrue_CancelDuringBackoff(t *testing.T) {
	r, err := NewRepeatOnErrorUntilTrue("i >= 100", action.All(action.Fail{}), WithAutoSleep(time.Hour))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = action.Run(ctx, newContext(), r)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestConditional(t *testing.T) {
	tc := newContext()
	tc.SetVariable("status", "ready")
	rec := &recorder{}

	yes, err := NewConditional(`status == "ready"`, rec.step("ran", nil))
	require.NoError(t, err)
	no, err := NewConditional(`"${status}" == "done"`, rec.step("skipped", nil))
	require.NoError(t, err)
	byFunc, err := NewConditionalFunc(func(tc *testcontext.Context) (bool, error) {
		return tc.HasVariable("status"), nil
	}, rec.step("func", nil))
	require.NoError(t, err)

	require.NoError(t, action.Run(context.Background(), tc, NewSequence(action.Of(yes), action.Of(no), action.Of(byFunc))))
	assert.Equal(t, []string{"ran", "func"}, rec.seen())

	_, err = NewConditional("")
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
	_, err = NewConditionalFunc(nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestCatch(t *testing.T) {
	rec := &recorder{}
	validation := &domain.ValidationError{Reason: "bad payload"}

	swallow := NewCatch([]action.Builder{rec.step("validate", validation), rec.step("after", nil)}, domain.ErrValidationFailed)
	require.NoError(t, action.Run(context.Background(), newContext(), swallow))
	assert.Equal(t, []string{"validate", "after"}, rec.seen())

	timeout := fmt.Errorf("waiting: %w", domain.ErrTimeout)
	propagate := NewCatch([]action.Builder{rec.step("receive", timeout)}, domain.ErrValidationFailed)
	err := action.Run(context.Background(), newContext(), propagate)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.Equal(t, "receive", domain.FailedAction(err))
	var ae *domain.ActionError
	require.True(t, errors.As(err, &ae))
	assert.Same(t, timeout, ae.Err, "non-matching failure propagates unchanged")

	all := NewCatch([]action.Builder{rec.step("anything", errors.New("x"))})
	assert.NoError(t, action.Run(context.Background(), newContext(), all))
}

func TestAssert(t *testing.T) {
	tc := newContext()
	tc.SetVariable("word", "kaboom")

	ok := NewAssert(action.Of(action.Fail{Message: "it went kaboom"}), domain.ErrActionFailed, "${word}")
	assert.NoError(t, action.Run(context.Background(), tc, ok))

	noFailure := NewAssert(action.Of(action.Echo{Message: "fine"}), nil, "")
	err := action.Run(context.Background(), tc, noFailure)
	assert.True(t, errors.Is(err, domain.ErrValidationFailed))

	wrongKind := NewAssert(action.Of(action.Fail{Message: "x"}), domain.ErrTimeout, "")
	err = action.Run(context.Background(), tc, wrongKind)
	assert.True(t, errors.Is(err, domain.ErrValidationFailed))

	wrongMessage := NewAssert(action.Of(action.Fail{Message: "x"}), nil, "y")
	err = action.Run(context.Background(), tc, wrongMessage)
	assert.True(t, errors.Is(err, domain.ErrValidationFailed))
}

func TestTimer_RepeatCount(t *testing.T) {
	tc := newContext()
	var seen []int
	timer, err := NewTimer(5*time.Millisecond, []action.Builder{indexRecorder("beat-index", &seen)},
		WithTimerID("beat"), WithRepeatCount(3))
	require.NoError(t, err)

	require.NoError(t, action.Run(context.Background(), tc, timer))
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.False(t, tc.StopTimer("beat"), "finished timers are unregistered")
}

func TestTimer_ForkedUntilStopped(t *testing.T) {
	tc := newContext()
	var fired int32
	tick := action.Of(action.Func{Fn: func(context.Context, *testcontext.Context) error {
		atomic.AddInt32(&fired, 1)
		return nil
	}})
	timer, err := NewTimer(5*time.Millisecond, []action.Builder{tick}, WithTimerID("poller"), Forked(), WithDelay(time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, action.Run(context.Background(), tc, timer))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) >= 3 }, time.Second, time.Millisecond)

	require.NoError(t, action.Run(context.Background(), tc, action.StopTimer{TimerID: "poller"}))
	require.NoError(t, tc.WaitAsync(time.Second))
	stoppedAt := atomic.LoadInt32(&fired)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stoppedAt, atomic.LoadInt32(&fired))
}

func TestTimer_RestartWithSameID(t *testing.T) {
	tc := newContext()
	tick := action.Of(action.Func{Fn: func(context.Context, *testcontext.Context) error { return nil }})

	for round := 0; round < 50; round++ {
		first, err := NewTimer(time.Millisecond, []action.Builder{tick}, WithTimerID("hb"), Forked())
		require.NoError(t, err)
		require.NoError(t, action.Run(context.Background(), tc, first))
		require.True(t, tc.StopTimer("hb"))

		second, err := NewTimer(time.Millisecond, []action.Builder{tick}, WithTimerID("hb"), Forked())
		require.NoError(t, err)
		require.NoError(t, action.Run(context.Background(), tc, second))
		time.Sleep(3 * time.Millisecond)
		require.True(t, tc.StopTimer("hb"), "round %d: restarted timer lost its registration", round)
	}
	require.NoError(t, tc.WaitAsync(time.Second))
}

func TestTimer_FailuresAreBackground(t *testing.T) {
	tc := newContext()
	timer, err := NewTimer(time.Millisecond, action.All(action.Fail{Message: "tick failed"}), WithRepeatCount(3))
	require.NoError(t, err)
	require.NoError(t, action.Run(context.Background(), tc, timer))
	assert.Len(t, tc.BackgroundFailures(), 3)

	tc = newContext()
	timer, err = NewTimer(time.Millisecond, action.All(action.Fail{Message: "tick failed"}), WithRepeatCount(3), StopOnFailure())
	require.NoError(t, err)
	require.NoError(t, action.Run(context.Background(), tc, timer))
	assert.Len(t, tc.BackgroundFailures(), 1)
}

func TestTimer_InvalidConfiguration(t *testing.T) {
	_, err := NewTimer(0, nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
	_, err = NewTimer(time.Second, nil, WithDelay(-1))
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
	_, err = NewTimer(time.Second, nil, WithRepeatCount(-1))
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}
