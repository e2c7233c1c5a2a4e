package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/testcontext"
)

// Echo logs a resolved message.
type Echo struct {
	Message string
}

func (Echo) Name() string { return "echo" }

func (e Echo) Execute(_ context.Context, tc *testcontext.Context) error {
	msg, err := tc.Resolve(e.Message)
	if err != nil {
		return err
	}
	tc.Logger().Info(msg, "action", "echo")
	return nil
}

// Sleep pauses the run. Time, when set, is resolved and parsed as a
// duration ("250ms", "${delay}") and takes precedence over Duration.
type Sleep struct {
	Duration time.Duration
	Time     string
}

func (Sleep) Name() string { return "sleep" }

func (s Sleep) Execute(ctx context.Context, tc *testcontext.Context) error {
	d := s.Duration
	if s.Time != "" {
		raw, err := tc.Resolve(s.Time)
		if err != nil {
			return err
		}
		if d, err = time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%w: sleep time %q: %v", domain.ErrInvalidConfiguration, raw, err)
		}
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fail always fails with the resolved message.
type Fail struct {
	Message string
}

func (Fail) Name() string { return "fail" }

func (f Fail) Execute(_ context.Context, tc *testcontext.Context) error {
	msg, err := tc.Resolve(f.Message)
	if err != nil {
		return err
	}
	if msg == "" {
		msg = "generic failure"
	}
	return errors.New(msg)
}

// CreateVariables sets variables in order. String values (and strings
// nested in maps and slices) are resolved first, so later entries can refer
// to earlier ones.
type CreateVariables struct {
	Variables []testcontext.Variable
}

func (CreateVariables) Name() string { return "create-variables" }

func (c CreateVariables) Execute(_ context.Context, tc *testcontext.Context) error {
	for _, v := range c.Variables {
		val, err := tc.ResolveValue(v.Value)
		if err != nil {
			return fmt.Errorf("variable %q: %w", v.Name, err)
		}
		tc.SetVariable(v.Name, val)
		tc.Logger().Debug("variable set", "name", v.Name)
	}
	return nil
}

// Set is shorthand for a single-variable CreateVariables.
func Set(name string, value any) CreateVariables {
	return CreateVariables{Variables: []testcontext.Variable{{Name: name, Value: value}}}
}

// TraceVariables logs the named variables, or all of them.
type TraceVariables struct {
	Names []string
}

func (TraceVariables) Name() string { return "trace-variables" }

func (t TraceVariables) Execute(_ context.Context, tc *testcontext.Context) error {
	log := tc.Logger()
	if len(t.Names) == 0 {
		for _, v := range tc.Variables() {
			log.Info("variable", "name", v.Name, "value", v.Value)
		}
		return nil
	}
	for _, name := range t.Names {
		v, err := tc.GetVariable(name)
		if err != nil {
			return err
		}
		log.Info("variable", "name", name, "value", v)
	}
	return nil
}

// Func runs an arbitrary step.
type Func struct {
	Label string
	Fn    func(ctx context.Context, tc *testcontext.Context) error
}

func (f Func) Name() string {
	if f.Label == "" {
		return "func"
	}
	return f.Label
}

func (f Func) Execute(ctx context.Context, tc *testcontext.Context) error {
	if f.Fn == nil {
		return nil
	}
	return f.Fn(ctx, tc)
}

// StopTimer signals the timer with the given (resolved) id to stop.
// Stopping a timer that is not running is not an error.
type StopTimer struct {
	TimerID string
}

func (StopTimer) Name() string { return "stop-timer" }

func (s StopTimer) Execute(_ context.Context, tc *testcontext.Context) error {
	id, err := tc.Resolve(s.TimerID)
	if err != nil {
		return err
	}
	if !tc.StopTimer(id) {
		tc.Logger().Debug("timer not running", "timer", id)
	}
	return nil
}

// StopTimers stops every running timer.
type StopTimers struct{}

func (StopTimers) Name() string { return "stop-timers" }

func (StopTimers) Execute(_ context.Context, tc *testcontext.Context) error {
	tc.StopTimers()
	return nil
}
