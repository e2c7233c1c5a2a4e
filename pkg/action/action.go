/*
Package action defines the unit of test behaviour and the atomic actions
built on it.

An Action is executed against the Test Context of one run. Containers own
Builders rather than Actions and build fresh children for every invocation,
so an action instance never carries state from one execution to the next.
Actions without per-execution state can be reused through Of.

Always execute children through Run: it fires the lifecycle hooks, logs,
recovers panics and attributes failures to the action that raised them.
*/
package action

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/testcontext"
)

// Action is a named unit of test behaviour.
type Action interface {
	Name() string
	Execute(ctx context.Context, tc *testcontext.Context) error
}

// Describer is implemented by actions that carry a human readable description.
type Describer interface {
	Description() string
}

// Builder creates a fresh Action for each execution.
type Builder interface {
	Build() Action
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func() Action

func (f BuilderFunc) Build() Action { return f() }

type reuse struct{ a Action }

func (r reuse) Build() Action { return r.a }

// Of returns a Builder that always yields a. Use it only for actions that
// keep no state between executions.
func Of(a Action) Builder { return reuse{a} }

// All adapts stateless actions to builders.
func All(actions ...Action) []Builder {
	out := make([]Builder, len(actions))
	for i, a := range actions {
		out[i] = Of(a)
	}
	return out
}

// Run executes a with hooks, logging and failure attribution.
func Run(ctx context.Context, tc *testcontext.Context, a Action) error {
	name := a.Name()
	var desc string
	if d, ok := a.(Describer); ok {
		desc = d.Description()
	}
	hooks := tc.Hooks()
	log := tc.Logger().With("action", name)

	start := time.Now()
	if hooks.OnActionStart != nil {
		hooks.OnActionStart(ctx, &domain.ActionEvent{
			EventBase:   domain.EventBase{Timestamp: start, Type: domain.EventActionStart, TestName: tc.Name()},
			Action:      name,
			Description: desc,
		})
	}
	log.Debug("action started")

	err := ctx.Err()
	if err == nil {
		err = safeExecute(ctx, tc, a)
	}
	err = domain.WrapAction(name, err)
	elapsed := time.Since(start)

	if hooks.OnActionFinish != nil {
		hooks.OnActionFinish(ctx, &domain.ActionEvent{
			EventBase:   domain.EventBase{Timestamp: time.Now(), Type: domain.EventActionFinish, TestName: tc.Name()},
			Action:      name,
			Description: desc,
			Duration:    elapsed,
			Err:         err,
		})
	}
	if err != nil {
		log.Debug("action failed", "duration", elapsed, "error", err)
	} else {
		log.Debug("action finished", "duration", elapsed)
	}
	return err
}

func safeExecute(ctx context.Context, tc *testcontext.Context, a Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.Execute(ctx, tc)
}

// Sequence builds and runs each builder in order, stopping at the first failure.
func Sequence(ctx context.Context, tc *testcontext.Context, builders []Builder) error {
	for _, b := range builders {
		if err := Run(ctx, tc, b.Build()); err != nil {
			return err
		}
	}
	return nil
}
