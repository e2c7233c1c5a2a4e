package container

import (
	"context"
	"fmt"

	"github.com/aretw0/rehearsal/internal/condition"
	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/resolver"
	"github.com/aretw0/rehearsal/pkg/testcontext"
)

// ConditionFunc decides a condition in code instead of an expression.
type ConditionFunc func(tc *testcontext.Context) (bool, error)

// Conditional evaluates its condition once and runs the children as a
// sequence only when it holds.
type Conditional struct {
	expression string
	fn         ConditionFunc
	children   []action.Builder
}

// NewConditional creates a conditional over an expression such as
// `${status} == "ready"` or `retries < 3`.
func NewConditional(expression string, children ...action.Builder) (*Conditional, error) {
	if expression == "" {
		return nil, fmt.Errorf("%w: conditional needs a condition", domain.ErrInvalidConfiguration)
	}
	if !resolver.HasReferences(expression) {
		if err := condition.Validate(expression); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
		}
	}
	return &Conditional{expression: expression, children: children}, nil
}

// NewConditionalFunc creates a conditional decided by fn.
func NewConditionalFunc(fn ConditionFunc, children ...action.Builder) (*Conditional, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: conditional needs a condition", domain.ErrInvalidConfiguration)
	}
	return &Conditional{fn: fn, children: children}, nil
}

func (*Conditional) Name() string { return "conditional" }

func (c *Conditional) Execute(ctx context.Context, tc *testcontext.Context) error {
	var (
		ok  bool
		err error
	)
	if c.fn != nil {
		ok, err = c.fn(tc)
	} else {
		ok, err = evaluateExpression(tc, c.expression)
	}
	if err != nil {
		return err
	}
	if !ok {
		tc.Logger().Debug("condition not met, skipping", "condition", c.expression)
		return nil
	}
	return action.Sequence(ctx, tc, c.children)
}
