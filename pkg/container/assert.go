package container

import (
	"context"
	"errors"
	"strings"

	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/testcontext"
)

// Assert expects its child to fail. The failure must match kind (when set)
// and its message must contain the resolved message (when set). A child
// that succeeds fails the assertion.
type Assert struct {
	child   action.Builder
	kind    error
	message string
}

// NewAssert creates an Assert container.
func NewAssert(child action.Builder, kind error, message string) *Assert {
	return &Assert{child: child, kind: kind, message: message}
}

func (*Assert) Name() string { return "assert" }

func (a *Assert) Execute(ctx context.Context, tc *testcontext.Context) error {
	err := action.Run(ctx, tc, a.child.Build())
	if err == nil {
		return &domain.ValidationError{Field: "failure", Expected: a.expected(), Reason: "action completed without failure"}
	}
	if a.kind != nil && !errors.Is(err, a.kind) {
		return &domain.ValidationError{Field: "failure", Expected: a.kind.Error(), Actual: err.Error(), Reason: "unexpected failure kind"}
	}
	if a.message != "" {
		want, rerr := tc.Resolve(a.message)
		if rerr != nil {
			return rerr
		}
		if !strings.Contains(err.Error(), want) {
			return &domain.ValidationError{Field: "failure message", Expected: want, Actual: err.Error(), Reason: "message mismatch"}
		}
	}
	tc.Logger().Debug("expected failure raised", "error", err)
	return nil
}

func (a *Assert) expected() string {
	if a.kind != nil {
		return a.kind.Error()
	}
	return "any failure"
}
