package container

import (
	"context"

	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/testcontext"
)

// Async starts its children as a sequence in the background and returns
// immediately. A failure is recorded as a background failure of the run
// and surfaces when the run is finalized.
type Async struct {
	children  []action.Builder
	onSuccess []action.Builder
	onError   []action.Builder
}

// AsyncOption configures an Async container.
type AsyncOption func(*Async)

// OnSuccess runs builders after the children complete without failure.
func OnSuccess(builders ...action.Builder) AsyncOption {
	return func(a *Async) { a.onSuccess = append(a.onSuccess, builders...) }
}

// OnError runs builders after the children fail.
func OnError(builders ...action.Builder) AsyncOption {
	return func(a *Async) { a.onError = append(a.onError, builders...) }
}

// NewAsync creates an async container.
func NewAsync(children []action.Builder, opts ...AsyncOption) *Async {
	a := &Async{children: children}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (*Async) Name() string { return "async" }

func (a *Async) Execute(ctx context.Context, tc *testcontext.Context) error {
	// The branch outlives the step that started it.
	bg := context.WithoutCancel(ctx)
	tc.Go(func() {
		err := action.Sequence(bg, tc, a.children)
		if err != nil {
			tc.Logger().Warn("async actions failed", "error", err)
			tc.RecordBackgroundFailure(err)
			if cbErr := action.Sequence(bg, tc, a.onError); cbErr != nil {
				tc.RecordBackgroundFailure(cbErr)
			}
			return
		}
		if cbErr := action.Sequence(bg, tc, a.onSuccess); cbErr != nil {
			tc.RecordBackgroundFailure(cbErr)
		}
	})
	return nil
}
