package container

import (
	"context"
	"errors"

	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/testcontext"
)

// Catch runs each child in its own guard. A failure matching one of the
// configured kinds (errors.Is) is logged and execution continues with the
// next child; any other failure is returned unchanged. With no kinds every
// failure is caught.
type Catch struct {
	kinds    []error
	children []action.Builder
}

// NewCatch creates a Catch container for the given failure kinds.
func NewCatch(children []action.Builder, kinds ...error) *Catch {
	return &Catch{kinds: kinds, children: children}
}

func (*Catch) Name() string { return "catch" }

func (c *Catch) Execute(ctx context.Context, tc *testcontext.Context) error {
	for _, b := range c.children {
		err := action.Run(ctx, tc, b.Build())
		if err == nil {
			continue
		}
		if !c.matches(err) {
			return err
		}
		tc.Logger().Info("caught failure", "error", err)
	}
	return nil
}

func (c *Catch) matches(err error) bool {
	if len(c.kinds) == 0 {
		return true
	}
	for _, k := range c.kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
