package container

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/testcontext"
	"golang.org/x/sync/errgroup"
)

// Parallel runs each child in its own goroutine and waits for all of them.
// A failing branch does not cancel the others; failures are returned as a
// *domain.AggregateError in the order they were recorded.
type Parallel struct {
	children []action.Builder
	limit    int
}

// NewParallel creates an unbounded parallel container.
func NewParallel(children ...action.Builder) *Parallel {
	return &Parallel{children: children}
}

// NewBoundedParallel runs at most limit children at a time.
func NewBoundedParallel(limit int, children ...action.Builder) (*Parallel, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: parallel limit must be positive, got %d", domain.ErrInvalidConfiguration, limit)
	}
	return &Parallel{children: children, limit: limit}, nil
}

func (*Parallel) Name() string { return "parallel" }

func (p *Parallel) Execute(ctx context.Context, tc *testcontext.Context) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for _, b := range p.children {
		child := b.Build()
		g.Go(func() error {
			if err := action.Run(ctx, tc, child); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == 0 {
		return nil
	}
	return &domain.AggregateError{Errs: errs}
}
