/*
Package container provides actions that own and execute ordered child
builders: sequences, parallel and async branches, loops, conditionals,
failure handling and timers.

Container attributes are fixed at construction. Constructors validate them
eagerly and report domain.ErrInvalidConfiguration. Children are built fresh
on every execution and run through action.Run.
*/
package container

import (
	"context"

	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/testcontext"
)

// Sequence runs its children in order and stops at the first failure.
type Sequence struct {
	name     string
	children []action.Builder
}

// NewSequence creates a sequence.
func NewSequence(children ...action.Builder) *Sequence {
	return &Sequence{name: "sequence", children: children}
}

// NewNamedSequence creates a sequence reported under name.
func NewNamedSequence(name string, children ...action.Builder) *Sequence {
	return &Sequence{name: name, children: children}
}

func (s *Sequence) Name() string { return s.name }

// Children returns the child builders.
func (s *Sequence) Children() []action.Builder { return s.children }

func (s *Sequence) Execute(ctx context.Context, tc *testcontext.Context) error {
	return action.Sequence(ctx, tc, s.children)
}
