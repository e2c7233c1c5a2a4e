package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolvedVariable is returned when a ${name} reference names an undefined variable.
var ErrUnresolvedVariable = errors.New("unresolved variable")

// ErrUnknownFunction is returned when a prefix:function(...) call names an unknown library or function.
var ErrUnknownFunction = errors.New("unknown function")

// ErrRecursionLimitExceeded is returned when expression resolution nests deeper than the configured limit.
var ErrRecursionLimitExceeded = errors.New("recursion limit exceeded")

// ErrTimeout is returned when a wait (message poll, async join) expires.
var ErrTimeout = errors.New("timeout")

// ErrValidationFailed is returned when a received message or assertion does not match expectations.
var ErrValidationFailed = errors.New("validation failed")

// ErrActionFailed is the generic kind of any failure raised by an action.
var ErrActionFailed = errors.New("action failed")

// ErrNotFound is returned when a variable, message slot or stored result does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidConfiguration is returned when an action, container or config is constructed with invalid attributes.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrTestSkipped marks a run that was skipped before any action executed.
var ErrTestSkipped = errors.New("test skipped")

// ActionError attributes a failure to the action that raised it.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %q failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Is reports ErrActionFailed for every ActionError.
func (e *ActionError) Is(target error) bool {
	return target == ErrActionFailed
}

// WrapAction attributes err to the named action.
// Errors that already carry an ActionError are returned unchanged so the
// innermost action identity is preserved.
func WrapAction(name string, err error) error {
	if err == nil {
		return nil
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return err
	}
	return &ActionError{Action: name, Err: err}
}

// FailedAction returns the name of the innermost action attributed to err, if any.
func FailedAction(err error) string {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Action
	}
	return ""
}

// ValidationError describes a single expectation mismatch.
type ValidationError struct {
	Field    string
	Expected any
	Actual   any
	Reason   string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.Field != "" {
		fmt.Fprintf(&b, " for %q", e.Field)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Expected != nil || e.Actual != nil {
		fmt.Fprintf(&b, " (expected %v, got %v)", e.Expected, e.Actual)
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// AggregateError collects the failures of concurrently executed branches in
// the order they were recorded.
type AggregateError struct {
	Errs []error
}

func (e *AggregateError) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d branches failed: %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *AggregateError) Unwrap() []error { return e.Errs }

// First returns the first-recorded cause.
func (e *AggregateError) First() error {
	if len(e.Errs) == 0 {
		return nil
	}
	return e.Errs[0]
}
