package ports

import (
	"context"

	"github.com/aretw0/rehearsal/pkg/domain"
)

// ResultStore persists finalized test results, keyed by test name.
// A later result for the same name replaces the earlier one.
type ResultStore interface {
	// Save persists the result under result.TestName.
	Save(ctx context.Context, result domain.TestResult) error

	// Load retrieves the latest result for a test.
	// Returns domain.ErrNotFound if no result was stored.
	Load(ctx context.Context, testName string) (domain.TestResult, error)

	// Delete removes the stored result for a test.
	Delete(ctx context.Context, testName string) error

	// List returns the names of the tests with a stored result.
	List(ctx context.Context) ([]string, error)
}
