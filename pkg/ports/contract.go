package ports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunResultStoreContract runs a suite of tests to verify that a ResultStore
// implementation adheres to the defined interface contract.
func RunResultStoreContract(t *testing.T, store ResultStore) {
	ctx := context.Background()
	name := "contract-test-" + time.Now().Format("20060102150405")
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)

	t.Run("Save and Load", func(t *testing.T) {
		cause := domain.WrapAction("receive", domain.ErrTimeout)
		result := domain.NewTestResult(name, "orders", domain.OutcomeFailure, cause, started, finished)

		require.NoError(t, store.Save(ctx, result), "Save should not return error")

		loaded, err := store.Load(ctx, name)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, name, loaded.TestName)
		assert.Equal(t, "orders", loaded.TestClass)
		assert.Equal(t, domain.OutcomeFailure, loaded.Outcome)
		assert.Equal(t, "receive", loaded.FailedAction)
		assert.Equal(t, cause.Error(), loaded.CauseMessage)
		assert.True(t, started.Equal(loaded.StartedAt))
		assert.Equal(t, 1500*time.Millisecond, loaded.Duration())
	})

	t.Run("Save Replaces", func(t *testing.T) {
		result := domain.NewTestResult(name, "orders", domain.OutcomeSuccess, nil, started, finished)
		require.NoError(t, store.Save(ctx, result))

		loaded, err := store.Load(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeSuccess, loaded.Outcome)
		assert.Empty(t, loaded.CauseMessage)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+name)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewTestResult(name, "", domain.OutcomeSkipped, nil, started, started)))

		require.NoError(t, store.Delete(ctx, name), "Delete should not return error")

		_, err := store.Load(ctx, name)
		assert.True(t, errors.Is(err, domain.ErrNotFound), "Load after Delete should return ErrNotFound")
	})

	t.Run("List", func(t *testing.T) {
		n1 := name + "-1"
		n2 := name + "-2"
		_ = store.Save(ctx, domain.NewTestResult(n1, "", domain.OutcomeSuccess, nil, started, finished))
		_ = store.Save(ctx, domain.NewTestResult(n2, "", domain.OutcomeSuccess, nil, started, finished))

		defer func() {
			_ = store.Delete(ctx, n1)
			_ = store.Delete(ctx, n2)
		}()

		names, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, n1)
		assert.Contains(t, names, n2)
	})
}
