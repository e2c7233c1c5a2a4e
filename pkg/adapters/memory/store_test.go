package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/rehearsal/pkg/adapters/memory"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunResultStoreContract(t, store)
}

func TestMemoryStore_KeepsCause(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now()

	result := domain.NewTestResult("t1", "", domain.OutcomeFailure, domain.ErrTimeout, now, now)
	require.NoError(t, store.Save(ctx, result))

	loaded, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, errors.Is(loaded.Cause, domain.ErrTimeout), "in-memory results keep the typed cause")
}

func TestMemoryStore_ListSorted(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, store.Save(ctx, domain.TestResult{TestName: name}))
	}
	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)
}
