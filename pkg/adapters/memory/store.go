package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/rehearsal/pkg/domain"
)

// Store implements ports.ResultStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]domain.TestResult
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]domain.TestResult),
	}
}

// Save keeps the result under its test name.
func (s *Store) Save(ctx context.Context, result domain.TestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[result.TestName] = result
	return nil
}

// Load retrieves the latest result for a test.
func (s *Store) Load(ctx context.Context, testName string) (domain.TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.data[testName]
	if !ok {
		return domain.TestResult{}, domain.ErrNotFound
	}
	return result, nil
}

// Delete removes the result.
func (s *Store) Delete(ctx context.Context, testName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, testName)
	return nil
}

// List returns the stored test names in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
