package queue

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/rehearsal/internal/logging"
)

// Registry hands out named queues, creating them on first use.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*Queue
	logger *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger discards.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{queues: make(map[string]*Queue), logger: logger}
}

// Get returns the queue with the given name, creating it if needed.
func (r *Registry) Get(name string) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[name]
	if !ok {
		q = New(name, WithLogger(r.logger))
		r.queues[name] = q
	}
	return q
}

// Names returns the names of all created queues, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.queues))
	for n := range r.queues {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
