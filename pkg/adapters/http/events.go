package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/rehearsal/internal/logging"
	"github.com/aretw0/rehearsal/pkg/domain"
)

// StreamManager fans finished test results out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan<- domain.TestResult]string // channel -> test filter ("" for all)
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan<- domain.TestResult]string),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a subscriber for results of test (all tests when
// empty). The returned func unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(test string) (<-chan domain.TestResult, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan domain.TestResult, 10)
	sm.subscribers[ch] = test

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			delete(sm.subscribers, ch)
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers.
func (sm *StreamManager) Subscribers() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

// Broadcast delivers result to every matching subscriber. Slow subscribers
// lose the event rather than blocking the test run.
func (sm *StreamManager) Broadcast(result domain.TestResult) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch, filter := range sm.subscribers {
		if filter != "" && filter != result.TestName {
			continue
		}
		select {
		case ch <- result:
		default:
			sm.logger.Warn("SSE: client buffer full, dropping result", "test", result.TestName)
		}
	}
}

// Hooks returns lifecycle hooks that broadcast every finished result.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTestFinish: func(_ context.Context, e *domain.TestEvent) {
			if e.Result != nil {
				sm.Broadcast(*e.Result)
			}
		},
	}
}

// SubscribeEvents handles the GET /events request (SSE). The optional
// "test" query parameter restricts the stream to one test.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(r.URL.Query().Get("test"))
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.Logger.Debug("SSE client disconnected")
			return
		case result, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(result)
			if err != nil {
				s.Logger.Error("SSE encode failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: result\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
