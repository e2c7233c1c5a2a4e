// Package queue implements the message correlation queue: a named FIFO
// mailbox where consumers wait for the first message matching a selector.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/rehearsal/internal/logging"
	"github.com/aretw0/rehearsal/pkg/domain"
)

type waiter struct {
	selector Selector
	ch       chan *domain.Message
	// delivered is guarded by Queue.mu.
	delivered bool
}

// Queue holds messages until a matching consumer polls them.
// Each message is consumed at most once; among matches, delivery is FIFO and
// waiting pollers are served in arrival order.
type Queue struct {
	name   string
	logger *slog.Logger

	mu       sync.Mutex
	messages []*domain.Message
	waiters  []*waiter
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// New creates an empty queue.
func New(name string, opts ...Option) *Queue {
	q := &Queue{name: name, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With("queue", name)
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Push hands msg to the first waiting poller whose selector matches, or
// appends it to the queue.
func (q *Queue) Push(msg *domain.Message) {
	if msg == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, w := range q.waiters {
		if w.selector.Matches(msg) {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			w.delivered = true
			w.ch <- msg
			q.logger.Debug("message delivered to waiting consumer", "id", msg.ID())
			return
		}
	}
	q.messages = append(q.messages, msg)
	q.logger.Debug("message queued", "id", msg.ID(), "depth", len(q.messages))
}

// Poll removes and returns the oldest message matching selector, waiting up
// to timeout for one to arrive. A nil selector accepts everything.
// timeout <= 0 performs a single non-blocking check.
// On expiry it returns domain.ErrTimeout, never earlier than timeout.
// Cancelling ctx aborts only this wait.
func (q *Queue) Poll(ctx context.Context, selector Selector, timeout time.Duration) (*domain.Message, error) {
	if selector == nil {
		selector = AcceptAll
	}

	q.mu.Lock()
	if msg := q.take(selector); msg != nil {
		q.mu.Unlock()
		return msg, nil
	}
	if timeout <= 0 {
		q.mu.Unlock()
		return nil, q.timeoutError(timeout)
	}
	w := &waiter{selector: selector, ch: make(chan *domain.Message, 1)}
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case msg := <-w.ch:
		return msg, nil
	case <-timer.C:
		err = q.timeoutError(timeout)
	case <-ctx.Done():
		err = fmt.Errorf("polling queue %q: %w", q.name, ctx.Err())
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if w.delivered {
		// Push won the race against expiry; the message is ours.
		return <-w.ch, nil
	}
	q.removeWaiter(w)
	return nil, err
}

// Purge removes every queued message matching selector and returns how many
// were removed. A nil selector purges everything.
func (q *Queue) Purge(selector Selector) int {
	if selector == nil {
		selector = AcceptAll
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.messages[:0]
	removed := 0
	for _, m := range q.messages {
		if selector.Matches(m) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	for i := len(kept); i < len(q.messages); i++ {
		q.messages[i] = nil
	}
	q.messages = kept
	if removed > 0 {
		q.logger.Debug("queue purged", "removed", removed)
	}
	return removed
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

func (q *Queue) take(selector Selector) *domain.Message {
	for i, m := range q.messages {
		if selector.Matches(m) {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return m
		}
	}
	return nil
}

func (q *Queue) removeWaiter(target *waiter) {
	for i, w := range q.waiters {
		if w == target {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

func (q *Queue) timeoutError(timeout time.Duration) error {
	return fmt.Errorf("%w: no matching message on queue %q within %s", domain.ErrTimeout, q.name, timeout)
}
