package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(headers map[string]any) *domain.Message {
	m := domain.NewMessage("payload")
	for k, v := range headers {
		m.SetHeader(k, v)
	}
	return m
}

func TestQueue_FIFOAmongMatches(t *testing.T) {
	q := New("orders")
	a1 := msg(map[string]any{"kind": "a", "seq": 1})
	b1 := msg(map[string]any{"kind": "b", "seq": 2})
	a2 := msg(map[string]any{"kind": "a", "seq": 3})
	q.Push(a1)
	q.Push(b1)
	q.Push(a2)

	onlyA := HeaderSelector{"kind": "a"}
	got, err := q.Poll(context.Background(), onlyA, 0)
	require.NoError(t, err)
	assert.Same(t, a1, got)

	got, err = q.Poll(context.Background(), onlyA, 0)
	require.NoError(t, err)
	assert.Same(t, a2, got)

	got, err = q.Poll(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Same(t, b1, got)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PollTimesOutNotEarlier(t *testing.T) {
	q := New("empty")
	timeout := 50 * time.Millisecond

	start := time.Now()
	_, err := q.Poll(context.Background(), AcceptAll, timeout)
	elapsed := time.Since(start)

	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+100*time.Millisecond)
}

func TestQueue_WaiterTimesOutWithinBound(t *testing.T) {
	q := New("mismatch")
	q.Push(msg(map[string]any{"kind": "b"}))
	timeout := 50 * time.Millisecond

	start := time.Now()
	_, err := q.Poll(context.Background(), HeaderSelector{"kind": "a"}, timeout)
	elapsed := time.Since(start)

	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+100*time.Millisecond)
	assert.Equal(t, 1, q.Len(), "the non-matching message stays queued")
}

func TestQueue_NonBlockingCheck(t *testing.T) {
	q := New("empty")
	_, err := q.Poll(context.Background(), AcceptAll, 0)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
}

func TestQueue_PushThenPollThenTimeout(t *testing.T) {
	q := New("correlation")
	m := msg(map[string]any{domain.HeaderCorrelationID: "c1"})
	q.Push(m)

	sel := CorrelationSelector("c1")
	got, err := q.Poll(context.Background(), sel, 250*time.Millisecond)
	require.NoError(t, err)
	assert.Same(t, m, got)

	_, err = q.Poll(context.Background(), sel, 250*time.Millisecond)
	assert.True(t, errors.Is(err, domain.ErrTimeout), "a message is consumed at most once")
}

func TestQueue_WaitingPollerReceivesPush(t *testing.T) {
	q := New("wait")
	m := msg(nil)

	done := make(chan *domain.Message, 1)
	go func() {
		got, err := q.Poll(context.Background(), AcceptAll, 2*time.Second)
		if err == nil {
			done <- got
		}
		close(done)
	}()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.waiters) == 1
	}, time.Second, 5*time.Millisecond)
	q.Push(m)

	select {
	case got := <-done:
		assert.Same(t, m, got)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not receive pushed message")
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_WaitersServedInArrivalOrder(t *testing.T) {
	q := New("order")
	results := make([]*domain.Message, 2)
	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = q.Poll(context.Background(), AcceptAll, 2*time.Second)
		}(i)
		require.Eventually(t, func() bool {
			q.mu.Lock()
			defer q.mu.Unlock()
			return len(q.waiters) == i+1
		}, time.Second, 5*time.Millisecond)
	}

	first, second := msg(nil), msg(nil)
	q.Push(first)
	q.Push(second)
	wg.Wait()

	assert.Same(t, first, results[0])
	assert.Same(t, second, results[1])
}

func TestQueue_NonMatchingWaiterDoesNotConsume(t *testing.T) {
	q := New("selective")
	go func() {
		_, _ = q.Poll(context.Background(), HeaderSelector{"kind": "x"}, 100*time.Millisecond)
	}()
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.waiters) == 1
	}, time.Second, 5*time.Millisecond)

	q.Push(msg(map[string]any{"kind": "y"}))
	assert.Equal(t, 1, q.Len())
}

func TestQueue_ContextCancellationAbortsWait(t *testing.T) {
	q := New("cancel")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := q.Poll(ctx, AcceptAll, 5*time.Second)
	assert.True(t, errors.Is(err, context.Canceled))

	q.mu.Lock()
	assert.Empty(t, q.waiters)
	q.mu.Unlock()

	// The queue keeps working for others.
	q.Push(msg(nil))
	assert.Equal(t, 1, q.Len())
}

func TestQueue_Purge(t *testing.T) {
	q := New("purge")
	q.Push(msg(map[string]any{"kind": "a"}))
	q.Push(msg(map[string]any{"kind": "b"}))
	q.Push(msg(map[string]any{"kind": "a"}))

	assert.Equal(t, 2, q.Purge(HeaderSelector{"kind": "a"}))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, 1, q.Purge(nil))
	assert.Equal(t, 0, q.Len())
}

func TestParseSelector(t *testing.T) {
	sel, err := ParseSelector("id = 'abc' AND operation = greet")
	require.NoError(t, err)

	hit := msg(map[string]any{"operation": "greet"}).SetHeader(domain.HeaderID, "abc")
	miss := msg(map[string]any{"operation": "greet"})
	assert.True(t, sel.Matches(hit))
	assert.False(t, sel.Matches(miss))

	all, err := ParseSelector("  ")
	require.NoError(t, err)
	assert.True(t, all.Matches(miss))

	_, err = ParseSelector("id 'abc'")
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)
	a := r.Get("a")
	assert.Same(t, a, r.Get("a"))
	r.Get("b")
	assert.Equal(t, []string{"a", "b"}, r.Names())
}
