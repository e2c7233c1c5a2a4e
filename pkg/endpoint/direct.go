package endpoint

import (
	"context"
	"time"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/queue"
	"github.com/aretw0/rehearsal/pkg/testcontext"
)

// Direct is an asynchronous endpoint over a single queue: producers push,
// consumers poll.
type Direct struct {
	name  string
	queue *queue.Queue
	opts  options
}

// NewDirect creates an endpoint writing to and reading from q.
func NewDirect(name string, q *queue.Queue, opts ...Option) *Direct {
	return &Direct{name: name, queue: q, opts: buildOptions(opts)}
}

func (d *Direct) Name() string { return d.name }

// Queue returns the backing queue.
func (d *Direct) Queue() *queue.Queue { return d.queue }

func (d *Direct) CreateProducer() Producer { return directProducer{d} }

func (d *Direct) CreateConsumer() Consumer { return directConsumer{d} }

type directProducer struct{ d *Direct }

func (p directProducer) Send(_ context.Context, msg *domain.Message, tc *testcontext.Context) error {
	tc.Logger().Debug("sending message", "endpoint", p.d.name, "id", msg.ID())
	p.d.queue.Push(msg.Copy())
	return nil
}

type directConsumer struct{ d *Direct }

func (c directConsumer) Receive(ctx context.Context, tc *testcontext.Context, timeout time.Duration) (*domain.Message, error) {
	return c.ReceiveSelected(ctx, tc, queue.AcceptAll, timeout)
}

func (c directConsumer) ReceiveSelected(ctx context.Context, tc *testcontext.Context, selector queue.Selector, timeout time.Duration) (*domain.Message, error) {
	msg, err := c.d.queue.Poll(ctx, selector, effective(timeout, c.d.opts.timeout))
	if err != nil {
		return nil, err
	}
	tc.Logger().Debug("received message", "endpoint", c.d.name, "id", msg.ID())
	return msg, nil
}
