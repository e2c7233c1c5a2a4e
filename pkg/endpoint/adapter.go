package endpoint

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/rehearsal/internal/logging"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/queue"
	"github.com/google/uuid"
)

// DefaultAdapterTimeout bounds how long HandleMessage waits for a reply.
const DefaultAdapterTimeout = time.Second

// Adapter bridges an inbound request (for example one received by a server
// the test stands in for) into a DirectSync endpoint, so that the test acts
// as the replier.
type Adapter struct {
	endpoint *DirectSync
	timeout  time.Duration
	logger   *slog.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithAdapterTimeout sets the reply wait.
func WithAdapterTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithAdapterLogger sets the adapter logger.
func WithAdapterLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAdapter creates an adapter feeding ep's request queue.
func NewAdapter(ep *DirectSync, opts ...AdapterOption) *Adapter {
	a := &Adapter{endpoint: ep, timeout: DefaultAdapterTimeout, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Endpoint returns the endpoint the adapter feeds.
func (a *Adapter) Endpoint() *DirectSync { return a.endpoint }

// HandleMessage pushes request and waits for the reply correlated to it.
// When no reply arrives in time it returns (nil, nil): the request is treated
// as fire-and-forget, not as a failure.
func (a *Adapter) HandleMessage(ctx context.Context, request *domain.Message) (*domain.Message, error) {
	req := request.Copy()
	if req.ID() == "" {
		req.SetHeader(domain.HeaderID, uuid.NewString())
	}
	a.endpoint.requests.Push(req)

	reply, err := a.endpoint.replies.Poll(ctx, queue.CorrelationSelector(req.ID()), a.timeout)
	if errors.Is(err, domain.ErrTimeout) {
		a.logger.Debug("no reply for request", "endpoint", a.endpoint.name, "id", req.ID(), "timeout", a.timeout)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reply, nil
}
