package endpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/queue"
	"github.com/aretw0/rehearsal/pkg/testcontext"
	"github.com/google/uuid"
)

// DirectSync is a request/reply endpoint over a request queue and a reply
// queue. The requester side (CreateProducer/CreateConsumer) sends a request
// and waits for the reply correlated to it. The replier side
// (ServerConsumer/ServerProducer) takes requests and answers the last one it
// took.
type DirectSync struct {
	name     string
	requests *queue.Queue
	replies  *queue.Queue
	opts     options
}

// NewDirectSync creates a request/reply endpoint.
func NewDirectSync(name string, requests, replies *queue.Queue, opts ...Option) *DirectSync {
	return &DirectSync{name: name, requests: requests, replies: replies, opts: buildOptions(opts)}
}

func (s *DirectSync) Name() string { return s.name }

// Requests returns the request queue.
func (s *DirectSync) Requests() *queue.Queue { return s.requests }

// Replies returns the reply queue.
func (s *DirectSync) Replies() *queue.Queue { return s.replies }

func (s *DirectSync) requesterKey() string { return "requester:" + s.name }
func (s *DirectSync) replierKey() string   { return "replier:" + s.name }

func (s *DirectSync) CreateProducer() Producer { return syncRequester{s} }

func (s *DirectSync) CreateConsumer() Consumer { return syncRequester{s} }

// ServerConsumer takes incoming requests and remembers the last one for ServerProducer.
func (s *DirectSync) ServerConsumer() SelectiveConsumer { return syncReplier{s} }

// ServerProducer answers the last request taken by ServerConsumer.
func (s *DirectSync) ServerProducer() Producer { return syncReplier{s} }

// Server returns the replier side as an Endpoint, so the message actions
// can play the server when the system under test is the client.
func (s *DirectSync) Server() Endpoint { return syncServer{s} }

type syncServer struct{ s *DirectSync }

func (v syncServer) Name() string              { return v.s.name }
func (v syncServer) CreateProducer() Producer { return syncReplier{v.s} }
func (v syncServer) CreateConsumer() Consumer { return syncReplier{v.s} }

type syncRequester struct{ s *DirectSync }

func (r syncRequester) Send(_ context.Context, msg *domain.Message, tc *testcontext.Context) error {
	req := msg.Copy()
	if req.ID() == "" {
		req.SetHeader(domain.HeaderID, uuid.NewString())
	}
	tc.SaveCorrelationKey(r.s.requesterKey(), req.ID())
	tc.Logger().Debug("sending request", "endpoint", r.s.name, "id", req.ID())
	r.s.requests.Push(req)
	return nil
}

func (r syncRequester) Receive(ctx context.Context, tc *testcontext.Context, timeout time.Duration) (*domain.Message, error) {
	return r.ReceiveSelected(ctx, tc, nil, timeout)
}

func (r syncRequester) ReceiveSelected(ctx context.Context, tc *testcontext.Context, selector queue.Selector, timeout time.Duration) (*domain.Message, error) {
	id, err := tc.CorrelationKey(r.s.requesterKey())
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: no request sent: %w", r.s.name, err)
	}
	reply, err := r.s.replies.Poll(ctx, both(queue.CorrelationSelector(id), selector), effective(timeout, r.s.opts.timeout))
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: waiting for reply to %s: %w", r.s.name, id, err)
	}
	tc.Logger().Debug("received reply", "endpoint", r.s.name, "correlation_id", id)
	return reply, nil
}

type syncReplier struct{ s *DirectSync }

func (r syncReplier) Receive(ctx context.Context, tc *testcontext.Context, timeout time.Duration) (*domain.Message, error) {
	return r.ReceiveSelected(ctx, tc, queue.AcceptAll, timeout)
}

func (r syncReplier) ReceiveSelected(ctx context.Context, tc *testcontext.Context, selector queue.Selector, timeout time.Duration) (*domain.Message, error) {
	req, err := r.s.requests.Poll(ctx, selector, effective(timeout, r.s.opts.timeout))
	if err != nil {
		return nil, err
	}
	tc.SaveCorrelationKey(r.s.replierKey(), req.ID())
	tc.Logger().Debug("received request", "endpoint", r.s.name, "id", req.ID())
	return req, nil
}

func (r syncReplier) Send(_ context.Context, msg *domain.Message, tc *testcontext.Context) error {
	id, err := tc.CorrelationKey(r.s.replierKey())
	if err != nil {
		return fmt.Errorf("endpoint %q: no request to reply to: %w", r.s.name, err)
	}
	reply := msg.Copy().SetHeader(domain.HeaderCorrelationID, id)
	tc.Logger().Debug("sending reply", "endpoint", r.s.name, "correlation_id", id)
	r.s.replies.Push(reply)
	return nil
}
