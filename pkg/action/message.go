package action

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/endpoint"
	"github.com/aretw0/rehearsal/pkg/queue"
	"github.com/aretw0/rehearsal/pkg/testcontext"
	"github.com/aretw0/rehearsal/pkg/validation"
)

// SendSlot and ReceiveSlot name the Test Context slots messages are saved in.
func SendSlot(endpointName string) string    { return "send(" + endpointName + ")" }
func ReceiveSlot(endpointName string) string { return "receive(" + endpointName + ")" }

// Send resolves payload and headers, sends the message through the
// endpoint's producer and saves it in the send slot.
type Send struct {
	Endpoint endpoint.Endpoint
	Payload  any
	Headers  map[string]any
}

func (Send) Name() string { return "send" }

func (s Send) Description() string {
	if s.Endpoint == nil {
		return ""
	}
	return "send to " + s.Endpoint.Name()
}

func (s Send) Execute(ctx context.Context, tc *testcontext.Context) error {
	if s.Endpoint == nil {
		return fmt.Errorf("%w: send without endpoint", domain.ErrInvalidConfiguration)
	}
	payload, err := tc.ResolveValue(s.Payload)
	if err != nil {
		return err
	}
	msg := domain.NewMessage(payload)
	for k, v := range s.Headers {
		rv, err := tc.ResolveValue(v)
		if err != nil {
			return fmt.Errorf("header %q: %w", k, err)
		}
		msg.SetHeader(k, rv)
	}

	if err := s.Endpoint.CreateProducer().Send(ctx, msg, tc); err != nil {
		return err
	}
	tc.SaveMessage(SendSlot(s.Endpoint.Name()), msg)
	return nil
}

// Receive waits for a message, validates it and extracts values from it.
type Receive struct {
	endpoint      endpoint.Endpoint
	selector      string
	timeout       time.Duration
	headers       map[string]string
	payload       *string
	jq            []*validation.JQ
	extract       map[string]string
	headerExtract map[string]string
}

// ReceiveOption configures a Receive action.
type ReceiveOption func(*Receive) error

// WithSelector restricts the receive to messages matching a header
// selector expression such as "operation = 'greet'". The expression is
// resolved at execution time.
func WithSelector(expr string) ReceiveOption {
	return func(r *Receive) error {
		r.selector = expr
		return nil
	}
}

// WithTimeout bounds the wait. Zero means the endpoint default.
func WithTimeout(d time.Duration) ReceiveOption {
	return func(r *Receive) error {
		if d < 0 {
			return fmt.Errorf("%w: negative receive timeout", domain.ErrInvalidConfiguration)
		}
		r.timeout = d
		return nil
	}
}

// ExpectHeader validates a header. value may be a matcher expression.
func ExpectHeader(name, value string) ReceiveOption {
	return func(r *Receive) error {
		if r.headers == nil {
			r.headers = make(map[string]string)
		}
		r.headers[name] = value
		return nil
	}
}

// ExpectPayload validates the payload, structurally when it is JSON.
func ExpectPayload(payload string) ReceiveOption {
	return func(r *Receive) error {
		r.payload = &payload
		return nil
	}
}

// AssertJQ requires the jq expression to hold for the payload.
func AssertJQ(expr string) ReceiveOption {
	return func(r *Receive) error {
		q, err := validation.CompileJQ(expr)
		if err != nil {
			return err
		}
		r.jq = append(r.jq, q)
		return nil
	}
}

// ExtractJSON stores the value at a JSONPath of the payload in a variable.
func ExtractJSON(variable, path string) ReceiveOption {
	return func(r *Receive) error {
		if r.extract == nil {
			r.extract = make(map[string]string)
		}
		r.extract[variable] = path
		return nil
	}
}

// ExtractHeader stores a header value in a variable.
func ExtractHeader(variable, header string) ReceiveOption {
	return func(r *Receive) error {
		if r.headerExtract == nil {
			r.headerExtract = make(map[string]string)
		}
		r.headerExtract[variable] = header
		return nil
	}
}

// NewReceive creates a receive action on ep.
func NewReceive(ep endpoint.Endpoint, opts ...ReceiveOption) (*Receive, error) {
	if ep == nil {
		return nil, fmt.Errorf("%w: receive without endpoint", domain.ErrInvalidConfiguration)
	}
	r := &Receive{endpoint: ep}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (*Receive) Name() string { return "receive" }

func (r *Receive) Description() string { return "receive from " + r.endpoint.Name() }

func (r *Receive) Execute(ctx context.Context, tc *testcontext.Context) error {
	msg, err := receive(ctx, tc, r.endpoint, r.selector, r.timeout)
	if err != nil {
		return err
	}
	tc.SaveMessage(ReceiveSlot(r.endpoint.Name()), msg)

	if len(r.headers) > 0 {
		expected := make(map[string]string, len(r.headers))
		for k, v := range r.headers {
			if expected[k], err = tc.Resolve(v); err != nil {
				return err
			}
		}
		if err := validation.Headers(tc.Matchers(), expected, msg); err != nil {
			return err
		}
	}
	if r.payload != nil {
		expected, err := tc.Resolve(*r.payload)
		if err != nil {
			return err
		}
		if err := validation.Payload(tc.Matchers(), expected, msg); err != nil {
			return err
		}
	}
	for _, q := range r.jq {
		if err := q.Assert(msg.PayloadString()); err != nil {
			return err
		}
	}

	if len(r.extract) > 0 {
		values, err := validation.Extract([]byte(msg.PayloadString()), r.extract)
		if err != nil {
			return &domain.ValidationError{Field: "payload", Reason: err.Error()}
		}
		for name, v := range values {
			tc.SetVariable(name, v)
		}
	}
	for name, header := range r.headerExtract {
		if _, ok := msg.Header(header); !ok {
			return &domain.ValidationError{Field: "header " + header, Reason: "header missing"}
		}
		tc.SetVariable(name, msg.HeaderString(header))
	}
	return nil
}

// ReceiveTimeout expects that no (matching) message arrives within Timeout.
type ReceiveTimeout struct {
	Endpoint endpoint.Endpoint
	Selector string
	Timeout  time.Duration
}

func (ReceiveTimeout) Name() string { return "receive-timeout" }

func (r ReceiveTimeout) Execute(ctx context.Context, tc *testcontext.Context) error {
	if r.Endpoint == nil {
		return fmt.Errorf("%w: receive-timeout without endpoint", domain.ErrInvalidConfiguration)
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	msg, err := receive(ctx, tc, r.Endpoint, r.Selector, timeout)
	if errors.Is(err, domain.ErrTimeout) {
		return nil
	}
	if err != nil {
		return err
	}
	return &domain.ValidationError{
		Field:  "endpoint " + r.Endpoint.Name(),
		Actual: msg.ID(),
		Reason: fmt.Sprintf("unexpected message received within %s", timeout),
	}
}

func receive(ctx context.Context, tc *testcontext.Context, ep endpoint.Endpoint, selector string, timeout time.Duration) (*domain.Message, error) {
	consumer := ep.CreateConsumer()
	if selector == "" {
		return consumer.Receive(ctx, tc, timeout)
	}
	selective, ok := consumer.(endpoint.SelectiveConsumer)
	if !ok {
		return nil, fmt.Errorf("%w: endpoint %q does not support selective receive", domain.ErrInvalidConfiguration, ep.Name())
	}
	expr, err := tc.Resolve(selector)
	if err != nil {
		return nil, err
	}
	sel, err := queue.ParseSelector(expr)
	if err != nil {
		return nil, err
	}
	return selective.ReceiveSelected(ctx, tc, sel, timeout)
}

// PurgeQueue removes matching messages from queues.
type PurgeQueue struct {
	Queues   []*queue.Queue
	Selector string
}

func (PurgeQueue) Name() string { return "purge-queue" }

func (p PurgeQueue) Execute(_ context.Context, tc *testcontext.Context) error {
	sel := queue.AcceptAll
	if p.Selector != "" {
		expr, err := tc.Resolve(p.Selector)
		if err != nil {
			return err
		}
		if sel, err = queue.ParseSelector(expr); err != nil {
			return err
		}
	}
	for _, q := range p.Queues {
		n := q.Purge(sel)
		tc.Logger().Debug("purged queue", "queue", q.Name(), "removed", n)
	}
	return nil
}
