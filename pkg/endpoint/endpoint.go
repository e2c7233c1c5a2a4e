/*
Package endpoint defines the capabilities a test uses to talk to a system
under test, plus queue-backed implementations used for in-process wiring.

# Capabilities

  - Endpoint: a named factory of producers and consumers.
  - Producer: sends a message.
  - Consumer: receives the next message within a timeout.
  - SelectiveConsumer: receives the next message matching a selector.

Capabilities are discovered with type assertions; a Consumer that is not a
SelectiveConsumer cannot be asked to filter.
*/
package endpoint

import (
	"context"
	"time"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/queue"
	"github.com/aretw0/rehearsal/pkg/testcontext"
)

// DefaultTimeout applies when a receive is issued with a non-positive timeout.
const DefaultTimeout = 5 * time.Second

// Endpoint is a named factory of producers and consumers.
type Endpoint interface {
	Name() string
	CreateProducer() Producer
	CreateConsumer() Consumer
}

// Producer sends messages.
type Producer interface {
	Send(ctx context.Context, msg *domain.Message, tc *testcontext.Context) error
}

// Consumer receives messages. A non-positive timeout means the endpoint default.
type Consumer interface {
	Receive(ctx context.Context, tc *testcontext.Context, timeout time.Duration) (*domain.Message, error)
}

// SelectiveConsumer receives the next message accepted by a selector.
type SelectiveConsumer interface {
	Consumer
	ReceiveSelected(ctx context.Context, tc *testcontext.Context, selector queue.Selector, timeout time.Duration) (*domain.Message, error)
}

// Option configures queue-backed endpoints.
type Option func(*options)

type options struct {
	timeout time.Duration
}

// WithTimeout sets the default receive timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func effective(timeout, fallback time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return fallback
}

// both accepts messages matched by a and b.
func both(a, b queue.Selector) queue.Selector {
	if b == nil {
		return a
	}
	return queue.SelectorFunc(func(m *domain.Message) bool {
		return a.Matches(m) && b.Matches(m)
	})
}
