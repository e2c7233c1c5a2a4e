package endpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/queue"
	"github.com/aretw0/rehearsal/pkg/testcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Endpoint          = (*Direct)(nil)
	_ Endpoint          = (*DirectSync)(nil)
	_ SelectiveConsumer = directConsumer{}
	_ SelectiveConsumer = syncRequester{}
	_ SelectiveConsumer = syncReplier{}
	_ Endpoint          = syncServer{}
)

func TestDirect_SendReceive(t *testing.T) {
	ctx := context.Background()
	tc := testcontext.New("direct")
	ep := NewDirect("inbox", queue.New("inbox"), WithTimeout(50*time.Millisecond))

	sent := domain.NewMessage("hello").SetHeader("operation", "greet")
	require.NoError(t, ep.CreateProducer().Send(ctx, sent, tc))

	consumer, ok := ep.CreateConsumer().(SelectiveConsumer)
	require.True(t, ok)

	start := time.Now()
	_, err := consumer.ReceiveSelected(ctx, tc, queue.HeaderSelector{"operation": "other"}, 20*time.Millisecond)
	elapsed := time.Since(start)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, 120*time.Millisecond)

	got, err := consumer.Receive(ctx, tc, 0)
	require.NoError(t, err)
	assert.Equal(t, sent.ID(), got.ID())
	assert.Equal(t, "hello", got.PayloadString())
}

func TestDirectSync_RequestReply(t *testing.T) {
	ctx := context.Background()
	ep := NewDirectSync("greeter", queue.New("greeter.requests"), queue.New("greeter.replies"))
	client := testcontext.New("client")
	server := testcontext.New("server")

	req := domain.NewMessage("hi")
	require.NoError(t, ep.CreateProducer().Send(ctx, req, client))

	got, err := ep.ServerConsumer().Receive(ctx, server, time.Second)
	require.NoError(t, err)
	assert.Equal(t, req.ID(), got.ID())

	require.NoError(t, ep.ServerProducer().Send(ctx, domain.NewMessage("hello back"), server))

	reply, err := ep.CreateConsumer().Receive(ctx, client, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello back", reply.PayloadString())
	assert.Equal(t, req.ID(), reply.HeaderString(domain.HeaderCorrelationID))
}

func TestDirectSync_IgnoresRepliesToOtherRequests(t *testing.T) {
	ctx := context.Background()
	ep := NewDirectSync("svc", queue.New("req"), queue.New("rep"))
	tc := testcontext.New("client")

	require.NoError(t, ep.CreateProducer().Send(ctx, domain.NewMessage("x"), tc))
	ep.Replies().Push(domain.NewMessage("stray").SetHeader(domain.HeaderCorrelationID, "someone-else"))

	_, err := ep.CreateConsumer().Receive(ctx, tc, 30*time.Millisecond)
	assert.True(t, errors.Is(err, domain.ErrTimeout))
	assert.Equal(t, 1, ep.Replies().Len())
}

func TestDirectSync_ReceiveWithoutRequest(t *testing.T) {
	ep := NewDirectSync("svc", queue.New("req"), queue.New("rep"))
	_, err := ep.CreateConsumer().Receive(context.Background(), testcontext.New("t"), 10*time.Millisecond)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = ep.ServerProducer().Send(context.Background(), domain.NewMessage("r"), testcontext.New("t"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAdapter_HandleMessage(t *testing.T) {
	ep := NewDirectSync("stub", queue.New("stub.requests"), queue.New("stub.replies"))
	adapter := NewAdapter(ep, WithAdapterTimeout(2*time.Second))
	tc := testcontext.New("replier")

	go func() {
		req, err := ep.ServerConsumer().Receive(context.Background(), tc, 2*time.Second)
		if err != nil {
			return
		}
		_ = ep.ServerProducer().Send(context.Background(), domain.NewMessage("pong:"+req.PayloadString()), tc)
	}()

	reply, err := adapter.HandleMessage(context.Background(), domain.NewMessage("ping"))
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "pong:ping", reply.PayloadString())
}

func TestAdapter_NoReplyIsNotAFailure(t *testing.T) {
	ep := NewDirectSync("stub", queue.New("stub.requests"), queue.New("stub.replies"))
	adapter := NewAdapter(ep, WithAdapterTimeout(250*time.Millisecond))

	ep.Requests().Purge(queue.AcceptAll)
	reply, err := adapter.HandleMessage(context.Background(), domain.NewMessage("anyone?"))
	assert.NoError(t, err)
	assert.Nil(t, reply)
	assert.Equal(t, 1, ep.Requests().Len())
}

func TestDirectSync_ServerView(t *testing.T) {
	ep := NewDirectSync("svc", queue.New("svc"), queue.New("svc.reply"))
	client := testcontext.New("client")
	server := testcontext.New("server")
	ctx := context.Background()

	require.NoError(t, ep.CreateProducer().Send(ctx, domain.NewMessage("hello"), client))

	view := ep.Server()
	assert.Equal(t, "svc", view.Name())
	req, err := view.CreateConsumer().Receive(ctx, server, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", req.PayloadString())
	require.NoError(t, view.CreateProducer().Send(ctx, domain.NewMessage("world"), server))

	reply, err := ep.CreateConsumer().Receive(ctx, client, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "world", reply.PayloadString())
}
