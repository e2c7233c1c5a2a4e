/*
Package rehearsal is an execution engine for integration tests that exchange
messages with the systems under test.

A test is a tree of actions. Atomic actions send and receive messages, set
variables, sleep or fail; containers compose them into sequences, parallel
and async branches, loops, retries, conditionals, failure handlers and
timers. Every run owns a Test Context holding its variables, the last
messages per endpoint and the correlation keys that pair synchronous
requests with their replies.

# Concept

Actions never hold state between executions: containers keep Builders and
build fresh children for every run. Text attributes may reference variables
as ${name} and call functions as prefix:function(args); both are resolved
against the Test Context right before the action executes.

Synchronous request/reply is modelled with in-memory correlation queues.
The requester tags each request with a correlation id; replies are matched
by that id, so concurrent conversations never see each other's messages.

# Usage

	engine, err := rehearsal.New(rehearsal.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}
	orders := engine.SyncEndpoint("orders")

	reply, err := action.NewReceive(orders, action.ExpectPayload(`{"status":"ACCEPTED"}`))
	if err != nil {
		log.Fatal(err)
	}
	result, err := engine.Run(ctx, "place-order", []action.Builder{
		action.Of(action.Send{Endpoint: orders, Payload: `{"sku":"${sku}"}`}),
		action.Of(reply),
	})

The Engine owns the registries shared by all runs (functions, matchers,
global variables, named queues) and creates one runner.Runner per test.
Results can be persisted through a ports.ResultStore and observed through
lifecycle hooks.
*/
package rehearsal
