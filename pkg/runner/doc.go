/*
Package runner drives one test case from start to a finalized result.

A Runner owns the Test Context of its run and moves through the states
CREATED, RUNNING and one of PASSED, FAILED or SKIPPED. The first failure
becomes the primary failure: it moves the runner to FAILED and every later
Run call returns it without executing anything.

Stop is always called, whatever the outcome. It runs the finally actions,
stops timers, waits for async branches, merges their failures and builds
the TestResult. Results are persisted through a ports.ResultStore when one
is configured.

# Usage

	r := runner.New("order-flow",
		runner.WithLogger(logger),
		runner.WithResultStore(store),
	)
	r.Finally(action.Of(action.PurgeQueue{Queues: []*queue.Queue{q}}))

	if err := r.Start(ctx); err == nil {
		_, _ = r.Run(ctx, action.Of(action.Send{Endpoint: ep, Payload: "ping"}))
	}
	result, err := r.Stop(ctx)
*/
package runner
