/*
Package observability turns engine lifecycle events into Prometheus metrics.

Metrics are registered on a private registry so several engines, or several
tests, never collide on the global one. Wire them with:

	m := observability.NewMetrics()
	engine, _ := rehearsal.New(rehearsal.WithLifecycleHooks(m.Hooks()))
	http.Handle("/metrics", m.Handler())
*/
package observability
