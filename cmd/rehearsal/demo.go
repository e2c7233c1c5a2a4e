package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aretw0/rehearsal"
	"github.com/aretw0/rehearsal/internal/presentation/tui"
	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/adapters/memory"
	"github.com/aretw0/rehearsal/pkg/container"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/endpoint"
	"github.com/aretw0/rehearsal/pkg/runner"
	"github.com/aretw0/rehearsal/pkg/testcontext"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

// scenario is a built-in test that runs against in-process endpoints.
type scenario struct {
	name        string
	description string
	build       func(e *rehearsal.Engine) ([]action.Builder, error)
}

var scenarios = []scenario{
	{"request-reply", "mock a server for a client that sends an order", requestReplyScenario},
	{"retry", "retry a flaky dependency with exponential backoff", retryScenario},
	{"fan-out", "publish from parallel branches and collect every message", fanOutScenario},
	{"quiet-endpoint", "tolerate a receive timeout inside a catch", quietEndpointScenario},
}

func findScenario(name string) (scenario, bool) {
	for _, s := range scenarios {
		if s.name == name {
			return s, true
		}
	}
	return scenario{}, false
}

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo [scenario...]",
		Short: "Run the built-in scenarios",
		Long: `Runs built-in scenarios against in-process endpoints and prints a report.
Without arguments every scenario runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list, _ := cmd.Flags().GetBool("list"); list {
				for _, s := range scenarios {
					fmt.Fprintf(out, "%-16s %s\n", s.name, s.description)
				}
				return nil
			}

			selected := scenarios
			if len(args) > 0 {
				selected = nil
				for _, name := range args {
					s, ok := findScenario(name)
					if !ok {
						return fmt.Errorf("unknown scenario %q", name)
					}
					selected = append(selected, s)
				}
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			engine, err := rehearsal.New(
				rehearsal.WithConfig(cfg),
				rehearsal.WithLogger(logger),
				rehearsal.WithResultStore(memory.NewStore()),
			)
			if err != nil {
				return err
			}

			printer := tui.NewPrinter(out)
			if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
				printer.Banner()
			}

			results, err := runScenarios(cmd.Context(), engine, selected)
			for _, r := range results {
				printer.Result(r)
			}
			printer.Summary(results)
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Failed() {
					return fmt.Errorf("scenario %q failed", r.TestName)
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("list", false, "List the available scenarios")
	cmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
	return cmd
}

func runScenarios(ctx context.Context, engine *rehearsal.Engine, selected []scenario) ([]domain.TestResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]domain.TestResult, 0, len(selected))
	for _, s := range selected {
		body, err := s.build(engine)
		if err != nil {
			return results, fmt.Errorf("building scenario %q: %w", s.name, err)
		}
		result, err := engine.Run(ctx, s.name, body, runner.WithClass("demo"))
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// requestReplyScenario plays the server while a client, the system under
// test, sends an order through the endpoint adapter.
func requestReplyScenario(e *rehearsal.Engine) ([]action.Builder, error) {
	ep := e.SyncEndpoint("orders")
	client := endpoint.NewAdapter(ep,
		endpoint.WithAdapterTimeout(2*time.Second),
		endpoint.WithAdapterLogger(e.Logger()))
	replies := make(chan *domain.Message, 1)

	receive, err := action.NewReceive(ep.Server(),
		action.AssertJQ(`.order == 42`),
		action.ExtractJSON("order", "order"),
		action.ExtractJSON("item", "item"))
	if err != nil {
		return nil, err
	}

	startClient := action.Func{Label: "start-client", Fn: func(ctx context.Context, tc *testcontext.Context) error {
		go func() {
			reply, err := client.HandleMessage(ctx, domain.NewMessage(`{"order":42,"item":"book"}`))
			if err != nil {
				tc.Logger().Error("client request failed", "error", err)
			}
			replies <- reply
		}()
		return nil
	}}
	verifyClient := action.Func{Label: "verify-client", Fn: func(ctx context.Context, tc *testcontext.Context) error {
		select {
		case reply := <-replies:
			if reply == nil {
				return &domain.ValidationError{Field: "reply", Reason: "client received no reply"}
			}
			if status := gjson.Get(reply.PayloadString(), "status").String(); status != "accepted" {
				return &domain.ValidationError{Field: "status", Expected: "accepted", Actual: status, Reason: "unexpected reply status"}
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}

	return action.All(
		startClient,
		receive,
		action.Send{
			Endpoint: ep.Server(),
			Payload:  `{"order":${order},"item":"${item}","status":"accepted"}`,
		},
		verifyClient,
	), nil
}

// retryScenario retries a dependency that fails its first two calls.
func retryScenario(e *rehearsal.Engine) ([]action.Builder, error) {
	var calls atomic.Int32
	flaky := action.Func{Label: "check-inventory", Fn: func(_ context.Context, tc *testcontext.Context) error {
		n := calls.Add(1)
		if n < 3 {
			return fmt.Errorf("inventory service unavailable (call %d)", n)
		}
		tc.SetVariable("stock", 7)
		return nil
	}}

	retry, err := container.NewRepeatOnErrorUntilTrue("i >= 5", action.All(flaky),
		container.WithAutoSleep(10*time.Millisecond),
		container.WithBackoff(container.ExponentialBackoff(100*time.Millisecond)))
	if err != nil {
		return nil, err
	}
	return action.All(
		retry,
		action.Echo{Message: "inventory answered on attempt ${i} with stock ${stock}"},
	), nil
}

// fanOutScenario sends from parallel branches and receives every message.
func fanOutScenario(e *rehearsal.Engine) ([]action.Builder, error) {
	audit := e.DirectEndpoint("audit")

	branches := make([]action.Builder, 0, 3)
	for shard := 1; shard <= 3; shard++ {
		branches = append(branches, action.Of(action.Send{
			Endpoint: audit,
			Payload:  fmt.Sprintf(`{"shard":%d}`, shard),
			Headers:  map[string]any{"source": "fan-out"},
		}))
	}

	receive, err := action.NewReceive(audit,
		action.ExpectHeader("source", "fan-out"),
		action.AssertJQ(`.shard >= 1 and .shard <= 3`))
	if err != nil {
		return nil, err
	}
	collect, err := container.NewIterate("i <= 3", action.All(receive))
	if err != nil {
		return nil, err
	}

	return action.All(
		container.NewParallel(branches...),
		collect,
		action.ReceiveTimeout{Endpoint: audit, Timeout: 50 * time.Millisecond},
	), nil
}

// quietEndpointScenario expects nothing on an endpoint and catches the timeout.
func quietEndpointScenario(e *rehearsal.Engine) ([]action.Builder, error) {
	receive, err := action.NewReceive(e.DirectEndpoint("silent"), action.WithTimeout(50*time.Millisecond))
	if err != nil {
		return nil, err
	}
	return action.All(
		container.NewCatch(action.All(receive), domain.ErrTimeout),
		action.Echo{Message: "nothing arrived on silent"},
	), nil
}
