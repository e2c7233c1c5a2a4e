package process

import (
	"context"
	"fmt"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/testcontext"
)

// Exec is a test action that runs a registered command. Argument values
// are resolved against the Test Context first; the command output is
// stored in SaveTo when set, and its exit code in SaveTo + "_exit".
type Exec struct {
	Runner  *Runner
	Command string
	Args    map[string]any
	SaveTo  string
}

func (Exec) Name() string { return "exec" }

func (e Exec) Description() string { return "exec " + e.Command }

func (e Exec) Execute(ctx context.Context, tc *testcontext.Context) error {
	if e.Runner == nil {
		return fmt.Errorf("%w: exec without runner", domain.ErrInvalidConfiguration)
	}
	args := make(map[string]any, len(e.Args))
	for k, v := range e.Args {
		rv, err := tc.ResolveValue(v)
		if err != nil {
			return fmt.Errorf("argument %q: %w", k, err)
		}
		args[k] = rv
	}

	out, err := e.Runner.Run(ctx, e.Command, args)
	if e.SaveTo != "" {
		tc.SetVariable(e.SaveTo+"_exit", out.ExitCode)
	}
	if err != nil {
		return err
	}
	if e.SaveTo != "" {
		tc.SetVariable(e.SaveTo, out.Value)
	}
	tc.Logger().Debug("command finished", "command", e.Command, "exit_code", out.ExitCode)
	return nil
}
