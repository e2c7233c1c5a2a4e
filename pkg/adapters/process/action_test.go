package process_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/adapters/process"
	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/functions"
	"github.com/aretw0/rehearsal/pkg/registry"
	"github.com/aretw0/rehearsal/pkg/resolver"
	"github.com/aretw0/rehearsal/pkg/testcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext() *testcontext.Context {
	fns := registry.NewFunctions()
	functions.RegisterCore(fns)
	return testcontext.New("exec", testcontext.WithResolver(resolver.New(fns)))
}

func TestExec_SavesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	runner := process.NewRunner()
	runner.Register("whoami", "sh", "-c", `echo "{\"user\":\"$REHEARSAL_ARG_USER\"}"`)

	tc := newContext()
	tc.SetVariable("name", "alice")
	err := action.Run(context.Background(), tc, process.Exec{
		Runner:  runner,
		Command: "whoami",
		Args:    map[string]any{"user": "${name}"},
		SaveTo:  "out",
	})
	require.NoError(t, err)

	out, err := tc.GetVariable("out")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": "alice"}, out)
	code, err := tc.GetVariable("out_exit")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestExec_FailureIsAttributed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	runner := process.NewRunner()
	runner.Register("fail", "sh", "-c", "exit 2")

	tc := newContext()
	err := action.Run(context.Background(), tc, process.Exec{Runner: runner, Command: "fail", SaveTo: "out"})
	require.Error(t, err)
	assert.Equal(t, "exec", domain.FailedAction(err))
	code, _ := tc.GetVariable("out_exit")
	assert.Equal(t, 2, code)
}

func TestExec_WithoutRunner(t *testing.T) {
	err := action.Run(context.Background(), newContext(), process.Exec{Command: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
