package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
}

func TestRunner_Run(t *testing.T) {
	skipOnWindows(t)

	runner := NewRunner()
	runner.Register("greet", "sh", "-c", "echo hello")
	runner.Register("echo_env", "sh", "-c", "echo $REHEARSAL_ARG_MSG")
	runner.Register("json", "sh", "-c", `echo '{"status":"up","nodes":3}'`)
	runner.Register("broken", "sh", "-c", "echo oops >&2; exit 3")

	t.Run("Executes Registered Command", func(t *testing.T) {
		out, err := runner.Run(context.Background(), "greet", nil)
		require.NoError(t, err)
		assert.Equal(t, "hello", out.Value)
		assert.Equal(t, 0, out.ExitCode)
	})

	t.Run("Fails For Unregistered Command", func(t *testing.T) {
		_, err := runner.Run(context.Background(), "hacker_script", nil)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		assert.ErrorContains(t, err, "not registered")
	})

	t.Run("Passes Arguments via Env Vars", func(t *testing.T) {
		out, err := runner.Run(context.Background(), "echo_env", map[string]any{"msg": "SecretMessage"})
		require.NoError(t, err)
		assert.Equal(t, "SecretMessage", out.Value)
	})

	t.Run("Decodes JSON Output", func(t *testing.T) {
		out, err := runner.Run(context.Background(), "json", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"status": "up", "nodes": float64(3)}, out.Value)
	})

	t.Run("Reports Exit Code", func(t *testing.T) {
		out, err := runner.Run(context.Background(), "broken", nil)
		assert.ErrorContains(t, err, "exited with 3: oops")
		assert.Equal(t, 3, out.ExitCode)
	})

	assert.Equal(t, []string{"broken", "echo_env", "greet", "json"}, runner.Names())
}

func TestRunner_WithCommands(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fixture.txt"), []byte("seeded"), 0o644))

	runner := NewRunner(WithCommands([]Command{
		{Name: "seed", Path: "sh", Args: []string{"-c", "echo $SEED_MODE"}, Env: map[string]string{"SEED_MODE": "full"}},
		{Name: "fixture", Path: "cat", Args: []string{"fixture.txt"}},
	}), WithBaseDir(dir))

	out, err := runner.Run(context.Background(), "seed", nil)
	require.NoError(t, err)
	assert.Equal(t, "full", out.Value)

	out, err = runner.Run(context.Background(), "fixture", nil)
	require.NoError(t, err)
	assert.Equal(t, "seeded", out.Value, "commands run in the base directory")
	assert.Equal(t, []string{"fixture", "seed"}, runner.Names())
}
