// Package process runs allow-listed local commands from tests, typically to
// seed fixtures or poke the system under test through its own CLI.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/aretw0/rehearsal/pkg/domain"
)

// EnvPrefix prefixes the environment variables that carry call arguments.
const EnvPrefix = "REHEARSAL_ARG_"

// Runner executes local processes. Only registered commands can run.
type Runner struct {
	registry map[string]Command
	baseDir  string
}

// Command is an allow-listed command, as listed under "commands" in the
// engine configuration.
type Command struct {
	Name        string            `mapstructure:"name"`
	Path        string            `mapstructure:"command"`
	Args        []string          `mapstructure:"args"`
	Env         map[string]string `mapstructure:"env"`
	Description string            `mapstructure:"description"`
}

// Output is the captured result of a command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Value is the trimmed stdout, decoded when it is a JSON object or array.
	Value any
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithCommands adds commands to the allow-list. A later entry replaces an
// earlier one of the same name.
func WithCommands(commands []Command) RunnerOption {
	return func(r *Runner) {
		for _, c := range commands {
			r.registry[c.Name] = c
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]Command),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = Command{Name: name, Path: command, Args: args}
}

// Names returns the registered command names, sorted.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the registered command name. args are passed as
// REHEARSAL_ARG_<NAME> environment variables, never as command flags, so
// values cannot inject options. A non-zero exit is an error; the returned
// Output is still filled in.
func (r *Runner) Run(ctx context.Context, name string, args map[string]any) (Output, error) {
	proc, ok := r.registry[name]
	if !ok {
		return Output{}, fmt.Errorf("%w: command %q is not registered", domain.ErrInvalidConfiguration, name)
	}

	cmd := exec.CommandContext(ctx, proc.Path, proc.Args...)
	cmd.Dir = r.baseDir

	env := cmd.Environ()
	for k, v := range proc.Env {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		env = append(env, EnvPrefix+strings.ToUpper(k)+"="+envValue(v))
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Value:  decode(stdout.String()),
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("command %q exited with %d: %s", name, out.ExitCode, strings.TrimSpace(out.Stderr))
		}
		return out, fmt.Errorf("command %q: %w", name, err)
	}
	return out, nil
}

// envValue renders primitives as text and anything else as JSON.
func envValue(v any) string {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

func decode(output string) any {
	trimmed := strings.TrimSpace(output)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return trimmed
}
