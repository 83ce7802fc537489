package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"time"
)

// ShellHook runs an external command with event data passed as environment
// variables, or as JSON on stdin.
type ShellHook struct {
	id       string
	command  string
	args     []string
	env      []string
	passJSON bool
	timeout  time.Duration
}

// NewShellHook creates a hook that runs `/bin/bash scriptPath`.
func NewShellHook(id, scriptPath string, timeout time.Duration) *ShellHook {
	return NewShellHookWithCommand(id, "/bin/bash", []string{scriptPath}, timeout)
}

// NewShellHookWithCommand creates a hook that runs an arbitrary command.
func NewShellHookWithCommand(id, command string, args []string, timeout time.Duration) *ShellHook {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShellHook{id: id, command: command, args: args, timeout: timeout}
}

// SetPassJSON configures whether the event is also piped to the command's
// stdin as JSON.
func (s *ShellHook) SetPassJSON(passJSON bool) {
	s.passJSON = passJSON
}

// SetEnv sets additional environment variables (in "KEY=VALUE" form) passed
// to the command alongside the event-derived variables.
func (s *ShellHook) SetEnv(env []string) {
	s.env = env
}

// Execute runs the configured command with a bounded timeout.
func (s *ShellHook) Execute(ctx context.Context, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	cmd.Env = append(cmd.Environ(), s.buildEnvironment(event)...)
	cmd.Env = append(cmd.Env, s.env...)

	if s.passJSON {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("shell hook %s: marshal event: %w", s.id, err)
		}
		cmd.Stdin = bytes.NewReader(payload)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell hook %s: %w: %s", s.id, err, stderr.String())
	}
	return nil
}

func (s *ShellHook) buildEnvironment(event Event) []string {
	env := []string{
		fmt.Sprintf("FILTER_EVENT_TYPE=%s", event.Type),
		fmt.Sprintf("FILTER_TIMESTAMP=%d", event.Timestamp),
	}
	if event.Worker != "" {
		env = append(env, fmt.Sprintf("FILTER_WORKER=%s", event.Worker))
	}
	if event.Consent != "" {
		env = append(env, fmt.Sprintf("FILTER_CONSENT=%s", event.Consent))
	}

	keys := make([]string, 0, len(event.Data))
	for k := range event.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("FILTER_%s=%v", envKey(k), event.Data[k]))
	}
	return env
}

// Type returns "shell".
func (s *ShellHook) Type() string { return "shell" }

// ID returns the hook's configured identifier.
func (s *ShellHook) ID() string { return s.id }
