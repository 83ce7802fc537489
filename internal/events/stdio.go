package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// StdioHook writes events to an *os.File as JSON lines or FILTER_-prefixed
// environment-style lines.
type StdioHook struct {
	id     string
	format string // "json" or "env"
	output *os.File
}

// NewStdioHook creates a stdio hook writing to os.Stdout.
func NewStdioHook(id, format string) *StdioHook {
	return &StdioHook{id: id, format: format, output: os.Stdout}
}

// SetOutput overrides the destination file (tests use this to capture output).
func (s *StdioHook) SetOutput(f *os.File) {
	s.output = f
}

// Execute writes event in the configured format.
func (s *StdioHook) Execute(ctx context.Context, event Event) error {
	switch s.format {
	case "env":
		return s.outputEnv(event)
	default:
		return s.outputJSON(event)
	}
}

func (s *StdioHook) outputJSON(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("stdio hook: marshal event: %w", err)
	}
	_, err = fmt.Fprintf(s.output, "FILTER_EVENT: %s\n", payload)
	return err
}

func (s *StdioHook) outputEnv(event Event) error {
	lines := []string{
		fmt.Sprintf("FILTER_EVENT_TYPE=%s", event.Type),
		fmt.Sprintf("FILTER_TIMESTAMP=%d", event.Timestamp),
	}
	if event.Worker != "" {
		lines = append(lines, fmt.Sprintf("FILTER_WORKER=%s", event.Worker))
	}
	if event.Consent != "" {
		lines = append(lines, fmt.Sprintf("FILTER_CONSENT=%s", event.Consent))
	}

	keys := make([]string, 0, len(event.Data))
	for k := range event.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("FILTER_%s=%v", envKey(k), event.Data[k]))
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(s.output, line); err != nil {
			return err
		}
	}
	return nil
}

// Type returns "stdio".
func (s *StdioHook) Type() string { return "stdio" }

// ID returns the hook's configured identifier.
func (s *StdioHook) ID() string { return s.id }

func envKey(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		if r >= 'a' && r <= 'z' {
			r = r - 'a' + 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
