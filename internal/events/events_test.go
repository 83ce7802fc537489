package events

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestEvent(t *testing.T) {
	event := New(EventConsentAdded).
		WithWorker("video").
		WithConsent("alice").
		WithData("source", "startup")

	if event.Type != EventConsentAdded {
		t.Errorf("expected event type %s, got %s", EventConsentAdded, event.Type)
	}
	if event.Worker != "video" {
		t.Errorf("expected worker 'video', got %s", event.Worker)
	}
	if event.Consent != "alice" {
		t.Errorf("expected consent 'alice', got %s", event.Consent)
	}
	if event.Data["source"] != "startup" {
		t.Errorf("expected source 'startup', got %v", event.Data["source"])
	}

	str := event.String()
	if str != "consent_added:alice" {
		t.Errorf("expected string 'consent_added:alice', got %s", str)
	}
}

func TestShellHook(t *testing.T) {
	hook := NewShellHook("test-hook", "/bin/echo", 10*time.Second)
	if hook.Type() != "shell" {
		t.Errorf("expected hook type 'shell', got %s", hook.Type())
	}
	if hook.ID() != "test-hook" {
		t.Errorf("expected hook ID 'test-hook', got %s", hook.ID())
	}

	customHook := NewShellHookWithCommand("custom", "/bin/true", []string{}, 5*time.Second)
	if customHook.command != "/bin/true" {
		t.Errorf("expected command '/bin/true', got %s", customHook.command)
	}
}

func TestShellHookExecutesCommand(t *testing.T) {
	hook := NewShellHookWithCommand("echo-hook", "/bin/true", nil, 2*time.Second)
	event := *New(EventInputConnected).WithWorker("input")
	if err := hook.Execute(context.Background(), event); err != nil {
		t.Errorf("expected success, got %v", err)
	}
}

func TestStdioHook(t *testing.T) {
	hook := NewStdioHook("stdio-test", "json")
	if hook.Type() != "stdio" {
		t.Errorf("expected hook type 'stdio', got %s", hook.Type())
	}
	if hook.ID() != "stdio-test" {
		t.Errorf("expected hook ID 'stdio-test', got %s", hook.ID())
	}
	if hook.format != "json" {
		t.Errorf("expected format 'json', got %s", hook.format)
	}
}

func TestStdioHookWritesEnvFormat(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	hook := NewStdioHook("stdio-env", "env")
	hook.SetOutput(w)

	event := *New(EventConsentRevoked).WithConsent("bob").WithData("reason", "file_deleted")
	if err := hook.Execute(context.Background(), event); err != nil {
		t.Fatalf("execute: %v", err)
	}
	w.Close()

	buf := make([]byte, 4096)
	n, _ := r.Read(buf)
	out := string(buf[:n])
	if !contains(out, "FILTER_EVENT_TYPE=consent_revoked") {
		t.Errorf("expected FILTER_EVENT_TYPE line, got %q", out)
	}
	if !contains(out, "FILTER_CONSENT=bob") {
		t.Errorf("expected FILTER_CONSENT line, got %q", out)
	}
	if !contains(out, "FILTER_REASON=file_deleted") {
		t.Errorf("expected FILTER_REASON line, got %q", out)
	}
}

func TestWebhookHook(t *testing.T) {
	hook := NewWebhookHook("webhook-test", "https://example.com/webhook", 30*time.Second)
	if hook.Type() != "webhook" {
		t.Errorf("expected hook type 'webhook', got %s", hook.Type())
	}
	if hook.ID() != "webhook-test" {
		t.Errorf("expected hook ID 'webhook-test', got %s", hook.ID())
	}
	if hook.url != "https://example.com/webhook" {
		t.Errorf("expected URL 'https://example.com/webhook', got %s", hook.url)
	}

	hook.AddHeader("Authorization", "Bearer token")
	if hook.headers["Authorization"] != "Bearer token" {
		t.Errorf("expected Authorization header 'Bearer token', got %s", hook.headers["Authorization"])
	}
}

func TestManagerRegisterUnregisterAndTrigger(t *testing.T) {
	config := DefaultHookConfig()
	manager := NewManager(config, nil)

	hook := NewShellHookWithCommand("test", "/bin/true", nil, 10*time.Second)
	if err := manager.Register(EventInputConnected, hook); err != nil {
		t.Errorf("failed to register hook: %v", err)
	}

	if !manager.Unregister(EventInputConnected, "test") {
		t.Error("failed to unregister hook")
	}

	// Triggering with no hooks registered must not crash.
	event := New(EventInputConnected)
	manager.Trigger(context.Background(), *event)

	if err := manager.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestManagerRegisterNilHook(t *testing.T) {
	manager := NewManager(DefaultHookConfig(), nil)
	defer manager.Close()
	if err := manager.Register(EventWorkerError, nil); err == nil {
		t.Error("expected error registering nil hook")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i] == substr[0] && s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
