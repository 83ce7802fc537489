package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager registers and dispatches hooks for pipeline events.
type Manager struct {
	hooks     map[EventType][]Hook
	stdioHook *StdioHook
	mu        sync.RWMutex
	pool      *executionPool
	logger    *slog.Logger
	config    HookConfig
}

// NewManager creates a hook manager.
func NewManager(config HookConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := time.ParseDuration(config.Timeout); err != nil {
		logger.Warn("invalid hook timeout, using default", "timeout", config.Timeout, "error", err)
	}

	m := &Manager{
		hooks:  make(map[EventType][]Hook),
		logger: logger,
		config: config,
		pool:   newExecutionPool(config.Concurrency, logger),
	}
	if config.StdioFormat != "" {
		_ = m.EnableStdioOutput(config.StdioFormat)
	}
	return m
}

// Register adds a hook for the given event type.
func (m *Manager) Register(eventType EventType, hook Hook) error {
	if hook == nil {
		return fmt.Errorf("cannot register nil hook")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[eventType] = append(m.hooks[eventType], hook)
	m.logger.Info("hook registered", "event_type", eventType, "hook_type", hook.Type(), "hook_id", hook.ID())
	return nil
}

// Unregister removes a hook by ID from the given event type.
func (m *Manager) Unregister(eventType EventType, hookID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	hooks := m.hooks[eventType]
	for i, h := range hooks {
		if h.ID() == hookID {
			m.hooks[eventType] = append(hooks[:i], hooks[i+1:]...)
			m.logger.Info("hook unregistered", "event_type", eventType, "hook_id", hookID)
			return true
		}
	}
	return false
}

// Trigger executes all registered hooks for event asynchronously.
func (m *Manager) Trigger(ctx context.Context, event Event) {
	if m == nil {
		return
	}
	m.mu.RLock()
	hooks := make([]Hook, len(m.hooks[event.Type]))
	copy(hooks, m.hooks[event.Type])
	m.mu.RUnlock()

	if m.stdioHook != nil {
		hooks = append(hooks, m.stdioHook)
	}
	if len(hooks) == 0 {
		return
	}
	m.logger.Debug("triggering event", "event_type", event.Type, "hook_count", len(hooks), "event", event.String())
	for _, h := range hooks {
		m.pool.execute(ctx, h, event)
	}
}

// EnableStdioOutput enables structured stdout output.
func (m *Manager) EnableStdioOutput(format string) error {
	if format != "json" && format != "env" {
		return fmt.Errorf("unsupported stdio format: %s", format)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stdioHook = NewStdioHook("stdio", format)
	m.logger.Info("stdio output enabled", "format", format)
	return nil
}

// Close shuts down the manager, waiting for in-flight hook executions.
func (m *Manager) Close() error {
	if m.pool != nil {
		m.pool.close()
	}
	m.logger.Info("hook manager closed")
	return nil
}

// executionPool bounds concurrent hook execution.
type executionPool struct {
	workers chan struct{}
	size    int
	active  int
	mu      sync.Mutex
	logger  *slog.Logger
}

func newExecutionPool(size int, logger *slog.Logger) *executionPool {
	if size <= 0 {
		size = 10
	}
	return &executionPool{workers: make(chan struct{}, size), size: size, logger: logger}
}

func (ep *executionPool) execute(ctx context.Context, hook Hook, event Event) {
	go func() {
		ep.workers <- struct{}{}
		defer func() { <-ep.workers }()

		ep.mu.Lock()
		ep.active++
		ep.mu.Unlock()
		defer func() {
			ep.mu.Lock()
			ep.active--
			ep.mu.Unlock()
		}()

		start := time.Now()
		err := hook.Execute(ctx, event)
		duration := time.Since(start)
		if err != nil {
			ep.logger.Error("hook execution failed", "hook_type", hook.Type(), "hook_id", hook.ID(),
				"event_type", event.Type, "duration_ms", duration.Milliseconds(), "error", err)
		} else {
			ep.logger.Debug("hook executed", "hook_type", hook.Type(), "hook_id", hook.ID(),
				"event_type", event.Type, "duration_ms", duration.Milliseconds())
		}
	}()
}

func (ep *executionPool) close() {
	for i := 0; i < cap(ep.workers); i++ {
		ep.workers <- struct{}{}
	}
}
