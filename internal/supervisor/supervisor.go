// Package supervisor tracks the health of the pipeline's workers. It is
// grounded on the teacher's Registry (internal/rtmp/server/registry.go): a
// single RWMutex-guarded map keyed by name, with the per-stream mutex
// replaced by a per-worker heartbeat timestamp since workers, unlike
// streams, have no subscriber list to protect.
package supervisor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/privacyfilter/streamer/internal/logger"
)

// WorkerState is one of the states a registered worker can report (§3
// "WorkerState").
type WorkerState string

const (
	StateIdle     WorkerState = "idle"
	StateRunning  WorkerState = "running"
	StateStopping WorkerState = "stopping"
	StateStopped  WorkerState = "stopped"
	StateError    WorkerState = "error"
)

// DefaultHealthTimeout is how long a worker may go without a heartbeat
// before IsHealthy considers it unhealthy, matching the original's 30s
// default.
const DefaultHealthTimeout = 30 * time.Second

type workerEntry struct {
	state         WorkerState
	lastHeartbeat time.Time
}

// WorkerStateManager is a thread-safe registry of named workers and their
// current lifecycle state, used to report whether the pipeline is healthy.
// It does not restart or escalate a stuck or errored worker.
type WorkerStateManager struct {
	mu            sync.RWMutex
	workers       map[string]*workerEntry
	healthTimeout time.Duration
	logger        *slog.Logger
}

// NewWorkerStateManager creates an empty manager. healthTimeout <= 0 uses
// DefaultHealthTimeout.
func NewWorkerStateManager(healthTimeout time.Duration, log *slog.Logger) *WorkerStateManager {
	if healthTimeout <= 0 {
		healthTimeout = DefaultHealthTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &WorkerStateManager{
		workers:       make(map[string]*workerEntry),
		healthTimeout: healthTimeout,
		logger:        log,
	}
}

// Register adds a worker in StateIdle with a fresh heartbeat. Registering a
// name that already exists resets it to idle, mirroring the original's
// register_thread overwrite semantics.
func (m *WorkerStateManager) Register(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[name] = &workerEntry{state: StateIdle, lastHeartbeat: time.Now()}
	m.logger.Debug("worker registered", "worker", name)
}

// Unregister removes a worker from tracking entirely.
func (m *WorkerStateManager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workers, name)
	m.logger.Debug("worker unregistered", "worker", name)
}

// UpdateState transitions a registered worker to state, refreshing its
// heartbeat, and logs the transition when the state actually changes. A
// call for a name that was never registered is a no-op.
func (m *WorkerStateManager) UpdateState(name string, newState WorkerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.workers[name]
	if !ok {
		return
	}
	old := entry.state
	entry.state = newState
	entry.lastHeartbeat = time.Now()
	if old != newState {
		logger.WithWorker(m.logger, name).Info("worker state transition", "from", old, "to", newState)
	}
}

// Heartbeat refreshes a registered worker's last-seen timestamp without
// changing its state.
func (m *WorkerStateManager) Heartbeat(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.workers[name]; ok {
		entry.lastHeartbeat = time.Now()
	}
}

// State returns a worker's current state and whether it is registered.
func (m *WorkerStateManager) State(name string) (WorkerState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.workers[name]
	if !ok {
		return "", false
	}
	return entry.state, true
}

// AllStates returns a snapshot of every registered worker's state, keyed by
// name.
func (m *WorkerStateManager) AllStates() map[string]WorkerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]WorkerState, len(m.workers))
	for name, entry := range m.workers {
		out[name] = entry.state
	}
	return out
}

// IsHealthy reports whether name's heartbeat is recent enough and its state
// is neither StateError nor StateStopped. An unregistered name is never
// healthy.
func (m *WorkerStateManager) IsHealthy(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isHealthyLocked(name)
}

func (m *WorkerStateManager) isHealthyLocked(name string) bool {
	entry, ok := m.workers[name]
	if !ok {
		return false
	}
	elapsed := time.Since(entry.lastHeartbeat)
	return elapsed < m.healthTimeout && entry.state != StateError && entry.state != StateStopped
}

// AllHealthy reports whether every currently registered worker is healthy.
// An empty registry is vacuously healthy.
func (m *WorkerStateManager) AllHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name := range m.workers {
		if !m.isHealthyLocked(name) {
			return false
		}
	}
	return true
}

// WorkerHealth is one worker's health as reported by HealthSnapshot.
type WorkerHealth struct {
	Name    string      `json:"name"`
	State   WorkerState `json:"state"`
	Healthy bool        `json:"healthy"`
}

// HealthSnapshot returns the health of every registered worker, for the
// Control API's GET /healthz (§4.11).
func (m *WorkerStateManager) HealthSnapshot() []WorkerHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]WorkerHealth, 0, len(m.workers))
	for name := range m.workers {
		out = append(out, WorkerHealth{
			Name:    name,
			State:   m.workers[name].state,
			Healthy: m.isHealthyLocked(name),
		})
	}
	return out
}
