// Package state holds the pipeline's shared connection-level state:
// ConnectionState tracks whether the input and output endpoints are
// currently attached, grounded on the teacher's Registry/Stream
// RWMutex-guarded-map pattern in internal/rtmp/server/registry.go.
package state

import (
	"sync"
	"time"
)

// ConnectionState tracks the input and output endpoint connection flags and
// the stream metadata announced by the input side, single-owner and
// mutex-guarded like the teacher's Stream (§4 "ConnectionState").
type ConnectionState struct {
	mu sync.RWMutex

	inputConnected    bool
	outputConnected   bool
	inputConnectTime  time.Time
	outputConnectTime time.Time
	streamMetadata    map[string]any
}

// New creates an empty ConnectionState with both endpoints disconnected.
func New() *ConnectionState {
	return &ConnectionState{streamMetadata: make(map[string]any)}
}

// SetInputConnected records the input endpoint's connection transition. On
// connect, metadata is merged into the stored stream metadata; on
// disconnect, the connect time is cleared and the metadata map is reset, as
// a fresh input session announces its own metadata from scratch.
func (s *ConnectionState) SetInputConnected(connected bool, metadata map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputConnected = connected
	if connected {
		s.inputConnectTime = time.Now()
		for k, v := range metadata {
			s.streamMetadata[k] = v
		}
		return
	}
	s.inputConnectTime = time.Time{}
	s.streamMetadata = make(map[string]any)
}

// SetOutputConnected records the output endpoint's connection transition.
func (s *ConnectionState) SetOutputConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputConnected = connected
	if connected {
		s.outputConnectTime = time.Now()
		return
	}
	s.outputConnectTime = time.Time{}
}

// IsConnected reports whether both the input and output endpoints are
// currently connected.
func (s *ConnectionState) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputConnected && s.outputConnected
}

// IsInputConnected reports the input endpoint's connection flag.
func (s *ConnectionState) IsInputConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inputConnected
}

// IsOutputConnected reports the output endpoint's connection flag.
func (s *ConnectionState) IsOutputConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputConnected
}

// StreamMetadata returns a snapshot copy of the announced stream metadata.
func (s *ConnectionState) StreamMetadata() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.streamMetadata))
	for k, v := range s.streamMetadata {
		out[k] = v
	}
	return out
}

// ConnectionDuration returns how long both endpoints have been connected,
// measured from whichever connected later, or false if either endpoint is
// currently disconnected.
func (s *ConnectionState) ConnectionDuration() (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.inputConnectTime.IsZero() || s.outputConnectTime.IsZero() {
		return 0, false
	}
	start := s.inputConnectTime
	if s.outputConnectTime.After(start) {
		start = s.outputConnectTime
	}
	return time.Since(start), true
}
