package consent

import (
	"context"
	"fmt"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/privacyfilter/streamer/internal/events"
	"github.com/privacyfilter/streamer/internal/mediaio"
	"github.com/privacyfilter/streamer/internal/perrors"
)

// Manager owns the recognition database: it loads existing consent captures
// at startup and keeps the database synchronized with the consent directory
// for the lifetime of the process (§4.9).
//
// Grounded on the original Python ConsentManager's daemon-thread-plus-
// stop-event shape, reworked onto a context-cancelled goroutine, and on the
// teacher's Registry (RWMutex-guarded map) for the database itself.
type Manager struct {
	dir          string
	pollInterval time.Duration
	detector     mediaio.Detector
	recognizer   mediaio.Recognizer
	logger       *slog.Logger
	evts         *events.Manager

	mu      sync.RWMutex
	records map[string]Record
	mtimes  map[string]time.Time
	names   map[string]int

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewManager creates a consent manager rooted at dir. detector and
// recognizer are owned exclusively by this Manager; they must not be shared
// with the Video Worker's Detector/Recognizer instances (§5 shared-resource
// policy).
func NewManager(dir string, detector mediaio.Detector, recognizer mediaio.Recognizer, pollInterval time.Duration, logger *slog.Logger, evts *events.Manager) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dir:          dir,
		pollInterval: pollInterval,
		detector:     detector,
		recognizer:   recognizer,
		logger:       logger,
		evts:         evts,
		records:      make(map[string]Record),
		mtimes:       make(map[string]time.Time),
		names:        make(map[string]int),
	}
}

// LoadExisting creates the consent directory if absent and processes every
// `.jpg` file already present, inserting a Record for each successfully
// processed file.
func (m *Manager) LoadExisting() error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return perrors.NewConsentLoadError(fmt.Sprintf("mkdir %s", m.dir), err)
	}
	m.reconcile()
	m.mu.RLock()
	count := len(m.records)
	m.mu.RUnlock()
	m.logger.Info("consent manager loaded existing captures", "count", count, "dir", m.dir)
	return nil
}

// Start begins watching the consent directory for changes. It installs an
// fsnotify watcher when available and always runs a polling fallback at
// pollInterval, matching the spec's "polling acceptable, default 250 ms"
// allowance and the original's watchfiles polling backend.
func (m *Manager) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Warn("fsnotify unavailable, falling back to polling only", "error", err)
	} else if err := watcher.Add(m.dir); err != nil {
		m.logger.Warn("fsnotify add failed, falling back to polling only", "error", err)
		watcher.Close()
		watcher = nil
	}
	m.watcher = watcher
	m.stopCh = make(chan struct{})

	m.wg.Add(1)
	go m.monitor(ctx)
	return nil
}

// Stop halts the watcher goroutine and waits for it to exit.
func (m *Manager) Stop() {
	if m.stopCh != nil {
		close(m.stopCh)
	}
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.wg.Wait()
}

func (m *Manager) monitor(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	var eventsCh chan fsnotify.Event
	var errCh chan error
	if m.watcher != nil {
		eventsCh = m.watcher.Events
		errCh = m.watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case ev, ok := <-eventsCh:
			if !ok {
				eventsCh = nil
				continue
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".jpg") {
				continue
			}
			m.reconcile()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			m.logger.Warn("consent watcher error", "error", err)
		case <-ticker.C:
			m.reconcile()
		}
	}
}

// reconcile scans the consent directory, processing new or changed files
// and removing records whose backing file is gone.
func (m *Manager) reconcile() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.logger.Warn("consent reconcile: read dir failed", "error", err, "dir", m.dir)
		return
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		seen[path] = true

		info, err := e.Info()
		if err != nil {
			continue
		}
		m.mu.RLock()
		prevMtime, tracked := m.mtimes[path]
		m.mu.RUnlock()
		if tracked && prevMtime.Equal(info.ModTime()) {
			continue
		}
		m.processFile(path, info.ModTime())
	}

	m.mu.RLock()
	var removed []string
	for path := range m.records {
		if !seen[path] {
			removed = append(removed, path)
		}
	}
	m.mu.RUnlock()
	for _, path := range removed {
		m.removeRecord(path)
	}
}

func (m *Manager) processFile(path string, mtime time.Time) {
	f, err := os.Open(path)
	if err != nil {
		m.logger.Warn("consent: open failed, skipping", "path", path, "error", err)
		m.emitLoadFailed(path, err)
		return
	}
	defer f.Close()

	img, err := jpeg.Decode(f)
	if err != nil {
		m.logger.Warn("consent: decode failed, skipping", "path", path, "error", err)
		m.emitLoadFailed(path, err)
		return
	}

	frame := frameFromImage(img)
	boxes, err := m.detector.Detect(frame)
	if err != nil || len(boxes) == 0 {
		if err == nil {
			err = fmt.Errorf("no face detected")
		}
		m.logger.Warn("consent: face detection failed, skipping", "path", path, "error", err)
		m.emitLoadFailed(path, err)
		return
	}
	largest := largestBox(boxes)

	crop, err := m.recognizer.AlignCrop(frame, largest)
	if err != nil {
		m.logger.Warn("consent: align failed, skipping", "path", path, "error", err)
		m.emitLoadFailed(path, err)
		return
	}
	feature, err := m.recognizer.Feature(crop, largest)
	if err != nil {
		m.logger.Warn("consent: feature extraction failed, skipping", "path", path, "error", err)
		m.emitLoadFailed(path, err)
		return
	}

	name, capturedAt, err := ParseFilename(path)
	if err != nil {
		name = "unknown"
		capturedAt = mtime
	}

	m.insertRecord(path, Record{Path: path, Name: name, Feature: feature, CapturedAt: capturedAt}, mtime)
}

func (m *Manager) emitLoadFailed(path string, cause error) {
	if m.evts == nil {
		return
	}
	m.evts.Trigger(context.Background(), *events.New(events.EventConsentLoadFailed).WithData("path", path).WithData("error", cause.Error()))
}

// insertRecord replaces any existing record at path atomically before
// insert, per §4.9's Added semantics.
func (m *Manager) insertRecord(path string, rec Record, mtime time.Time) {
	m.mu.Lock()
	if old, existed := m.records[path]; existed {
		m.decrementName(old.Name)
	}
	m.records[path] = rec
	m.mtimes[path] = mtime
	m.names[rec.Name]++
	m.mu.Unlock()

	m.logger.Info("consent record added", "path", path, "name", rec.Name)
	if m.evts != nil {
		m.evts.Trigger(context.Background(), *events.New(events.EventConsentAdded).WithConsent(rec.Name))
	}
}

func (m *Manager) removeRecord(path string) {
	m.mu.Lock()
	rec, ok := m.records[path]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.records, path)
	delete(m.mtimes, path)
	m.decrementName(rec.Name)
	_, stillConsented := m.names[rec.Name]
	m.mu.Unlock()

	m.logger.Info("consent record removed", "path", path, "name", rec.Name)
	if m.evts != nil && !stillConsented {
		m.evts.Trigger(context.Background(), *events.New(events.EventConsentRevoked).WithConsent(rec.Name))
	}
}

// decrementName must be called with mu held for writing.
func (m *Manager) decrementName(name string) {
	if n, ok := m.names[name]; ok {
		if n <= 1 {
			delete(m.names, name)
		} else {
			m.names[name] = n - 1
		}
	}
}

// Snapshot returns a copy of every current Record, for the Video Worker's
// consent gate to iterate without holding the Manager's lock.
func (m *Manager) Snapshot() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out
}

// IsConsented reports whether at least one Record currently bears name.
func (m *Manager) IsConsented(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.names[name] > 0
}

// Count returns the current number of tracked records.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
