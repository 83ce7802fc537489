// Package workers implements the pipeline's long-lived worker tasks (§2,
// §4.2, §4.5-4.7): Input, Video, Audio, VAD/Transcription, and Output. Each
// worker is a Worker launched as its own goroutine by cmd/privacy-filter's run,
// registered before Run is called so heartbeat tracking exists before the
// first tick, and joined via sync.WaitGroup on shutdown — grounded on the
// teacher's Connection lifecycle (context.Context + cancel + sync.WaitGroup)
// in internal/rtmp/conn/conn.go.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/privacyfilter/streamer/internal/logger"
	"github.com/privacyfilter/streamer/internal/perrors"
	"github.com/privacyfilter/streamer/internal/supervisor"
)

// Worker is one pipeline stage. Run blocks until ctx is cancelled or the
// worker hits an unrecoverable error, and reports its lifecycle through the
// supervisor.WorkerStateManager it was constructed with.
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// guardRun recovers a panic from body, converts it into a perrors.WorkerFatal,
// and marks the worker StateError in sup before returning — the one place a
// worker actually reaches StateError (§7/§4.10). Grounded on the panic-
// recovery defer in the pack's birdnet-go audiocore pipeline (log the panic,
// record it, let the caller see a non-nil error rather than silently dying).
func guardRun(name string, sup *supervisor.WorkerStateManager, log *slog.Logger, body func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = perrors.NewWorkerFatal(name, fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			sup.UpdateState(name, supervisor.StateError)
			logger.WithWorker(log, name).Error("worker exited with fatal error", "error", err)
		}
	}()
	return body()
}

// heartbeatInterval is the maximum gap between heartbeats a worker may leave
// while blocked in a retry/connect loop that isn't itself bounded by a
// short queue timeout (§4.2: "emit heartbeats every <=1s").
const heartbeatInterval = 1 * time.Second

// queueTimeout bounds each Put/Get call against the inter-stage queues,
// matching §5's "suspension points ... default ~100ms".
const queueTimeout = 100 * time.Millisecond

// connectChunkTimeout is the per-attempt timeout chunk the Input Worker's
// connect loop polls in, per §4.2's "1-second chunks summing to the
// configured connect timeout".
const connectChunkTimeout = 1 * time.Second
