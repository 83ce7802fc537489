package workers

import (
	"context"
	"log/slog"

	"github.com/privacyfilter/streamer/internal/logger"
	"github.com/privacyfilter/streamer/internal/media"
	"github.com/privacyfilter/streamer/internal/mediaio"
	"github.com/privacyfilter/streamer/internal/queue"
	"github.com/privacyfilter/streamer/internal/supervisor"
)

// OutputWorker pulls ProcessedVideoMessages and writes them to the output
// Sink (§4.5 data flow: "Processed-video queue -> Output"). The Audio
// Worker writes its own packets directly to the same Sink, so this worker
// only needs to own the video side of the mux.
type OutputWorker struct {
	Sink mediaio.Sink
	Sup  *supervisor.WorkerStateManager

	In *queue.Queue[media.ProcessedVideoMessage]

	Log *slog.Logger
}

func (w *OutputWorker) Name() string { return "output" }

func (w *OutputWorker) Run(ctx context.Context) error {
	log := logger.WithWorker(w.Log, w.Name())
	w.Sup.UpdateState(w.Name(), supervisor.StateRunning)

	return guardRun(w.Name(), w.Sup, w.Log, func() error {
		for {
			if ctx.Err() != nil {
				w.Sup.UpdateState(w.Name(), supervisor.StateStopped)
				return nil
			}

			msg, status := w.In.Get(queueTimeout)
			w.Sup.Heartbeat(w.Name())
			switch status {
			case queue.Closed:
				w.Sup.UpdateState(w.Name(), supervisor.StateStopped)
				return nil
			case queue.Timeout:
				continue
			}

			if err := w.Sink.WriteVideo(ctx, msg); err != nil {
				log.Debug("dropped processed video frame (output write failed)", "sequence", msg.Sequence, "error", err)
			}
		}
	})
}
