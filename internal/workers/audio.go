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

// AudioWorker pulls AudioMessages and remuxes them into the output
// container, either passthrough or transcoded through an AudioEncoder
// (§4.6). The encoder's Mode() reports which behavior is active; passthrough
// writes the frame unchanged, any other mode runs it through Encode first.
type AudioWorker struct {
	Encoder mediaio.AudioEncoder
	Sink    mediaio.Sink
	Sup     *supervisor.WorkerStateManager

	In *queue.Queue[media.AudioMessage]

	Log *slog.Logger
}

func (w *AudioWorker) Name() string { return "audio" }

func (w *AudioWorker) Run(ctx context.Context) error {
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

			if err := w.writeOut(ctx, msg, log); err != nil {
				log.Debug("dropped audio message (output write failed)", "sequence", msg.Sequence, "error", err)
			}
		}
	})
}

// writeOut applies the configured AudioEncoder mode and writes the result to
// the output Sink. Passthrough mode mutates nothing and hands the frame to
// the sink unchanged; any other mode re-encodes the frame's buffer into a
// copy of the frame before handing it to the sink, so the transcoded bytes are what actually
// reaches output (§4.6).
func (w *AudioWorker) writeOut(ctx context.Context, msg media.AudioMessage, log *slog.Logger) error {
	if w.Encoder != nil && w.Encoder.Mode() != "passthrough" && msg.Frame != nil {
		encoded, err := w.Encoder.Encode(msg.Frame)
		if err != nil {
			return err
		}
		transcoded := *msg.Frame
		transcoded.Buf = encoded
		msg.Frame = &transcoded
		log.Debug("audio frame transcoded", "mode", w.Encoder.Mode(), "bytes", len(encoded))
	}
	return w.Sink.WriteAudio(ctx, msg)
}
