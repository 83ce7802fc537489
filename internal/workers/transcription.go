package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/privacyfilter/streamer/internal/logger"
	"github.com/privacyfilter/streamer/internal/media"
	"github.com/privacyfilter/streamer/internal/mediaio"
	"github.com/privacyfilter/streamer/internal/perrors"
	"github.com/privacyfilter/streamer/internal/queue"
	"github.com/privacyfilter/streamer/internal/supervisor"
)

// TranscriptionWorker pulls completed utterances from the VAD worker and
// runs them through the Transcriber, emitting non-empty TranscriptionEvents
// with their timestamps offset by the utterance's absolute start time
// (§4.7: "a separate transcription worker pulls from that queue").
//
// The Transcriber is expected to return event timestamps relative to the
// segment it was given (it only ever sees the isolated utterance clip); this
// worker is the one place that converts those back to absolute stream time.
type TranscriptionWorker struct {
	Transcriber mediaio.Transcriber
	Sup         *supervisor.WorkerStateManager

	In  *queue.Queue[media.TranscriptionSegment]
	Out chan media.TranscriptionEvent

	Log *slog.Logger
}

func (w *TranscriptionWorker) Name() string { return "transcription" }

func (w *TranscriptionWorker) Run(ctx context.Context) error {
	log := logger.WithWorker(w.Log, w.Name())
	w.Sup.UpdateState(w.Name(), supervisor.StateRunning)

	return guardRun(w.Name(), w.Sup, w.Log, func() error {
		for {
			if ctx.Err() != nil {
				w.drain(log)
				w.Sup.UpdateState(w.Name(), supervisor.StateStopped)
				return nil
			}

			seg, status := w.In.Get(queueTimeout)
			w.Sup.Heartbeat(w.Name())
			switch status {
			case queue.Closed:
				w.drain(log)
				w.Sup.UpdateState(w.Name(), supervisor.StateStopped)
				return nil
			case queue.Timeout:
				continue
			}

			w.transcribe(ctx, seg, log)
		}
	})
}

// drain synchronously empties the transcription queue on shutdown, bounded
// by transcriptionDrainTimeout (§4.7).
func (w *TranscriptionWorker) drain(log *slog.Logger) {
	deadline := time.Now().Add(transcriptionDrainTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), transcriptionDrainTimeout)
	defer cancel()
	for time.Now().Before(deadline) {
		seg, status := w.In.Get(0)
		if status != queue.OK {
			return
		}
		w.transcribe(ctx, seg, log)
	}
}

func (w *TranscriptionWorker) transcribe(ctx context.Context, seg media.TranscriptionSegment, log *slog.Logger) {
	events, err := w.Transcriber.Transcribe(ctx, seg)
	if err != nil {
		log.Error("transcription failed", "start_time", seg.StartTime, "error", perrors.NewTranscribeError("transcribe", err))
		return
	}
	for _, ev := range events {
		if ev.Text == "" {
			continue
		}
		ev.StartTime += seg.StartTime
		ev.EndTime += seg.StartTime
		w.emit(ctx, ev, log)
	}
}

// emit hands a completed event to Out without blocking past ctx cancellation
// or transcriptionDrainTimeout, so a full/unconsumed channel can never stall
// shutdown (§4.7).
func (w *TranscriptionWorker) emit(ctx context.Context, ev media.TranscriptionEvent, log *slog.Logger) {
	if w.Out == nil {
		return
	}
	select {
	case w.Out <- ev:
	case <-ctx.Done():
		log.Warn("dropped transcription event on shutdown (consumer unavailable)", "start_time", ev.StartTime)
	case <-time.After(transcriptionDrainTimeout):
		log.Warn("dropped transcription event (consumer not reading)", "start_time", ev.StartTime)
	}
}
