package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/privacyfilter/streamer/internal/config"
	"github.com/privacyfilter/streamer/internal/logger"
	"github.com/privacyfilter/streamer/internal/media"
	"github.com/privacyfilter/streamer/internal/mediaio"
	"github.com/privacyfilter/streamer/internal/perrors"
	"github.com/privacyfilter/streamer/internal/queue"
	"github.com/privacyfilter/streamer/internal/state"
	"github.com/privacyfilter/streamer/internal/supervisor"
)

// InputWorker opens the input endpoint, reads decoded frames, stamps them
// with a monotonic per-modality sequence, and fans them out to the video,
// audio, and (when transcription is enabled) VAD queues, per §4.2.
type InputWorker struct {
	Source mediaio.Source
	URL    string
	Config config.Config
	Conn   *state.ConnectionState
	Sup    *supervisor.WorkerStateManager

	VideoOut *queue.Queue[media.VideoMessage]
	AudioOut *queue.Queue[media.AudioMessage]
	VADOut   *queue.Queue[media.AudioMessage] // nil when transcription is disabled

	Log *slog.Logger
}

func (w *InputWorker) Name() string { return "input" }

// Run is the outer connect-loop/demux-loop cycle: connect, demux until the
// stream ends or errors, clear downstream queues, and reconnect — repeating
// until ctx is cancelled.
func (w *InputWorker) Run(ctx context.Context) error {
	log := logger.WithWorker(w.Log, w.Name())
	w.Sup.UpdateState(w.Name(), supervisor.StateRunning)

	return guardRun(w.Name(), w.Sup, w.Log, func() error {
		for {
			if ctx.Err() != nil {
				w.Sup.UpdateState(w.Name(), supervisor.StateStopped)
				return nil
			}

			info, ok := w.connect(ctx, log)
			if !ok {
				w.Sup.UpdateState(w.Name(), supervisor.StateStopped)
				return nil
			}

			w.demuxLoop(ctx, log, info)

			w.Conn.SetInputConnected(false, nil)
			w.VideoOut.Clear()
			w.AudioOut.Clear()
			if w.VADOut != nil {
				w.VADOut.Clear()
			}
			log.Info("input session ended, returning to connect loop")
		}
	})
}

// connect retries connectAttempt until it succeeds or ctx is cancelled.
func (w *InputWorker) connect(ctx context.Context, log *slog.Logger) (mediaio.StreamInfo, bool) {
	for {
		info, ok := w.connectAttempt(ctx, log)
		if ok {
			return info, true
		}
		if ctx.Err() != nil {
			return mediaio.StreamInfo{}, false
		}
		log.Debug("connect attempt exhausted its budget, retrying")
	}
}

// connectAttempt polls Source.Open in chunks of at most connectChunkTimeout
// for up to Config.ConnectOpenTimeout total, heartbeating between attempts
// and honoring shutdown at every chunk boundary (§4.2).
func (w *InputWorker) connectAttempt(ctx context.Context, log *slog.Logger) (mediaio.StreamInfo, bool) {
	deadline := time.Now().Add(w.Config.ConnectOpenTimeout)
	for {
		if ctx.Err() != nil {
			return mediaio.StreamInfo{}, false
		}
		w.Sup.Heartbeat(w.Name())

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return mediaio.StreamInfo{}, false
		}
		chunk := connectChunkTimeout
		if remaining < chunk {
			chunk = remaining
		}

		chunkCtx, cancel := context.WithTimeout(ctx, chunk)
		info, err := w.Source.Open(chunkCtx, w.URL)
		cancel()
		if err == nil {
			metadata := map[string]any{
				"video_codec": info.VideoCodec,
				"audio_codec": info.AudioCodec,
				"width":       info.Width,
				"height":      info.Height,
				"frame_rate":  info.FrameRate,
				"sample_rate": info.SampleRate,
				"channels":    info.Channels,
			}
			w.Conn.SetInputConnected(true, metadata)
			log.Info("input connected", "url", w.URL, "has_video", info.HasVideo, "has_audio", info.HasAudio)
			return info, true
		}
		if ctx.Err() != nil {
			return mediaio.StreamInfo{}, false
		}
		log.Debug("connect attempt failed", "error", perrors.NewConnectError("input.open", err))
	}
}

// demuxLoop reads video and audio frames concurrently until either reader
// returns an error (EOF, decode failure) or ctx is cancelled, then stops
// both readers and returns.
func (w *InputWorker) demuxLoop(ctx context.Context, log *slog.Logger, info mediaio.StreamInfo) {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	done := make(chan struct{}, 2)

	if info.HasVideo {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { done <- struct{}{} }()
			if err := w.readVideo(loopCtx, log); err != nil {
				log.Debug("video stream ended", "error", perrors.NewStreamError("input.read_video", err))
			}
		}()
	}
	if info.HasAudio {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { done <- struct{}{} }()
			if err := w.readAudio(loopCtx, log); err != nil {
				log.Debug("audio stream ended", "error", perrors.NewStreamError("input.read_audio", err))
			}
		}()
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			cancel()
			wg.Wait()
			_ = w.Source.Close()
			return
		case <-done:
			cancel()
			wg.Wait()
			_ = w.Source.Close()
			return
		case <-heartbeat.C:
			w.Sup.Heartbeat(w.Name())
		}
	}
}

func (w *InputWorker) readVideo(ctx context.Context, log *slog.Logger) error {
	var seq uint64
	var lastTime float64
	for {
		frame, err := w.Source.ReadVideo(ctx)
		if err != nil {
			return err
		}
		ts := lastTime
		if frame != nil {
			ts = frame.TimeBase.Seconds(frame.PTS)
			lastTime = ts
		}
		msg := media.VideoMessage{Frame: frame, Timestamp: ts, Sequence: seq}
		seq++
		if status := w.VideoOut.Put(msg, queueTimeout); status == queue.Timeout {
			log.Debug("dropped video frame (queue full)", "sequence", msg.Sequence)
		}
	}
}

func (w *InputWorker) readAudio(ctx context.Context, log *slog.Logger) error {
	var seq uint64
	var lastTime float64
	for {
		frame, err := w.Source.ReadAudio(ctx)
		if err != nil {
			return err
		}
		ts := lastTime
		if frame != nil {
			ts = frame.StreamTime
			lastTime = ts
		}
		msg := media.AudioMessage{Frame: frame, Timestamp: ts, Sequence: seq}
		seq++
		if status := w.AudioOut.Put(msg, queueTimeout); status == queue.Timeout {
			log.Debug("dropped audio frame (queue full)", "sequence", msg.Sequence)
		}
		if w.VADOut != nil {
			// Non-blocking: the VAD path is non-critical (§4.1 "skip enqueue
			// silently" alternate policy).
			w.VADOut.TryPut(msg)
		}
	}
}
