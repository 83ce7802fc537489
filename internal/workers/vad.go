package workers

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"time"

	"github.com/privacyfilter/streamer/internal/logger"
	"github.com/privacyfilter/streamer/internal/media"
	"github.com/privacyfilter/streamer/internal/perrors"
	"github.com/privacyfilter/streamer/internal/queue"
	"github.com/privacyfilter/streamer/internal/supervisor"
	"github.com/privacyfilter/streamer/internal/vad"
)

// transcriptionDrainTimeout bounds the synchronous queue drain on shutdown
// (§4.7: "join worker with a 5-second timeout").
const transcriptionDrainTimeout = 5 * time.Second

// VADWorker resamples each incoming audio frame to the state machine's
// target mono rate, slices it into fixed chunks, and runs the two-threshold
// voice-activity state machine, forwarding completed utterances onto the
// transcription queue (§4.7).
type VADWorker struct {
	StateMachine *vad.StateMachine
	Accumulator  *vad.Accumulator
	TargetRate   int
	Sup          *supervisor.WorkerStateManager

	In  *queue.Queue[media.AudioMessage]
	Out *queue.Queue[media.TranscriptionSegment]

	Log *slog.Logger
}

func (w *VADWorker) Name() string { return "vad" }

func (w *VADWorker) Run(ctx context.Context) error {
	log := logger.WithWorker(w.Log, w.Name())
	w.Sup.UpdateState(w.Name(), supervisor.StateRunning)

	return guardRun(w.Name(), w.Sup, w.Log, func() error {
		for {
			if ctx.Err() != nil {
				w.flushFinal(log)
				w.Sup.UpdateState(w.Name(), supervisor.StateStopped)
				return nil
			}

			msg, status := w.In.Get(queueTimeout)
			w.Sup.Heartbeat(w.Name())
			switch status {
			case queue.Closed:
				w.flushFinal(log)
				w.Sup.UpdateState(w.Name(), supervisor.StateStopped)
				return nil
			case queue.Timeout:
				continue
			}

			if msg.Frame == nil {
				continue
			}
			w.Accumulator.Write(resampleMono(msg.Frame, w.TargetRate))
			for {
				chunk, ok := w.Accumulator.Next()
				if !ok {
					break
				}
				seg, emitted, err := w.StateMachine.ProcessChunk(chunk)
				if err != nil {
					log.Debug("voice activity detector error", "error", perrors.NewStreamError("vad.process_chunk", err))
					continue
				}
				if emitted {
					w.enqueueSegment(seg, log)
				}
			}
		}
	})
}

// flushFinal emits any in-progress utterance as a final segment on shutdown
// (§4.7 "flush on shutdown").
func (w *VADWorker) flushFinal(log *slog.Logger) {
	seg, ok := w.StateMachine.Flush()
	if ok {
		w.enqueueSegment(seg, log)
	}
}

func (w *VADWorker) enqueueSegment(seg media.TranscriptionSegment, log *slog.Logger) {
	if status := w.Out.Put(seg, queueTimeout); status == queue.Timeout {
		log.Warn("dropped utterance (transcription queue full)", "start_time", seg.StartTime)
	}
}

// resampleMono downmixes an AudioFrame to mono float32 and linearly
// resamples it to targetRate. This is the "straightforward resampling"
// the spec permits (§1 Non-goals exclude only resampling *quality* beyond
// this); it is not a production-grade polyphase resampler.
func resampleMono(frame *media.AudioFrame, targetRate int) []float32 {
	mono := downmixToFloat32(frame)
	if frame.SampleRate == targetRate || len(mono) == 0 {
		return mono
	}
	ratio := float64(frame.SampleRate) / float64(targetRate)
	outLen := int(float64(len(mono)) / ratio)
	out := make([]float32, outLen)
	for i := range out {
		srcPos := float64(i) * ratio
		lo := int(srcPos)
		hi := lo + 1
		frac := float32(srcPos - float64(lo))
		if hi >= len(mono) {
			out[i] = mono[lo]
			continue
		}
		out[i] = mono[lo] + (mono[hi]-mono[lo])*frac
	}
	return out
}

// downmixToFloat32 converts an interleaved S16 or F32 buffer to mono
// float32 samples in [-1, 1] by averaging channels.
func downmixToFloat32(frame *media.AudioFrame) []float32 {
	channels := frame.Channels
	if channels < 1 {
		channels = 1
	}
	switch frame.Format {
	case media.SampleFormatF32:
		bytesPerSample := 4 * channels
		n := len(frame.Buf) / bytesPerSample
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			var sum float32
			for c := 0; c < channels; c++ {
				off := i*bytesPerSample + c*4
				bits := binary.LittleEndian.Uint32(frame.Buf[off : off+4])
				sum += math.Float32frombits(bits)
			}
			out[i] = sum / float32(channels)
		}
		return out
	default: // SampleFormatS16
		bytesPerSample := 2 * channels
		n := len(frame.Buf) / bytesPerSample
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			var sum float32
			for c := 0; c < channels; c++ {
				off := i*bytesPerSample + c*2
				sample := int16(binary.LittleEndian.Uint16(frame.Buf[off : off+2]))
				sum += float32(sample) / 32768.0
			}
			out[i] = sum / float32(channels)
		}
		return out
	}
}
