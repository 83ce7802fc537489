package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/privacyfilter/streamer/internal/config"
	"github.com/privacyfilter/streamer/internal/consent"
	"github.com/privacyfilter/streamer/internal/detector"
	"github.com/privacyfilter/streamer/internal/logger"
	"github.com/privacyfilter/streamer/internal/media"
	"github.com/privacyfilter/streamer/internal/mediaio"
	"github.com/privacyfilter/streamer/internal/queue"
	"github.com/privacyfilter/streamer/internal/supervisor"
)

// VideoWorker pulls VideoMessages, runs face detection with cache (§4.3)
// and, when enabled, the consent recognition gate (§4.4), blurs the
// faces that aren't gated out, and emits ProcessedVideoMessages.
type VideoWorker struct {
	Cache      *detector.Cache
	Detector   mediaio.Detector // the uncached detector, used directly for consent capture
	Recognizer mediaio.Recognizer // used only when Config.RecognitionGate is set
	Consents   *consent.Manager   // used only when Config.RecognitionGate is set
	Capture    *consent.CaptureTrigger
	Config     config.Config
	Sup        *supervisor.WorkerStateManager

	In  *queue.Queue[media.VideoMessage]
	Out *queue.Queue[media.ProcessedVideoMessage]

	Log *slog.Logger
}

func (w *VideoWorker) Name() string { return "video" }

func (w *VideoWorker) Run(ctx context.Context) error {
	log := logger.WithWorker(w.Log, w.Name())
	w.Sup.UpdateState(w.Name(), supervisor.StateRunning)

	return guardRun(w.Name(), w.Sup, w.Log, func() error {
		var processed uint64
		statsTicker := time.NewTicker(30 * time.Second)
		defer statsTicker.Stop()
		for {
			if ctx.Err() != nil {
				w.Sup.UpdateState(w.Name(), supervisor.StateStopped)
				return nil
			}

			select {
			case <-statsTicker.C:
				hits, misses, rate := w.Cache.Stats()
				log.Info("detector cache stats", "hits", hits, "misses", misses, "hit_rate", rate)
			default:
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

			if w.Capture != nil {
				if speaker, ok := w.Capture.Consume(); ok {
					w.captureConsent(msg.Frame, speaker, log)
				}
			}

			out := w.process(msg, log)
			if status := w.Out.Put(out, queueTimeout); status == queue.Timeout {
				log.Debug("dropped processed video frame (queue full)", "sequence", msg.Sequence)
			}

			processed++
			if processed%100 == 0 {
				log.Info("video frames processed", "count", processed)
			}
		}
	})
}

// process runs detection-with-cache, the optional recognition gate, and
// blurs whatever rectangles survive the gate.
func (w *VideoWorker) process(msg media.VideoMessage, log *slog.Logger) media.ProcessedVideoMessage {
	frame := msg.Frame
	if frame == nil {
		return media.ProcessedVideoMessage{VideoMessage: msg}
	}

	boxes, _, err := w.Cache.Detect(frame)
	if err != nil {
		log.Debug("detector error", "error", err)
		return media.ProcessedVideoMessage{VideoMessage: msg}
	}

	toBlur := boxes
	if w.Config.RecognitionGate && w.Recognizer != nil && w.Consents != nil {
		toBlur = w.applyRecognitionGate(frame, boxes, log)
	}
	detector.ApplyBlur(frame, toBlur, w.Config.FaceBlurKernel)

	return media.ProcessedVideoMessage{VideoMessage: msg, FacesDetected: len(boxes)}
}

// applyRecognitionGate extracts a feature vector for each detection and
// drops consented faces from the blur set, per §4.4.
func (w *VideoWorker) applyRecognitionGate(frame *media.VideoFrame, boxes []mediaio.FaceBox, log *slog.Logger) []mediaio.FaceBox {
	records := w.Consents.Snapshot()
	if len(records) == 0 {
		return boxes
	}

	toBlur := make([]mediaio.FaceBox, 0, len(boxes))
	for _, box := range boxes {
		crop, err := w.Recognizer.AlignCrop(frame, box)
		if err != nil {
			toBlur = append(toBlur, box)
			continue
		}
		feature, err := w.Recognizer.Feature(crop, box)
		if err != nil {
			toBlur = append(toBlur, box)
			continue
		}
		if name, matched := w.matchConsent(feature, records); matched {
			log.Debug("face matched consent record, skipping blur", "name", name)
			continue
		}
		toBlur = append(toBlur, box)
	}
	return toBlur
}

// matchConsent implements §4.4's match rule: a match occurs when the cosine
// score is below COSINE_THRESHOLD or the L2 score is below L2_THRESHOLD
// (lower means more similar in the SFace convention these defaults assume).
func (w *VideoWorker) matchConsent(feature mediaio.FeatureVector, records []consent.Record) (string, bool) {
	for _, rec := range records {
		cosine := w.Recognizer.MatchCosine(feature, rec.Feature)
		l2 := w.Recognizer.MatchL2(feature, rec.Feature)
		if cosine < w.Config.CosineThreshold || l2 < w.Config.L2Threshold {
			return rec.Name, true
		}
	}
	return "", false
}

func (w *VideoWorker) captureConsent(frame *media.VideoFrame, speaker string, log *slog.Logger) {
	if frame == nil {
		return
	}
	path, _, err := consent.Capture(frame, speaker, w.Detector, w.Config.ConsentDir, time.Now())
	if err != nil {
		log.Warn("consent capture failed", "speaker", speaker, "error", err)
		return
	}
	log.Info("consent capture written", "path", path, "speaker", speaker)
}
