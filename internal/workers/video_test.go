package workers

import (
	"context"
	"testing"
	"time"

	"github.com/privacyfilter/streamer/internal/config"
	"github.com/privacyfilter/streamer/internal/consent"
	"github.com/privacyfilter/streamer/internal/detector"
	"github.com/privacyfilter/streamer/internal/media"
	"github.com/privacyfilter/streamer/internal/mediaio"
	"github.com/privacyfilter/streamer/internal/mediaio/fakemedia"
	"github.com/privacyfilter/streamer/internal/queue"
	"github.com/privacyfilter/streamer/internal/supervisor"
	"github.com/stretchr/testify/require"
)

func newTestFrame(w, h int) *media.VideoFrame {
	return &media.VideoFrame{Buf: make([]byte, w*h*3), Width: w, Height: h}
}

func TestVideoWorkerBlursDetectedFaces(t *testing.T) {
	det := &fakemedia.Detector{Boxes: []mediaio.FaceBox{{X: 2, Y: 2, W: 4, H: 4, Score: 0.99}}}
	cache := detector.NewCache(det, detector.CacheConfig{CacheDuration: time.Minute, MinConfidence: 0.5, PaddingRatio: 0})

	in := queue.New[media.VideoMessage](4)
	out := queue.New[media.ProcessedVideoMessage](4)
	sup := supervisor.NewWorkerStateManager(time.Second, discardLogger())
	cfg := config.Default()

	w := &VideoWorker{Cache: cache, Detector: det, Config: cfg, Sup: sup, In: in, Out: out, Log: discardLogger()}
	sup.Register(w.Name())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	frame := newTestFrame(10, 10)
	in.Put(media.VideoMessage{Frame: frame, Sequence: 1}, time.Second)

	var processed media.ProcessedVideoMessage
	require.Eventually(t, func() bool {
		msg, status := out.Get(10 * time.Millisecond)
		if status == queue.OK {
			processed = msg
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	require.Equal(t, 1, processed.FacesDetected)
	require.Equal(t, 1, det.CallCount)
}

func TestVideoWorkerRecognitionGateWithoutConsentsStillDetectsFace(t *testing.T) {
	box := mediaio.FaceBox{X: 0, Y: 0, W: 4, H: 4, Score: 0.9}
	det := &fakemedia.Detector{Boxes: []mediaio.FaceBox{box}}
	cache := detector.NewCache(det, detector.CacheConfig{CacheDuration: time.Minute, MinConfidence: 0.5, PaddingRatio: 0})

	zero := 0.0
	rec := &fakemedia.Recognizer{CosineOverride: &zero}

	mgr := consent.NewManager(t.TempDir(), det, rec, time.Hour, nil, nil)

	in := queue.New[media.VideoMessage](4)
	out := queue.New[media.ProcessedVideoMessage](4)
	sup := supervisor.NewWorkerStateManager(time.Second, discardLogger())
	cfg := config.Default()
	cfg.RecognitionGate = true

	w := &VideoWorker{
		Cache: cache, Detector: det, Recognizer: rec, Consents: mgr,
		Config: cfg, Sup: sup, In: in, Out: out, Log: discardLogger(),
	}
	sup.Register(w.Name())

	// No consent record is loaded (writing and reconciling a capture would
	// require a real JPEG), so this exercises the gate-enabled path with an
	// empty consent database and checks the face is still detected.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	frame := newTestFrame(8, 8)
	in.Put(media.VideoMessage{Frame: frame, Sequence: 1}, time.Second)

	var processed media.ProcessedVideoMessage
	require.Eventually(t, func() bool {
		msg, status := out.Get(10 * time.Millisecond)
		if status == queue.OK {
			processed = msg
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	require.Equal(t, 1, processed.FacesDetected, "face is still detected even though no consent records exist yet")
}

func TestVideoWorkerCaptureTriggerInvokesConsentCapture(t *testing.T) {
	det := &fakemedia.Detector{Boxes: []mediaio.FaceBox{{X: 0, Y: 0, W: 4, H: 4, Score: 0.9}}}
	cache := detector.NewCache(det, detector.CacheConfig{CacheDuration: time.Minute, MinConfidence: 0.5, PaddingRatio: 0})

	in := queue.New[media.VideoMessage](4)
	out := queue.New[media.ProcessedVideoMessage](4)
	sup := supervisor.NewWorkerStateManager(time.Second, discardLogger())
	cfg := config.Default()
	cfg.ConsentDir = t.TempDir()

	trigger := &consent.CaptureTrigger{}
	w := &VideoWorker{Cache: cache, Detector: det, Capture: trigger, Config: cfg, Sup: sup, In: in, Out: out, Log: discardLogger()}
	sup.Register(w.Name())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	trigger.Request("alice")
	frame := newTestFrame(8, 8)
	in.Put(media.VideoMessage{Frame: frame, Sequence: 1}, time.Second)

	require.Eventually(t, func() bool {
		_, ok := trigger.Consume()
		return !ok // already consumed by the worker
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
