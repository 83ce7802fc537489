// Command privacy-filter runs the real-time video privacy pipeline: it
// accepts a published input stream, blurs unconsented faces, optionally
// transcribes speech via voice-activity detection, and republishes the
// processed stream while serving a small Control API over the consent
// database.
//
// The MediaIO, Detector, Recognizer, VoiceActivityDetector, and Transcriber
// collaborators are injected interfaces (internal/mediaio) with no reference
// implementation in this module — they are out-of-scope external
// dependencies (a decoder/encoder, a face detection model, a speech model).
// This binary wires internal/mediaio/fakemedia's deterministic doubles as
// placeholders so the pipeline is runnable end to end in development; a real
// deployment replaces them with adapters backed by an actual media/ML stack.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/privacyfilter/streamer/internal/config"
	"github.com/privacyfilter/streamer/internal/consent"
	"github.com/privacyfilter/streamer/internal/control"
	"github.com/privacyfilter/streamer/internal/detector"
	"github.com/privacyfilter/streamer/internal/events"
	"github.com/privacyfilter/streamer/internal/logger"
	"github.com/privacyfilter/streamer/internal/media"
	"github.com/privacyfilter/streamer/internal/mediaio/fakemedia"
	"github.com/privacyfilter/streamer/internal/queue"
	"github.com/privacyfilter/streamer/internal/state"
	"github.com/privacyfilter/streamer/internal/supervisor"
	"github.com/privacyfilter/streamer/internal/vad"
	"github.com/privacyfilter/streamer/internal/workers"
)

// queueCapacity bounds every inter-stage queue; a dedicated config knob isn't
// named in §6, so this uses a single conservative default sized for ~2s of
// video at 30fps.
const queueCapacity = 64

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if flags.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if flags.logLevel != "" {
		if err := logger.SetLevel(flags.logLevel); err != nil {
			fmt.Printf("Warning: invalid log level %q, using default\n", flags.logLevel)
		}
	}
	log := logger.Logger().With("component", "cli")

	cfg, err := loadConfig(flags)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("privacy filter exited with error", "error", err)
		os.Exit(1)
	}
}

func loadConfig(flags *cliConfig) (config.Config, error) {
	cfg := config.Default()
	cfg = config.LoadEnv(cfg)
	if flags.configFile != "" {
		var err error
		cfg, err = config.LoadFile(cfg, flags.configFile)
		if err != nil {
			return cfg, err
		}
	}
	if flags.inURL != "" {
		cfg.InURL = flags.inURL
	}
	if flags.outURL != "" {
		cfg.OutURL = flags.outURL
	}
	if flags.controlAddr != "" {
		cfg.ControlAPIAddr = flags.controlAddr
	}
	if flags.consentDir != "" {
		cfg.ConsentDir = flags.consentDir
	}
	return cfg, nil
}

// newEventManager builds the pipeline's notification hook manager from cfg,
// registering a webhook hook when EventWebhookURL is set; EventStdioFormat is
// handled by events.NewManager itself (grounded on the teacher's
// internal/rtmp/server/hooks, generalized to this domain's event types).
func newEventManager(cfg config.Config, log *slog.Logger) *events.Manager {
	hookCfg := events.DefaultHookConfig()
	hookCfg.StdioFormat = cfg.EventStdioFormat
	mgr := events.NewManager(hookCfg, log)
	if cfg.EventWebhookURL != "" {
		if err := mgr.Register(events.EventConsentAdded, events.NewWebhookHook("consent-webhook", cfg.EventWebhookURL, 0)); err != nil {
			log.Warn("failed to register consent-added webhook", "error", err)
		}
		if err := mgr.Register(events.EventConsentRevoked, events.NewWebhookHook("consent-webhook", cfg.EventWebhookURL, 0)); err != nil {
			log.Warn("failed to register consent-revoked webhook", "error", err)
		}
	}
	return mgr
}

// consumeTranscriptEvents logs every transcription event until ctx is
// cancelled, so TranscriptionWorker.Out always has a reader (§4.7) and never
// blocks waiting for one.
func consumeTranscriptEvents(ctx context.Context, evCh <-chan media.TranscriptionEvent, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evCh:
			if !ok {
				return
			}
			log.Info("transcription event", "start_time", ev.StartTime, "end_time", ev.EndTime, "text", ev.Text)
		}
	}
}

// run wires every pipeline component and blocks until ctx is cancelled or an
// unrecoverable error occurs, then shuts everything down within a 5-second
// budget (grounded on the teacher's cmd/rtmp-server/main.go graceful-
// shutdown pattern: signal.NotifyContext plus a bounded Stop).
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	sup := supervisor.NewWorkerStateManager(supervisor.DefaultHealthTimeout, log)

	evts := newEventManager(cfg, log)
	defer evts.Close()

	detectorImpl := &fakemedia.Detector{}
	recognizerImpl := &fakemedia.Recognizer{}
	cache := detector.NewCache(detectorImpl, detector.CacheConfig{
		CacheDuration: cfg.FaceCacheDuration,
		MinConfidence: cfg.FaceMinConfidence,
		PaddingRatio:  cfg.FacePaddingRatio,
	})

	consentMgr := consent.NewManager(cfg.ConsentDir, &fakemedia.Detector{}, &fakemedia.Recognizer{}, cfg.ConsentPollInterval, log, evts)
	if err := consentMgr.LoadExisting(); err != nil {
		return fmt.Errorf("load consent database: %w", err)
	}
	if err := consentMgr.Start(ctx); err != nil {
		return fmt.Errorf("start consent watcher: %w", err)
	}
	defer consentMgr.Stop()

	captureTrigger := &consent.CaptureTrigger{}

	videoIn := queue.New[media.VideoMessage](queueCapacity)
	videoOut := queue.New[media.ProcessedVideoMessage](queueCapacity)
	audioIn := queue.New[media.AudioMessage](queueCapacity)

	var vadIn *queue.Queue[media.AudioMessage]
	var segments *queue.Queue[media.TranscriptionSegment]
	transcriptEvents := make(chan media.TranscriptionEvent, queueCapacity)

	source := &fakemedia.Source{}
	sink := &fakemedia.Sink{}
	audioEncoder := &fakemedia.AudioEncoder{ModeValue: cfg.AudioMode}

	conn := state.New()

	pipeline := []workers.Worker{
		&workers.InputWorker{
			Source: source, URL: cfg.InURL, Config: cfg, Conn: conn, Sup: sup,
			VideoOut: videoIn, AudioOut: audioIn, Log: log,
		},
		&workers.VideoWorker{
			Cache: cache, Detector: detectorImpl, Recognizer: recognizerImpl, Consents: consentMgr,
			Capture: captureTrigger, Config: cfg, Sup: sup, In: videoIn, Out: videoOut, Log: log,
		},
		&workers.OutputWorker{Sink: sink, Sup: sup, In: videoOut, Log: log},
		&workers.AudioWorker{Encoder: audioEncoder, Sink: sink, Sup: sup, In: audioIn, Log: log},
	}

	if cfg.EnableTranscription {
		vadIn = queue.New[media.AudioMessage](queueCapacity)
		segments = queue.New[media.TranscriptionSegment](queueCapacity)
		pipeline[0].(*workers.InputWorker).VADOut = vadIn

		vadCfg := vad.Config{
			StartSpeechProb: cfg.VADStartSpeechProb,
			KeepSpeechProb:  cfg.VADKeepSpeechProb,
			StopSilenceMS:   cfg.VADStopSilenceMS,
			MinSegmentMS:    cfg.VADMinSegmentMS,
			SamplingRate:    cfg.VADSamplingRate,
			ChunkSize:       cfg.VADChunkSize,
		}
		stateMachine := vad.New(vadCfg, &fakemedia.VoiceActivityDetector{})
		accumulator := vad.NewAccumulator(vadCfg.ChunkSize)

		pipeline = append(pipeline,
			&workers.VADWorker{
				StateMachine: stateMachine, Accumulator: accumulator, TargetRate: vadCfg.SamplingRate,
				Sup: sup, In: vadIn, Out: segments, Log: log,
			},
			&workers.TranscriptionWorker{
				Transcriber: &fakemedia.Transcriber{}, Sup: sup, In: segments, Out: transcriptEvents, Log: log,
			},
		)
	}

	for _, w := range pipeline {
		sup.Register(w.Name())
	}

	var wg sync.WaitGroup
	for _, w := range pipeline {
		wg.Add(1)
		go func(w workers.Worker) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				log.Error("worker exited with error", "worker", w.Name(), "error", err)
			}
		}(w)
	}

	if cfg.EnableTranscription {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumeTranscriptEvents(ctx, transcriptEvents, log)
		}()
	}

	ctrl := control.New(cfg.ControlAPIAddr, cfg.ConsentDir, consentMgr, captureTrigger, sup, log)
	ctrlErrCh := make(chan error, 1)
	ctrl.Start(ctrlErrCh)

	log.Info("privacy filter started", "in_url", cfg.InURL, "out_url", cfg.OutURL, "control_addr", cfg.ControlAPIAddr, "version", version)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-ctrlErrCh:
		log.Error("control API failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctrl.Stop(shutdownCtx); err != nil {
		log.Error("control API shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("all workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout waiting for workers")
	}

	return nil
}
