// Package config loads the privacy filter's runtime configuration from
// environment variables, an optional YAML override file, and CLI flags
// (CLI flags take precedence, then the override file, then the environment,
// then these defaults), per §6 and §9 of the design spec.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in §6 of the design spec.
type Config struct {
	InURL  string `yaml:"in_url"`
	OutURL string `yaml:"out_url"`
	FPS    int    `yaml:"fps"`

	FaceBlurKernel     int     `yaml:"face_blur_kernel"`
	FaceScoreThreshold float64 `yaml:"face_score_threshold"`
	FaceNMSThreshold   float64 `yaml:"face_nms_threshold"`
	FaceTopK           int     `yaml:"face_top_k"`
	FaceMinConfidence  float64 `yaml:"face_min_confidence"`
	FacePaddingRatio   float64 `yaml:"face_padding_ratio"`
	FaceCacheDuration  time.Duration `yaml:"face_cache_duration"`

	CosineThreshold float64 `yaml:"cosine_threshold"`
	L2Threshold     float64 `yaml:"l2_threshold"`
	RecognitionGate bool    `yaml:"recognition_gate"`

	WhisperModel        string `yaml:"whisper_model"`
	CPUThreads          int    `yaml:"cpu_threads"`
	EnableTranscription bool   `yaml:"enable_transcription"`

	VADStartSpeechProb float64 `yaml:"vad_start_speech_prob"`
	VADKeepSpeechProb  float64 `yaml:"vad_keep_speech_prob"`
	VADStopSilenceMS   int     `yaml:"vad_stop_silence_ms"`
	VADMinSegmentMS    int     `yaml:"vad_min_segment_ms"`
	VADSamplingRate    int     `yaml:"vad_sampling_rate"`
	VADChunkSize       int     `yaml:"vad_chunk_size"`

	ConnectOpenTimeout time.Duration `yaml:"connect_open_timeout"`
	ConnectReadTimeout time.Duration `yaml:"connect_read_timeout"`
	RTSPTransport      string        `yaml:"rtsp_transport"`

	ConsentDir          string `yaml:"consent_dir"`
	ConsentPollInterval time.Duration `yaml:"consent_poll_interval"`

	ControlAPIAddr string `yaml:"control_api_addr"`

	AudioMode string `yaml:"audio_mode"` // "passthrough" or "opus"

	EventStdioFormat string `yaml:"event_stdio_format"` // "json", "env", or "" to disable
	EventWebhookURL  string `yaml:"event_webhook_url"`  // "" disables the webhook hook
}

// Default returns the configuration with every default named in §6.
func Default() Config {
	return Config{
		InURL:  "rtmp://0.0.0.0:1935/live/stream",
		OutURL: "rtsp://127.0.0.1:8554/blurred",
		FPS:    30,

		FaceBlurKernel:     51,
		FaceScoreThreshold: 0.7,
		FaceNMSThreshold:   0.3,
		FaceTopK:           5000,
		FaceMinConfidence:  0.5,
		FacePaddingRatio:   0.1,
		FaceCacheDuration:  150 * time.Millisecond,

		CosineThreshold: 0.363,
		L2Threshold:     1.128,
		RecognitionGate: false,

		WhisperModel:        "small.en",
		CPUThreads:          0,
		EnableTranscription: false,

		VADStartSpeechProb: 0.1,
		VADKeepSpeechProb:  0.5,
		VADStopSilenceMS:   500,
		VADMinSegmentMS:    300,
		VADSamplingRate:    16000,
		VADChunkSize:       512,

		ConnectOpenTimeout: 5 * time.Second,
		ConnectReadTimeout: 1 * time.Second,
		RTSPTransport:      "tcp",

		ConsentDir:          "./consent_captures",
		ConsentPollInterval: 250 * time.Millisecond,

		ControlAPIAddr: ":8080",

		AudioMode: "passthrough",

		EventStdioFormat: "",
		EventWebhookURL:  "",
	}
}

// LoadFile merges YAML overrides from path on top of cfg.
func LoadFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv merges environment variable overrides on top of cfg, using the
// exact variable names enumerated in §6.
func LoadEnv(cfg Config) Config {
	str(&cfg.InURL, "IN_URL")
	str(&cfg.OutURL, "OUT_URL")
	intv(&cfg.FPS, "FPS")

	floatv(&cfg.FaceScoreThreshold, "FACE_SCORE_THRESHOLD")
	floatv(&cfg.FaceNMSThreshold, "FACE_NMS_THRESHOLD")
	intv(&cfg.FaceTopK, "FACE_TOP_K")
	floatv(&cfg.FaceMinConfidence, "FACE_MIN_CONFIDENCE")
	floatv(&cfg.FacePaddingRatio, "FACE_PADDING_RATIO")
	durationMS(&cfg.FaceCacheDuration, "FACE_CACHE_DURATION_MS")

	floatv(&cfg.CosineThreshold, "COSINE_THRESHOLD")
	floatv(&cfg.L2Threshold, "L2_THRESHOLD")

	str(&cfg.WhisperModel, "WHISPER_MODEL")
	intv(&cfg.CPUThreads, "CPU_THREADS")
	boolv(&cfg.EnableTranscription, "ENABLE_TRANSCRIPTION")

	str(&cfg.RTSPTransport, "RTSP_TRANSPORT")
	str(&cfg.ConsentDir, "CONSENT_DIR")

	str(&cfg.EventStdioFormat, "EVENT_STDIO_FORMAT")
	str(&cfg.EventWebhookURL, "EVENT_WEBHOOK_URL")

	return cfg
}

func str(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func intv(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func floatv(dst *float64, env string) {
	if v := os.Getenv(env); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func boolv(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func durationMS(dst *time.Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}
