// Package mediaio defines the interfaces that isolate the core pipeline from
// its three out-of-scope collaborators: the streaming-container demuxer/muxer,
// the face-detection/recognition models, and the speech-to-text model. The
// core never imports a concrete decoder, neural-network runtime, or codec
// library; it depends only on these interfaces (the Design Notes' "duck-typed
// Any re-architected as two explicit interfaces" guidance).
//
// Grounded on the teacher's layering: internal/rtmp/conn and internal/rtmp/media
// depend on the chunk/amf packages through narrow interfaces rather than
// reaching into wire-format details directly.
package mediaio

import (
	"context"

	"github.com/privacyfilter/streamer/internal/media"
)

// StreamInfo describes the negotiated properties of an opened input or
// output stream.
type StreamInfo struct {
	HasVideo   bool
	HasAudio   bool
	VideoCodec string
	AudioCodec string
	Width      int
	Height     int
	FrameRate  float64
	SampleRate int
	Channels   int
}

// Source is the abstract inbound demuxer/decoder the Input Worker drives. A
// concrete implementation negotiates the container/codec and decodes packets
// into media.VideoFrame / media.AudioFrame; none of that machinery lives in
// this module.
type Source interface {
	// Open connects to the input URL and blocks until the stream is ready or
	// ctx is done. It returns the negotiated stream properties.
	Open(ctx context.Context, url string) (StreamInfo, error)
	// ReadVideo blocks for up to one decode cycle and returns the next
	// decoded video frame, or io.EOF when the stream ends.
	ReadVideo(ctx context.Context) (*media.VideoFrame, error)
	// ReadAudio blocks for up to one decode cycle and returns the next
	// decoded audio frame, or io.EOF when the stream ends.
	ReadAudio(ctx context.Context) (*media.AudioFrame, error)
	// Close releases any resources held by the source.
	Close() error
}

// Sink is the abstract outbound muxer the Output Worker drives.
type Sink interface {
	// Open connects to the output URL with the given stream properties.
	Open(ctx context.Context, url string, info StreamInfo) error
	// WriteVideo muxes a processed video message.
	WriteVideo(ctx context.Context, msg media.ProcessedVideoMessage) error
	// WriteAudio muxes an audio message.
	WriteAudio(ctx context.Context, msg media.AudioMessage) error
	// Close flushes and releases any resources held by the sink.
	Close() error
}

// AudioEncoder performs the passthrough-or-transcode decision of §4.6: either
// an identity copy of the input codec, or a decode/resample/encode path to
// Opus. Selected by configuration, not auto-detected.
type AudioEncoder interface {
	// Encode transforms a decoded input audio frame into the bytes the Sink
	// should mux for the output stream.
	Encode(frame *media.AudioFrame) ([]byte, error)
	// Mode reports "passthrough" or "opus" for logging/metrics.
	Mode() string
}

// FaceBox is one detection result: a bounding rectangle plus a confidence
// score, in the coordinate space of the frame passed to Detect.
type FaceBox struct {
	X, Y, W, H int
	Score      float64
}

// Detector is the abstract face-detection model consumed by the Video
// Worker's temporal cache (§4.3). Implementations are not required to be
// goroutine-safe; a Detector is owned by exactly one worker.
type Detector interface {
	// Detect returns all face boxes found in a BGR24 frame of the given
	// width and height, already filtered to the detector's own internal
	// score/NMS thresholds.
	Detect(frame *media.VideoFrame) ([]FaceBox, error)
}

// FeatureVector is a fixed-length embedding produced by the Recognizer for
// one face crop.
type FeatureVector []float32

// Recognizer is the abstract face-recognition model consumed by the consent
// gate (§4.4) and the Consent Manager. Implementations are not required to
// be goroutine-safe; a Recognizer is owned by exactly one worker (or, for
// the Consent Manager's use, serialized behind its own lock).
type Recognizer interface {
	// Feature extracts a feature vector from a cropped face image (already
	// aligned by the caller per AlignCrop if needed).
	Feature(crop *media.VideoFrame, box FaceBox) (FeatureVector, error)
	// AlignCrop returns a normalized crop of the frame for the given box,
	// suitable for passing to Feature.
	AlignCrop(frame *media.VideoFrame, box FaceBox) (*media.VideoFrame, error)
	// MatchCosine returns the cosine similarity score between two feature
	// vectors, in the SFace convention where lower is more similar.
	MatchCosine(a, b FeatureVector) float64
	// MatchL2 returns the L2 distance between two feature vectors.
	MatchL2(a, b FeatureVector) float64
}

// Transcriber is the abstract speech-to-text model consumed by the
// transcription worker (§4.7).
type Transcriber interface {
	// Transcribe runs speech recognition on a segment already resampled to
	// the target rate/layout and returns zero or more timestamped events,
	// offset relative to the segment's own start (the caller offsets them
	// into absolute stream time).
	Transcribe(ctx context.Context, segment media.TranscriptionSegment) ([]media.TranscriptionEvent, error)
}

// VoiceActivityDetector is the abstract voice-activity probability model
// driving the VAD state machine (§4.7). Like Detector, Recognizer, and
// Transcriber it is an external neural model the core never implements;
// only its probability output is consumed.
type VoiceActivityDetector interface {
	// Activity returns the probability that chunk (mono PCM samples at
	// samplingRate) contains speech.
	Activity(chunk []float32, samplingRate int) (float64, error)
}
