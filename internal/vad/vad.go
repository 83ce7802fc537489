// Package vad implements the two-threshold voice-activity state machine of
// §4.7: SILENCE/SPEAKING transitions driven by a per-chunk speech
// probability, utterance accumulation, and emission of completed segments,
// which are returned to the caller; the VAD Worker puts them on the
// transcription queue.
//
// Grounded on the original's threshold constants and ring-buffer-by-chunks
// approach in original_source/filter/threads (the VAD/transcription thread).
package vad

import (
	"github.com/privacyfilter/streamer/internal/media"
	"github.com/privacyfilter/streamer/internal/mediaio"
)

// state is the VAD state machine's two states.
type state int

const (
	stateSilence state = iota
	stateSpeaking
)

// Config holds the state machine's thresholds, all sourced from
// internal/config.Config.
type Config struct {
	StartSpeechProb float64 // SILENCE -> SPEAKING threshold
	KeepSpeechProb  float64 // resets the silence counter while SPEAKING
	StopSilenceMS   int     // SPEAKING -> SILENCE after this much continuous silence
	MinSegmentMS    int     // utterances shorter than this are discarded
	SamplingRate    int     // target rate after resampling, e.g. 16000
	ChunkSize       int     // samples per VAD call, e.g. 512
}

// stopSilenceSamples converts the configured silence duration to a sample
// count at the configured sampling rate.
func (c Config) stopSilenceSamples() int {
	return c.StopSilenceMS * c.SamplingRate / 1000
}

func (c Config) minSegmentSamples() int {
	return c.MinSegmentMS * c.SamplingRate / 1000
}

// StateMachine runs the SILENCE/SPEAKING classification over a stream of
// fixed-size chunks and accumulates SPEAKING chunks into utterances. It is
// not goroutine-safe; it is owned by exactly one worker per §5.
type StateMachine struct {
	cfg   Config
	vad   mediaio.VoiceActivityDetector
	state state

	streamTime      float64
	speechStartTime float64
	silenceSamples  int
	speechBuf       []float32
}

// New creates a state machine starting in SILENCE.
func New(cfg Config, voiceActivity mediaio.VoiceActivityDetector) *StateMachine {
	return &StateMachine{cfg: cfg, vad: voiceActivity, state: stateSilence}
}

// ProcessChunk advances the state machine by one fixed-size chunk of target-
// rate mono PCM. It returns a completed segment whenever a SPEAKING run
// transitions back to SILENCE and the accumulated audio meets
// MinSegmentMS; ok is false otherwise (still accumulating, still silent, or
// the utterance was too short to keep).
func (m *StateMachine) ProcessChunk(chunk []float32) (media.TranscriptionSegment, bool, error) {
	p, err := m.vad.Activity(chunk, m.cfg.SamplingRate)
	if err != nil {
		return media.TranscriptionSegment{}, false, err
	}

	var emitted media.TranscriptionSegment
	var ok bool

	switch m.state {
	case stateSilence:
		if p > m.cfg.StartSpeechProb {
			m.state = stateSpeaking
			m.speechStartTime = m.streamTime
			m.silenceSamples = 0
			m.speechBuf = append(m.speechBuf[:0], chunk...)
		}
	case stateSpeaking:
		m.speechBuf = append(m.speechBuf, chunk...)
		if p > m.cfg.KeepSpeechProb {
			m.silenceSamples = 0
		} else {
			m.silenceSamples += len(chunk)
			if m.silenceSamples >= m.cfg.stopSilenceSamples() {
				emitted, ok = m.emit()
				m.state = stateSilence
				m.silenceSamples = 0
			}
		}
	}

	m.streamTime += float64(len(chunk)) / float64(m.cfg.SamplingRate)
	return emitted, ok, nil
}

// Flush emits any in-progress SPEAKING utterance as a final segment, for use
// on worker shutdown (§4.7 "flush on shutdown").
func (m *StateMachine) Flush() (media.TranscriptionSegment, bool) {
	if m.state != stateSpeaking {
		return media.TranscriptionSegment{}, false
	}
	seg, ok := m.emit()
	m.state = stateSilence
	m.silenceSamples = 0
	return seg, ok
}

// emit converts the accumulated int16-equivalent float32 buffer into a
// TranscriptionSegment if it meets the minimum length, discarding it
// otherwise. speechBuf is always reset.
func (m *StateMachine) emit() (media.TranscriptionSegment, bool) {
	buf := m.speechBuf
	m.speechBuf = nil
	if len(buf) < m.cfg.minSegmentSamples() {
		return media.TranscriptionSegment{}, false
	}
	endTime := m.speechStartTime + float64(len(buf))/float64(m.cfg.SamplingRate)
	return media.TranscriptionSegment{
		Audio:     buf,
		StartTime: m.speechStartTime,
		EndTime:   endTime,
	}, true
}

// StreamTime returns the state machine's current absolute stream time, in
// seconds.
func (m *StateMachine) StreamTime() float64 {
	return m.streamTime
}

// State reports the current state as a string, for logging.
func (m *StateMachine) State() string {
	if m.state == stateSpeaking {
		return "speaking"
	}
	return "silence"
}
