package vad

import (
	"testing"

	"github.com/privacyfilter/streamer/internal/mediaio/fakemedia"
)

func testConfig() Config {
	return Config{
		StartSpeechProb: 0.1,
		KeepSpeechProb:  0.5,
		StopSilenceMS:   500,
		MinSegmentMS:    300,
		SamplingRate:    16000,
		ChunkSize:       512,
	}
}

func chunkOfSize(n int) []float32 {
	return make([]float32, n)
}

func TestStateMachineStaysIdleBelowStartThreshold(t *testing.T) {
	fake := &fakemedia.VoiceActivityDetector{Probs: []float64{0.05, 0.05, 0.05}}
	sm := New(testConfig(), fake)

	for i := 0; i < 3; i++ {
		_, ok, err := sm.ProcessChunk(chunkOfSize(512))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatal("expected no emission while below start threshold")
		}
	}
	if sm.State() != "silence" {
		t.Fatalf("expected state silence, got %s", sm.State())
	}
}

func TestStateMachineTransitionsToSpeaking(t *testing.T) {
	fake := &fakemedia.VoiceActivityDetector{Probs: []float64{0.2}}
	sm := New(testConfig(), fake)
	sm.ProcessChunk(chunkOfSize(512))
	if sm.State() != "speaking" {
		t.Fatalf("expected state speaking, got %s", sm.State())
	}
}

func TestStateMachineEmitsAfterSilenceTimeout(t *testing.T) {
	cfg := testConfig()
	// 500ms of silence at 16kHz with 512-sample chunks: 500*16 = 8000 samples
	// needed, 8000/512 ≈ 16 chunks.
	probs := []float64{0.9} // start speaking, one loud chunk (~32ms)
	for i := 0; i < 20; i++ {
		probs = append(probs, 0.0) // silence chunks
	}
	fake := &fakemedia.VoiceActivityDetector{Probs: probs}
	sm := New(cfg, fake)

	var gotSegment bool
	for i := 0; i < len(probs); i++ {
		seg, ok, err := sm.ProcessChunk(chunkOfSize(512))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			gotSegment = true
			if seg.EndTime <= seg.StartTime {
				t.Fatalf("expected EndTime > StartTime, got %+v", seg)
			}
			break
		}
	}
	if !gotSegment {
		t.Fatal("expected an utterance to be emitted after sustained silence")
	}
	if sm.State() != "silence" {
		t.Fatalf("expected state to return to silence after emission, got %s", sm.State())
	}
}

func TestStateMachineDiscardsShortUtterance(t *testing.T) {
	cfg := testConfig()
	cfg.MinSegmentMS = 10000 // require an unreasonably long utterance
	probs := []float64{0.9}
	for i := 0; i < 20; i++ {
		probs = append(probs, 0.0)
	}
	fake := &fakemedia.VoiceActivityDetector{Probs: probs}
	sm := New(cfg, fake)

	for i := 0; i < len(probs); i++ {
		_, ok, _ := sm.ProcessChunk(chunkOfSize(512))
		if ok {
			t.Fatal("expected short utterance to be discarded, not emitted")
		}
	}
}

func TestKeepSpeechProbResetsSilenceCounter(t *testing.T) {
	cfg := testConfig()
	// Start speaking, then alternate near-silence with a loud chunk that
	// resets the counter, then go fully silent long enough to emit.
	probs := []float64{0.9, 0.0, 0.0, 0.9}
	for i := 0; i < 20; i++ {
		probs = append(probs, 0.0)
	}
	fake := &fakemedia.VoiceActivityDetector{Probs: probs}
	sm := New(cfg, fake)

	emittedAt := -1
	for i := 0; i < len(probs); i++ {
		_, ok, _ := sm.ProcessChunk(chunkOfSize(512))
		if ok {
			emittedAt = i
			break
		}
	}
	if emittedAt < 19 {
		t.Fatalf("expected the reset at chunk 3 to delay emission to around chunk 19, emitted at %d", emittedAt)
	}
}

func TestFlushEmitsInProgressUtterance(t *testing.T) {
	// 10 chunks of 512 samples = 5120 samples, above MinSegmentMS 300
	// (4800 samples at 16kHz), so the flushed utterance is long enough to keep.
	probs := make([]float64, 10)
	for i := range probs {
		probs[i] = 0.9
	}
	fake := &fakemedia.VoiceActivityDetector{Probs: probs}
	sm := New(testConfig(), fake)
	for i := 0; i < len(probs); i++ {
		sm.ProcessChunk(chunkOfSize(512))
	}
	seg, ok := sm.Flush()
	if !ok {
		t.Fatal("expected Flush to emit the in-progress utterance")
	}
	if len(seg.Audio) != 512*10 {
		t.Fatalf("expected 5120 accumulated samples, got %d", len(seg.Audio))
	}
}

func TestFlushNoOpWhenSilent(t *testing.T) {
	fake := &fakemedia.VoiceActivityDetector{Probs: []float64{0.0}}
	sm := New(testConfig(), fake)
	sm.ProcessChunk(chunkOfSize(512))
	_, ok := sm.Flush()
	if ok {
		t.Fatal("expected no emission from Flush while silent")
	}
}

func TestStreamTimeAdvancesRegardlessOfState(t *testing.T) {
	fake := &fakemedia.VoiceActivityDetector{Probs: []float64{0.0, 0.0}}
	sm := New(testConfig(), fake)
	sm.ProcessChunk(chunkOfSize(512))
	sm.ProcessChunk(chunkOfSize(512))
	want := 2 * 512.0 / 16000.0
	if sm.StreamTime() != want {
		t.Fatalf("expected stream time %v, got %v", want, sm.StreamTime())
	}
}
