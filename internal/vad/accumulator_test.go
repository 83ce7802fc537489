package vad

import "testing"

func TestAccumulatorSlicesFixedChunks(t *testing.T) {
	a := NewAccumulator(4)
	a.Write([]float32{1, 2, 3, 4, 5, 6})

	chunk, ok := a.Next()
	if !ok {
		t.Fatal("expected a chunk")
	}
	if len(chunk) != 4 || chunk[0] != 1 || chunk[3] != 4 {
		t.Fatalf("unexpected chunk: %v", chunk)
	}

	_, ok = a.Next()
	if ok {
		t.Fatal("expected no chunk with only 2 samples remaining")
	}
	if a.Pending() != 2 {
		t.Fatalf("expected 2 pending samples, got %d", a.Pending())
	}
}

func TestAccumulatorAccumulatesAcrossWrites(t *testing.T) {
	a := NewAccumulator(3)
	a.Write([]float32{1, 2})
	if _, ok := a.Next(); ok {
		t.Fatal("expected no chunk yet")
	}
	a.Write([]float32{3, 4, 5})
	chunk, ok := a.Next()
	if !ok {
		t.Fatal("expected a chunk after enough samples accumulated")
	}
	if len(chunk) != 3 || chunk[2] != 3 {
		t.Fatalf("unexpected chunk: %v", chunk)
	}
	if a.Pending() != 2 {
		t.Fatalf("expected 2 pending samples, got %d", a.Pending())
	}
}
