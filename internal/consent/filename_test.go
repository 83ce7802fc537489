package consent

import (
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 5, 14, 30, 0, 0, time.Local)
	filename := EncodeFilename("Alice Smith", ts)
	if filename != "20260305143000_alice_smith.jpg" {
		t.Fatalf("unexpected filename: %s", filename)
	}

	name, capturedAt, err := ParseFilename(filename)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "alice_smith" {
		t.Fatalf("expected name 'alice_smith', got %s", name)
	}
	if !capturedAt.Equal(ts) {
		t.Fatalf("expected %v, got %v", ts, capturedAt)
	}
}

func TestEncodeEmptyNameBecomesUnknown(t *testing.T) {
	filename := EncodeFilename("", time.Now())
	name, _, err := ParseFilename(filename)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "unknown" {
		t.Fatalf("expected 'unknown', got %s", name)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Bob Jones":        "bob_jones",
		"  leading space":  "leading_space",
		"trailing  ":       "trailing",
		"Weird!@#Chars":    "weirdchars",
		"already_safe-123": "already_safe-123",
		"":                 "unknown",
		"___":              "unknown",
	}
	for input, want := range cases {
		if got := SanitizeName(input); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseFilenameRejectsMalformed(t *testing.T) {
	cases := []string{
		"not_a_valid_name.jpg",
		"2026_alice.jpg",
		"20260305143000.jpg",
	}
	for _, c := range cases {
		if _, _, err := ParseFilename(c); err == nil {
			t.Errorf("expected error parsing %q", c)
		}
	}
}
