package consent

import (
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/privacyfilter/streamer/internal/media"
	"github.com/privacyfilter/streamer/internal/mediaio"
)

// captureJPEGQuality matches the spec's "JPEG quality 95" for consent
// captures.
const captureJPEGQuality = 95

// Capture implements §4.8: detect the largest face in frame, pad and crop to
// it, and write the crop to dir as a new consent capture file. speakerName
// may be empty, in which case the file is named "unknown". Returns the
// written path and the (padded) face box, so the caller can immediately
// feed the same crop into the Recognizer without waiting for the directory
// watcher to observe the new file.
func Capture(frame *media.VideoFrame, speakerName string, detector mediaio.Detector, dir string, now time.Time) (string, mediaio.FaceBox, error) {
	boxes, err := detector.Detect(frame)
	if err != nil {
		return "", mediaio.FaceBox{}, fmt.Errorf("consent capture: detect: %w", err)
	}
	if len(boxes) == 0 {
		return "", mediaio.FaceBox{}, fmt.Errorf("consent capture: no face detected")
	}

	box := padBox(largestBox(boxes), frame.Width, frame.Height, 0.1)
	crop := cropFrame(frame, box)

	filename := EncodeFilename(speakerName, now)
	path := filepath.Join(dir, filename)
	if err := writeJPEG(path, crop); err != nil {
		return "", mediaio.FaceBox{}, fmt.Errorf("consent capture: write: %w", err)
	}
	return path, box, nil
}

func writeJPEG(path string, frame *media.VideoFrame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, toRGBA(frame), &jpeg.Options{Quality: captureJPEGQuality})
}
