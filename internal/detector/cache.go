// Package detector implements the temporal face-detection cache (§4.3) and
// the Gaussian-blur ROI redaction applied to detected faces.
//
// Grounded on the teacher's internal/bufpool size-class reuse philosophy
// (avoid repeating expensive work when a cheap cached result still applies)
// generalized from buffer reuse to detection-result reuse across frames
// within a wall-clock window.
package detector

import (
	"math"
	"sync"
	"time"

	"github.com/privacyfilter/streamer/internal/media"
	"github.com/privacyfilter/streamer/internal/mediaio"
)

// CacheConfig configures the temporal cache's thresholds, all sourced from
// internal/config.Config.
type CacheConfig struct {
	CacheDuration time.Duration
	MinConfidence float64
	PaddingRatio  float64
}

// Cache wraps a mediaio.Detector with a wall-clock-age-based cache: a
// detection is reused for CacheDuration before the detector is consulted
// again, and is invalidated immediately if the frame's dimensions change.
//
// Cache owns its Detector exclusively; the Video Worker must not share one
// Cache (or its underlying Detector) across goroutines beyond the single
// caller of Detect.
type Cache struct {
	mu        sync.Mutex
	detector  mediaio.Detector
	cfg       CacheConfig
	boxes     []mediaio.FaceBox
	lastW     int
	lastH     int
	timestamp time.Time
	hits      uint64
	misses    uint64
}

// NewCache creates a Cache around detector with the given configuration.
func NewCache(d mediaio.Detector, cfg CacheConfig) *Cache {
	return &Cache{detector: d, cfg: cfg}
}

// Detect returns the padded, confidence-filtered face boxes for frame,
// reusing the cached result when it is still fresh and the frame size has
// not changed. The boolean return reports whether this was a cache hit.
func (c *Cache) Detect(frame *media.VideoFrame) ([]mediaio.FaceBox, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	sizeChanged := frame.Width != c.lastW || frame.Height != c.lastH
	fresh := !c.timestamp.IsZero() && now.Sub(c.timestamp) < c.cfg.CacheDuration

	if !sizeChanged && fresh {
		c.hits++
		return c.boxes, true, nil
	}

	raw, err := c.detector.Detect(frame)
	if err != nil {
		c.misses++
		return nil, false, err
	}

	boxes := filterAndPad(raw, frame.Width, frame.Height, c.cfg.MinConfidence, c.cfg.PaddingRatio)
	c.boxes = boxes
	c.lastW, c.lastH = frame.Width, frame.Height
	c.timestamp = now
	c.misses++
	return boxes, false, nil
}

// Stats returns cumulative hit/miss counts and the hit rate, for the Video
// Worker's 30-second periodic log.
func (c *Cache) Stats() (hits, misses uint64, hitRate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return c.hits, c.misses, 0
	}
	return c.hits, c.misses, float64(c.hits) / float64(total)
}

func filterAndPad(boxes []mediaio.FaceBox, frameW, frameH int, minConfidence, paddingRatio float64) []mediaio.FaceBox {
	out := make([]mediaio.FaceBox, 0, len(boxes))
	for _, b := range boxes {
		if b.Score < minConfidence {
			continue
		}
		pad := int(math.Floor(float64(minInt(b.W, b.H)) * paddingRatio))
		x0 := clampInt(b.X-pad, 0, frameW-1)
		y0 := clampInt(b.Y-pad, 0, frameH-1)
		x1 := clampInt(b.X+b.W+pad, 0, frameW-1)
		y1 := clampInt(b.Y+b.H+pad, 0, frameH-1)
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		out = append(out, mediaio.FaceBox{X: x0, Y: y0, W: x1 - x0, H: y1 - y0, Score: b.Score})
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
