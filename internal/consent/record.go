package consent

import (
	"image"
	"image/color"
	"time"

	"github.com/privacyfilter/streamer/internal/media"
	"github.com/privacyfilter/streamer/internal/mediaio"
)

// Record is one entry in the recognition database: one per `.jpg` file
// currently present in the consent directory for which feature extraction
// succeeded. A Record's lifetime spans its backing file's presence (§3).
type Record struct {
	Path       string
	Name       string // normalized lowercase name
	Feature    mediaio.FeatureVector
	CapturedAt time.Time
}

func largestBox(boxes []mediaio.FaceBox) mediaio.FaceBox {
	best := boxes[0]
	for _, b := range boxes[1:] {
		if b.W*b.H > best.W*best.H {
			best = b
		}
	}
	return best
}

func padBox(box mediaio.FaceBox, frameW, frameH int, ratio float64) mediaio.FaceBox {
	pad := int(float64(minInt(box.W, box.H)) * ratio)
	x0 := clampInt(box.X-pad, 0, frameW-1)
	y0 := clampInt(box.Y-pad, 0, frameH-1)
	x1 := clampInt(box.X+box.W+pad, 0, frameW-1)
	y1 := clampInt(box.Y+box.H+pad, 0, frameH-1)
	return mediaio.FaceBox{X: x0, Y: y0, W: x1 - x0, H: y1 - y0, Score: box.Score}
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

// cropFrame returns a new VideoFrame holding a copy of box's pixels from
// frame.
func cropFrame(frame *media.VideoFrame, box mediaio.FaceBox) *media.VideoFrame {
	out := &media.VideoFrame{
		Buf:    make([]byte, box.W*box.H*3),
		Width:  box.W,
		Height: box.H,
		Format: frame.Format,
	}
	srcStride := frame.Stride()
	dstStride := out.Stride()
	for row := 0; row < box.H; row++ {
		srcOff := (box.Y+row)*srcStride + box.X*3
		dstOff := row * dstStride
		copy(out.Buf[dstOff:dstOff+dstStride], frame.Buf[srcOff:srcOff+dstStride])
	}
	return out
}

// frameFromImage converts a decoded image.Image (as returned by
// image/jpeg.Decode) into a BGR24 media.VideoFrame for the Detector and
// Recognizer interfaces.
func frameFromImage(img image.Image) *media.VideoFrame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	buf := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			off := y*w*3 + x*3
			buf[off] = byte(bl >> 8)
			buf[off+1] = byte(g >> 8)
			buf[off+2] = byte(r >> 8)
		}
	}
	return &media.VideoFrame{Buf: buf, Width: w, Height: h}
}

// toRGBA converts a BGR24 VideoFrame into an image.RGBA for image/jpeg
// encoding.
func toRGBA(frame *media.VideoFrame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	stride := frame.Stride()
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			off := y*stride + x*3
			img.SetRGBA(x, y, color.RGBA{R: frame.Buf[off+2], G: frame.Buf[off+1], B: frame.Buf[off], A: 255})
		}
	}
	return img
}
