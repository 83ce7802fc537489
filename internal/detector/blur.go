package detector

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/privacyfilter/streamer/internal/media"
	"github.com/privacyfilter/streamer/internal/mediaio"
)

// bgrImage adapts a raw BGR24 buffer to image.Image/draw.Image so it can be
// fed through golang.org/x/image/draw's scalers without a copy into
// image.RGBA.
type bgrImage struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
}

func (m *bgrImage) ColorModel() color.Model { return color.RGBAModel }

func (m *bgrImage) Bounds() image.Rectangle { return m.Rect }

func (m *bgrImage) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(m.Rect)) {
		return color.RGBA{}
	}
	off := (y-m.Rect.Min.Y)*m.Stride + (x-m.Rect.Min.X)*3
	return color.RGBA{R: m.Pix[off+2], G: m.Pix[off+1], B: m.Pix[off], A: 255}
}

func (m *bgrImage) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(m.Rect)) {
		return
	}
	r, g, b, _ := c.RGBA()
	off := (y-m.Rect.Min.Y)*m.Stride + (x-m.Rect.Min.X)*3
	m.Pix[off] = byte(b >> 8)
	m.Pix[off+1] = byte(g >> 8)
	m.Pix[off+2] = byte(r >> 8)
}

// subImage returns a bgrImage view of the rectangle r within frame, sharing
// the underlying buffer so writes through the view mutate frame in place.
func subImage(frame *media.VideoFrame, r image.Rectangle) *bgrImage {
	return &bgrImage{Pix: frame.Buf, Stride: frame.Stride(), Rect: r}
}

// ApplyBlur blurs every box's region of frame in place by shrinking the
// region by a factor of kernelSize/10 (at least 1) and scaling it back up
// with draw.ApproxBiLinear, a cheap box-style blur whose strength grows with
// kernelSize. It does not convolve with a kernelSize×kernelSize Gaussian
// kernel, and no sigma is applied.
//
// Grounded on SPEC_FULL.md §10's wiring of golang.org/x/image/draw.
func ApplyBlur(frame *media.VideoFrame, boxes []mediaio.FaceBox, kernelSize int) int {
	blurred := 0
	for _, box := range boxes {
		r := image.Rect(box.X, box.Y, box.X+box.W, box.Y+box.H).Intersect(image.Rect(0, 0, frame.Width, frame.Height))
		if r.Empty() {
			continue
		}
		blurRegion(frame, r, kernelSize)
		blurred++
	}
	return blurred
}

func blurRegion(frame *media.VideoFrame, r image.Rectangle, kernelSize int) {
	roi := subImage(frame, r)

	factor := kernelSize / 10
	if factor < 1 {
		factor = 1
	}
	smallW := maxInt(r.Dx()/factor, 1)
	smallH := maxInt(r.Dy()/factor, 1)

	small := image.NewRGBA(image.Rect(0, 0, smallW, smallH))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), roi, roi.Bounds(), draw.Src, nil)
	draw.ApproxBiLinear.Scale(roi, roi.Bounds(), small, small.Bounds(), draw.Src, nil)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
