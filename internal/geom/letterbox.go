package geom

// Letterbox describes how a source image of size (srcW, srcH) was resized
// and padded into a destination of size (dstW, dstH) preserving aspect
// ratio, so detector output coordinates can be mapped back.
type Letterbox struct {
	Scale             float64
	PadX, PadY        float64
	SrcW, SrcH        float64
	DstW, DstH        float64
}

// NewLetterbox computes the scale/padding for resizing src into dst while
// preserving aspect ratio and centering the result (spec §4.3 face detect
// preprocessing: "letterbox-resize to fd_input_w x fd_input_h").
func NewLetterbox(srcW, srcH, dstW, dstH float64) Letterbox {
	scale := dstW / srcW
	if s := dstH / srcH; s < scale {
		scale = s
	}
	scaledW := srcW * scale
	scaledH := srcH * scale
	return Letterbox{
		Scale: scale,
		PadX:  (dstW - scaledW) / 2,
		PadY:  (dstH - scaledH) / 2,
		SrcW:  srcW, SrcH: srcH,
		DstW: dstW, DstH: dstH,
	}
}

// ToDst maps a rectangle from source-image coordinates to letterboxed
// destination coordinates.
func (l Letterbox) ToDst(r Rect) Rect {
	return Rect{
		Left:   r.Left*l.Scale + l.PadX,
		Top:    r.Top*l.Scale + l.PadY,
		Width:  r.Width * l.Scale,
		Height: r.Height * l.Scale,
	}
}

// ToSrc maps a rectangle from letterboxed destination coordinates back to
// the original source-image coordinates ("invert-coordinate" round trip,
// spec §8 boundary property).
func (l Letterbox) ToSrc(r Rect) Rect {
	return Rect{
		Left:   (r.Left - l.PadX) / l.Scale,
		Top:    (r.Top - l.PadY) / l.Scale,
		Width:  r.Width / l.Scale,
		Height: r.Height / l.Scale,
	}
}

// Point is a 2D landmark coordinate.
type Point struct{ X, Y float64 }

// ToSrcPoint maps a single point from destination back to source coordinates.
func (l Letterbox) ToSrcPoint(p Point) Point {
	return Point{X: (p.X - l.PadX) / l.Scale, Y: (p.Y - l.PadY) / l.Scale}
}
