// Package geom implements the primitive geometric and vector operations the
// recognition cascade relies on: rectangles, IoU/IoA, NMS, letterboxing, and
// cosine distance. These are treated as primitive operations per spec §1.
package geom

// Rect is an axis-aligned box in pixel coordinates (float for sub-pixel
// detector output; callers round when writing to storage).
type Rect struct {
	Left, Top, Width, Height float64
}

func (r Rect) Right() float64  { return r.Left + r.Width }
func (r Rect) Bottom() float64 { return r.Top + r.Height }
func (r Rect) Area() float64   { return r.Width * r.Height }

// Contains reports whether other lies fully inside r.
func (r Rect) Contains(other Rect) bool {
	return other.Left >= r.Left && other.Top >= r.Top &&
		other.Right() <= r.Right() && other.Bottom() <= r.Bottom()
}

// Intersection returns the overlapping rectangle of a and b (zero area if
// disjoint).
func Intersection(a, b Rect) Rect {
	left := max(a.Left, b.Left)
	top := max(a.Top, b.Top)
	right := min(a.Right(), b.Right())
	bottom := min(a.Bottom(), b.Bottom())
	if right <= left || bottom <= top {
		return Rect{}
	}
	return Rect{Left: left, Top: top, Width: right - left, Height: bottom - top}
}

// IoU is the intersection-over-union of a and b.
func IoU(a, b Rect) float64 {
	inter := Intersection(a, b).Area()
	if inter == 0 {
		return 0
	}
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// IoA is intersection-over-area-of-b (glossary: "Intersection over
// area-of-right operand").
func IoA(a, b Rect) float64 {
	if b.Area() <= 0 {
		return 0
	}
	return Intersection(a, b).Area() / b.Area()
}

// Shrink contracts r by pct percent on each side ("margin%" in spec §4.3
// stage 1).
func Shrink(r Rect, pct float64) Rect {
	dx := r.Width * pct / 100
	dy := r.Height * pct / 100
	return Rect{
		Left:   r.Left + dx,
		Top:    r.Top + dy,
		Width:  r.Width - 2*dx,
		Height: r.Height - 2*dy,
	}
}

// Enlarge grows r around its center by scale (>1 enlarges), used for
// capturing spawned-descriptor crops (spec §4.3).
func Enlarge(r Rect, scale float64) Rect {
	cx := r.Left + r.Width/2
	cy := r.Top + r.Height/2
	w := r.Width * scale
	h := r.Height * scale
	return Rect{Left: cx - w/2, Top: cy - h/2, Width: w, Height: h}
}

// Clip intersects r with the frame bounds [0,0,w,h].
func Clip(r Rect, w, h float64) Rect {
	return Intersection(r, Rect{Left: 0, Top: 0, Width: w, Height: h})
}
