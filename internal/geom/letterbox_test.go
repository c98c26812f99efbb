package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLetterboxRoundTrip(t *testing.T) {
	l := NewLetterbox(1920, 1080, 640, 640)
	require.Greater(t, l.Scale, 0.0)

	r := Rect{Left: 100, Top: 50, Width: 300, Height: 200}
	dst := l.ToDst(r)
	back := l.ToSrc(dst)

	assert.InDelta(t, r.Left, back.Left, 1e-6)
	assert.InDelta(t, r.Top, back.Top, 1e-6)
	assert.InDelta(t, r.Width, back.Width, 1e-6)
	assert.InDelta(t, r.Height, back.Height, 1e-6)
}

func TestLetterboxCentersPadding(t *testing.T) {
	// A square source into a square destination needs no padding.
	l := NewLetterbox(100, 100, 200, 200)
	assert.InDelta(t, 0, l.PadX, 1e-9)
	assert.InDelta(t, 0, l.PadY, 1e-9)
	assert.InDelta(t, 2, l.Scale, 1e-9)
}

func TestLetterboxPointRoundTrip(t *testing.T) {
	l := NewLetterbox(400, 200, 300, 300)
	p := Point{X: 120, Y: 80}
	dst := l.ToDst(Rect{Left: p.X, Top: p.Y, Width: 0, Height: 0})
	back := l.ToSrcPoint(Point{X: dst.Left, Y: dst.Top})
	assert.InDelta(t, p.X, back.X, 1e-6)
	assert.InDelta(t, p.Y, back.Y, 1e-6)
}
