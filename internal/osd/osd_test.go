package osd

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func blankFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{A: 255})
		}
	}
	return img
}

func TestDrawOSDProducesDistinctPixels(t *testing.T) {
	src := blankFrame(200, 100)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	out := DrawOSD(src, "cam1", at, "2006-01-02 15:04:05", 0.5)

	changed := false
	b := out.Bounds()
	for y := b.Min.Y; y < b.Max.Y && !changed; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if out.At(x, y) != src.At(x, y) {
				changed = true
				break
			}
		}
	}
	assert.True(t, changed, "overlay text should alter at least one pixel")
}

func TestDrawOSDReturnsSourceUnmodifiedWhenTextEmpty(t *testing.T) {
	src := blankFrame(50, 50)
	out := DrawOSD(src, "", time.Time{}, "", 0.5)
	assert.Same(t, src, out)
}

func TestDrawOSDClampsTitleRatioNearTop(t *testing.T) {
	src := blankFrame(100, 100)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	// A near-zero ratio should not panic or draw out of bounds.
	out := DrawOSD(src, "x", at, "2006-01-02", 0.0)
	assert.Equal(t, src.Bounds(), out.Bounds())
}
