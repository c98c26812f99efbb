// Package osd draws the on-screen datetime/title overlay onto a recognition
// event frame before it is persisted (spec §4.3 step 2). No raster-text
// library appears anywhere in the example pack, so this is the one
// deliberately out-of-pack dependency (golang.org/x/image/font/basicfont +
// golang.org/x/image/draw), justified in DESIGN.md as the ecosystem-standard
// choice for drawing text onto an image.Image in pure Go.
package osd

import (
	"image"
	"image/color"
	"image/draw"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DrawOSD renders "<title> <formatted datetime>" in black-outline/white-fill
// text at titleRatio * frame-height from the top (spec §4.3: "draw OSD
// (datetime + title) on the frame at title_height_ratio height, in black
// outline + white fill").
func DrawOSD(src image.Image, title string, at time.Time, dateFormat string, titleRatio float64) image.Image {
	text := at.Format(dateFormat)
	if title != "" {
		text = title + "  " + text
	}
	if text == "" {
		return src
	}

	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)

	face := basicfont.Face7x13
	y := b.Min.Y + int(float64(b.Dy())*titleRatio)
	if y < face.Height {
		y = face.Height
	}
	x := b.Min.X + 4

	drawOutlinedText(dst, face, text, x, y)
	return dst
}

func drawOutlinedText(dst *image.RGBA, face font.Face, text string, x, y int) {
	black := image.NewUniform(color.Black)
	white := image.NewUniform(color.White)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			drawText(dst, face, text, x+dx, y+dy, black)
		}
	}
	drawText(dst, face, text, x, y, white)
}

func drawText(dst *image.RGBA, face font.Face, text string, x, y int, src image.Image) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  src,
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
