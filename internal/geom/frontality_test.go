package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func symmetricFrontalLandmarks() Landmarks5 {
	return Landmarks5{
		RightEye:   Point{X: 30, Y: 30},
		LeftEye:    Point{X: 70, Y: 30},
		Nose:       Point{X: 50, Y: 55},
		RightMouth: Point{X: 35, Y: 80},
		LeftMouth:  Point{X: 65, Y: 80},
	}
}

func TestIsFrontalAcceptsSymmetricFace(t *testing.T) {
	assert.True(t, IsFrontal(symmetricFrontalLandmarks()))
}

func TestIsFrontalRejectsProfile(t *testing.T) {
	l := symmetricFrontalLandmarks()
	l.Nose.X = 25 // nose pushed past the right eye: a profile view
	assert.False(t, IsFrontal(l))
}

func TestIsFrontalRejectsSkewedRatio(t *testing.T) {
	l := symmetricFrontalLandmarks()
	l.Nose.X = 34 // nose shifted toward the right eye: eye-to-nose 25.3 vs 43.8, ratio ~0.58 <= 0.62
	assert.False(t, IsFrontal(l))
}

func TestMinMaxRatioDegenerateEdge(t *testing.T) {
	assert.Zero(t, minMaxRatio(0, 5))
	assert.Zero(t, minMaxRatio(5, 0))
	assert.InDelta(t, 0.5, minMaxRatio(5, 10), 1e-9)
}
