package geom

import "math"

// Landmarks5 holds the five canonical face landmarks (spec GLOSSARY).
type Landmarks5 struct {
	RightEye, LeftEye, Nose, RightMouth, LeftMouth Point
}

// minMaxRatio returns min(a,b)/max(a,b); a or b <= 0 collapses to 0 so a
// degenerate (zero-length) edge always fails the > 0.62 threshold.
func minMaxRatio(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	if a < b {
		return a / b
	}
	return b / a
}

func dist(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// IsFrontal implements the frontality rule from the GLOSSARY and spec §4.3
// stage 2. It is invariant under uniform scaling and translation of the
// landmark set because every test is either an ordering comparison on raw
// coordinates (preserved under translation+positive scaling) or a ratio of
// two distances (scale-invariant).
func IsFrontal(l Landmarks5) bool {
	if !(l.Nose.X > l.RightEye.X && l.Nose.X < l.LeftEye.X) {
		return false
	}
	eyeMaxY := math.Max(l.RightEye.Y, l.LeftEye.Y)
	if !(l.Nose.Y > eyeMaxY) {
		return false
	}
	if !(l.RightEye.X < l.RightMouth.X) {
		return false
	}
	if !(l.LeftEye.X > l.LeftMouth.X) {
		return false
	}

	const threshold = 0.62

	eyeToNoseRight := dist(l.RightEye, l.Nose)
	eyeToNoseLeft := dist(l.LeftEye, l.Nose)
	if minMaxRatio(eyeToNoseRight, eyeToNoseLeft) <= threshold {
		return false
	}

	mouthToNoseRight := dist(l.RightMouth, l.Nose)
	mouthToNoseLeft := dist(l.LeftMouth, l.Nose)
	if minMaxRatio(mouthToNoseRight, mouthToNoseLeft) <= threshold {
		return false
	}

	mouthToEyeRight := dist(l.RightMouth, l.RightEye)
	mouthToEyeLeft := dist(l.LeftMouth, l.LeftEye)
	if minMaxRatio(mouthToEyeRight, mouthToEyeLeft) <= threshold {
		return false
	}

	eyeGap := dist(l.RightEye, l.LeftEye)
	mouthGap := dist(l.RightMouth, l.LeftMouth)
	if minMaxRatio(eyeGap, mouthGap) <= threshold {
		return false
	}

	// eye-to-mouth left vs right, as a fifth independent ratio check
	// (distinct from the two eye-to-mouth distances already checked above,
	// this one compares the crossed left/right diagonals).
	diagRight := dist(l.RightEye, l.LeftMouth)
	diagLeft := dist(l.LeftEye, l.RightMouth)
	if minMaxRatio(diagRight, diagLeft) <= threshold {
		return false
	}

	return true
}
