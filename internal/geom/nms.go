package geom

import "sort"

// Detection is a generic scored box used by the face/vehicle/plate detectors
// before cascade-specific metadata (landmarks, class, etc.) is attached.
type Detection struct {
	Rect  Rect
	Score float64
}

// NMS performs greedy non-maximum suppression: highest score first, dropping
// any box whose IoU with an already-kept box exceeds iouThreshold.
func NMS(dets []Detection, iouThreshold float64) []Detection {
	if len(dets) == 0 {
		return nil
	}
	ordered := make([]int, len(dets))
	for i := range ordered {
		ordered[i] = i
	}
	sort.Slice(ordered, func(i, j int) bool {
		return dets[ordered[i]].Score > dets[ordered[j]].Score
	})

	kept := make([]Detection, 0, len(dets))
	suppressed := make([]bool, len(dets))
	for _, i := range ordered {
		if suppressed[i] {
			continue
		}
		kept = append(kept, dets[i])
		for _, j := range ordered {
			if j == i || suppressed[j] {
				continue
			}
			if IoU(dets[i].Rect, dets[j].Rect) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
