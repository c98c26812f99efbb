package pipeline

import (
	"sync"
	"time"

	"github.com/rosteleset/falprs-go/internal/geom"
)

// banEntry tracks one (stream, plate_number) suppression window (glossary:
// "Two-stage ban").
type banEntry struct {
	stage     int
	expiresAt time.Time
	rect      geom.Rect
}

// BanTracker implements the LPRS two-stage dedup clock. Stage 1 suppresses
// unconditionally for ban_duration; stage 2 extends suppression up to
// ban_duration_area, but releases early if the plate moves (IoU against the
// stored box drops below ban_iou_threshold).
type BanTracker struct {
	mu      sync.Mutex
	entries map[string]*banEntry
}

func NewBanTracker() *BanTracker {
	return &BanTracker{entries: map[string]*banEntry{}}
}

func key(streamKey, plateNumber string) string { return streamKey + "|" + plateNumber }

// Check reports whether the plate is currently banned (should suppress the
// event), then transitions or creates the tracking entry for the next call.
func (b *BanTracker) Check(streamKey, plateNumber string, rect geom.Rect, now time.Time, banDuration, banDurationArea time.Duration, banIoUThreshold float64) (banned bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key(streamKey, plateNumber)
	e, ok := b.entries[k]
	if !ok || now.After(e.expiresAt) {
		b.entries[k] = &banEntry{stage: 1, expiresAt: now.Add(banDuration), rect: rect}
		return false
	}
	if e.stage == 1 {
		// Still within stage-1 window: banned regardless of location, then
		// promote to stage 2 with the area-based window.
		e.stage = 2
		e.expiresAt = now.Add(banDurationArea)
		e.rect = rect
		return true
	}
	// stage 2
	if geom.IoU(e.rect, rect) <= banIoUThreshold {
		b.entries[k] = &banEntry{stage: 1, expiresAt: now.Add(banDuration), rect: rect}
		return false
	}
	e.expiresAt = now.Add(banDurationArea)
	e.rect = rect
	return true
}
