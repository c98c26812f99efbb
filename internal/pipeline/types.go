// Package pipeline implements the recognition cascade (spec §4.3): frame
// acquisition, the FRS face cascade, the LPRS vehicle/plate cascade, best-face
// selection, spawned descriptors, and event emission. Grounded on the
// teacher's packages/com.r3e.services.automation job-execution pipeline
// (scheduler.go / schedule.go), generalized from "one automation job" to
// "one recognition iteration over one frame."
package pipeline

import (
	"time"

	"github.com/rosteleset/falprs-go/internal/geom"
)

// TaskType enumerates the four task kinds a pipeline iteration can serve.
type TaskType int

const (
	TaskRecognize TaskType = iota
	TaskRegisterDescriptor
	TaskProcessFrame
	TaskTest
)

func (t TaskType) String() string {
	switch t {
	case TaskRecognize:
		return "RECOGNIZE"
	case TaskRegisterDescriptor:
		return "REGISTER_DESCRIPTOR"
	case TaskProcessFrame:
		return "PROCESS_FRAME"
	case TaskTest:
		return "TEST"
	default:
		return "UNKNOWN"
	}
}

// TaskData is the input to one pipeline iteration (spec §4.3).
type TaskData struct {
	Type        TaskType
	IDGroup     int32
	VStreamKey  string
	FrameURL    string
	Hint        *geom.Rect
	IDSGroup    *int32
}

// Stage names the cascade stage a face most recently completed, used both
// for "last reached stage" diagnostics and for REGISTER_DESCRIPTOR's
// comments field (spec §4.3).
type Stage int

const (
	StageNone Stage = iota
	StageWorkArea
	StageFrontal
	StageBlur
	StageClass
	StageDescriptor
)

// FailureComment names s as the stage a face failed at; StageNone means no
// face was detected.
func (s Stage) FailureComment() string {
	switch s {
	case StageNone:
		return "no faces"
	case StageWorkArea:
		return "work area"
	case StageFrontal:
		return "frontality"
	case StageBlur:
		return "blur"
	case StageClass:
		return "face class"
	default:
		return "inference error"
	}
}

// SGroupHit records a special-group gallery match on a face.
type SGroupHit struct {
	IDSGroup     int32
	Cosine       float64
	IDDescriptor int32
}

// Face carries the per-detection state threaded through the cascade.
type Face struct {
	Rect         geom.Rect
	Score        float64
	Landmarks    geom.Landmarks5
	ReachedStage Stage

	Laplacian  float64
	FaceClass  int
	Descriptor []float32 // L2-normalized, nil until stage 5 completes

	MatchedDescriptor int32 // 0 = no match
	MatchedCosine     float64
	IoAWithHint       float64

	SGroupHits []SGroupHit

	AlignedJPEG []byte // populated by the TEST task only
}

// Result is what a pipeline iteration returns to its caller (the admin HTTP
// handler for non-RECOGNIZE tasks, or the scheduler for RECOGNIZE).
type Result struct {
	Faces         []Face
	BestFace      *Face
	BestRecognized bool
	Comments      string
	IDDescriptors []int32 // PROCESS_FRAME: recognized ids in detection order

	// REGISTER_DESCRIPTOR outcome
	NewDescriptorID int32
	Reused          bool

	EventUUID string
	LogID     int64

	Err error
}

// clock is the signature of a time source and realClock wraps time.Now. No
// function in this package takes a clock; the pipeline calls time.Now
// directly.
type clock func() time.Time

func realClock() time.Time { return time.Now() }

var _ clock = realClock
