package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyRecognizedOverridesOnlyGivenKeys(t *testing.T) {
	base := DefaultRecognizedConfig()
	base.Title = "existing-title"

	next := base.ApplyRecognized(map[string]any{
		"blur":            55.0,
		"capture-timeout": 2.0, // seconds
	})

	assert.Equal(t, 55.0, next.Blur)
	assert.Equal(t, 2*time.Second, next.CaptureTimeout)
	// Untouched keys keep their previous values, not the zero value.
	assert.Equal(t, "existing-title", next.Title)
	assert.Equal(t, base.BlurMax, next.BlurMax)
}

func TestApplyRecognizedIgnoresUnknownKeys(t *testing.T) {
	base := DefaultRecognizedConfig()
	next := base.ApplyRecognized(map[string]any{"totally-unknown-key": 1})
	assert.Equal(t, base, next)
}

func TestApplyRecognizedBoolAcceptsNumericTruthiness(t *testing.T) {
	base := DefaultRecognizedConfig()
	next := base.ApplyRecognized(map[string]any{"flag-save-failed": 1.0})
	assert.True(t, next.FlagSaveFailed)

	next = base.ApplyRecognized(map[string]any{"flag-save-failed": 0.0})
	assert.False(t, next.FlagSaveFailed)
}

func TestApplyRecognizedParsesWorkArea(t *testing.T) {
	base := DefaultRecognizedConfig()
	raw := map[string]any{
		"work-area": []any{
			[]any{0.0, 0.0},
			[]any{100.0, 0.0},
			[]any{100.0, 100.0},
		},
	}
	next := base.ApplyRecognized(raw)
	assert.Equal(t, []Point2D{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}}, next.WorkArea)
}

func TestApplyRecognizedMergesDNNByModel(t *testing.T) {
	base := DefaultRecognizedConfig()
	base.DNN["face-detect"] = DNNEndpoint{Server: "old-server", InputWidth: 320}

	next := base.ApplyRecognized(map[string]any{
		"dnn": map[string]any{
			"face-detect": map[string]any{
				"inference-server": "new-server",
				"input-width":      640.0,
			},
			"face-recognize": map[string]any{
				"model-name": "arcface",
			},
		},
	})

	assert.Equal(t, "new-server", next.DNN["face-detect"].Server)
	assert.Equal(t, 640, next.DNN["face-detect"].InputWidth)
	assert.Equal(t, "arcface", next.DNN["face-recognize"].ModelName)
	// Original map must not have been mutated in place.
	assert.Equal(t, "old-server", base.DNN["face-detect"].Server)
}

func TestApplyRecognizedRejectsMalformedWorkArea(t *testing.T) {
	base := DefaultRecognizedConfig()
	next := base.ApplyRecognized(map[string]any{"work-area": "not-an-array"})
	assert.Nil(t, next.WorkArea)
}
