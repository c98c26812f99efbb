package cache

import "time"

// RecognizedConfig is the typed projection of the JSON config blob carried
// by tenants and streams (spec §6 "Config keys"). Unknown JSON keys are
// ignored; recognized keys missing from a given update keep their previous
// value, so ApplyRecognized always starts from the receiver, not a zero
// value.
type RecognizedConfig struct {
	// Shared / FRS cascade thresholds
	Blur                   float64
	BlurMax                float64
	Tolerance              float64
	FaceConfidence         float64
	FaceClassConfidence    float64
	FaceEnlargeScale       float64
	Margin                 float64
	MaxCaptureErrorCount   int
	CaptureTimeout         time.Duration
	DelayBetweenFrames     time.Duration
	DelayAfterError        time.Duration
	BestQualityIntervalBefore time.Duration
	BestQualityIntervalAfter  time.Duration
	OpenDoorDuration       time.Duration
	WorkflowTimeout        time.Duration
	UnknownDescriptorTTL   time.Duration
	FlagSpawnedDescriptors bool
	Title                  string
	TitleHeightRatio       float64
	OSDDatetimeFormat      string
	WorkArea               []Point2D
	LogsLevel              string
	AllowGroupIDWithoutAuth int
	CallbackTimeout        time.Duration
	SgMaxDescriptorCount   int

	// DNN endpoints, keyed by logical model name, read from a nested
	// "dnn": {"<model>": {"inference-server": ..., "model-name": ...}}
	// object; flat "dnn-<model>-<field>" keys are not read.
	DNN map[string]DNNEndpoint

	// LPRS-specific
	VehicleConfidence      float64
	VehicleIoUThreshold    float64
	VehicleAreaRatioThreshold float64
	SpecialConfidence      float64
	PlateConfidence        float64
	CharScore              float64
	CharIoUThreshold       float64
	MinPlateHeight         float64
	BanDuration            time.Duration
	BanDurationArea        time.Duration
	BanIoUThreshold        float64
	FlagSaveFailed         bool
	FlagProcessSpecial     bool
}

// Point2D is a work-area polygon vertex.
type Point2D struct{ X, Y float64 }

// DNNEndpoint describes one of the eight model endpoints (spec §4.2/§6).
type DNNEndpoint struct {
	Server       string
	ModelName    string
	InputWidth   int
	InputHeight  int
	InputTensor  string
	OutputTensor string
	OutputSize   int
}

// DefaultRecognizedConfig returns the hard-coded defaults applied before any
// tenant override lands, per spec §9's guidance to pick implementer-chosen
// defaults for fields the original left undeclared (e.g. unknown-descriptor-ttl).
func DefaultRecognizedConfig() RecognizedConfig {
	return RecognizedConfig{
		Blur:                   100,
		BlurMax:                10000,
		Tolerance:              0.6,
		FaceConfidence:         0.7,
		FaceClassConfidence:    0.5,
		FaceEnlargeScale:       1.5,
		Margin:                 5,
		MaxCaptureErrorCount:   3,
		CaptureTimeout:         3 * time.Second,
		DelayBetweenFrames:     500 * time.Millisecond,
		DelayAfterError:        2 * time.Second,
		BestQualityIntervalBefore: 5 * time.Second,
		BestQualityIntervalAfter:  5 * time.Second,
		OpenDoorDuration:       10 * time.Second,
		WorkflowTimeout:        0,
		UnknownDescriptorTTL:   60 * time.Second,
		FlagSpawnedDescriptors: false,
		Title:                  "",
		TitleHeightRatio:       0.05,
		OSDDatetimeFormat:      "2006-01-02 15:04:05",
		LogsLevel:              "info",
		CallbackTimeout:        3 * time.Second,
		SgMaxDescriptorCount:   1000,
		DNN:                    map[string]DNNEndpoint{},

		VehicleConfidence:         0.5,
		VehicleIoUThreshold:       0.5,
		VehicleAreaRatioThreshold: 0.1,
		SpecialConfidence:         0.5,
		PlateConfidence:           0.5,
		CharScore:                 0.3,
		CharIoUThreshold:          0.3,
		MinPlateHeight:            16,
		BanDuration:               30 * time.Second,
		BanDurationArea:           5 * time.Minute,
		BanIoUThreshold:           0.5,
		FlagSaveFailed:            false,
		FlagProcessSpecial:        false,
	}
}

// ApplyRecognized merges recognized keys from a decoded JSON map onto a copy
// of the receiver. Unrecognized keys are ignored; recognized keys absent
// from values keep the receiver's current value.
func (c RecognizedConfig) ApplyRecognized(values map[string]any) RecognizedConfig {
	out := c
	getFloat := func(key string, dst *float64) {
		if v, ok := values[key]; ok {
			if f, ok := toFloat(v); ok {
				*dst = f
			}
		}
	}
	getDuration := func(key string, dst *time.Duration) {
		if v, ok := values[key]; ok {
			if f, ok := toFloat(v); ok {
				*dst = time.Duration(f * float64(time.Second))
			}
		}
	}
	getInt := func(key string, dst *int) {
		if v, ok := values[key]; ok {
			if f, ok := toFloat(v); ok {
				*dst = int(f)
			}
		}
	}
	getBool := func(key string, dst *bool) {
		if v, ok := values[key]; ok {
			if b, ok := v.(bool); ok {
				*dst = b
			} else if f, ok := toFloat(v); ok {
				*dst = f > 0
			}
		}
	}
	getString := func(key string, dst *string) {
		if v, ok := values[key]; ok {
			if s, ok := v.(string); ok {
				*dst = s
			}
		}
	}

	getFloat("blur", &out.Blur)
	getFloat("blur-max", &out.BlurMax)
	getFloat("tolerance", &out.Tolerance)
	getFloat("face-confidence", &out.FaceConfidence)
	getFloat("face-class-confidence", &out.FaceClassConfidence)
	getFloat("face-enlarge-scale", &out.FaceEnlargeScale)
	getFloat("margin", &out.Margin)
	getInt("max-capture-error-count", &out.MaxCaptureErrorCount)
	getDuration("capture-timeout", &out.CaptureTimeout)
	getDuration("delay-between-frames", &out.DelayBetweenFrames)
	getDuration("delay-after-error", &out.DelayAfterError)
	getDuration("best-quality-interval-before", &out.BestQualityIntervalBefore)
	getDuration("best-quality-interval-after", &out.BestQualityIntervalAfter)
	getDuration("open-door-duration", &out.OpenDoorDuration)
	getDuration("workflow-timeout", &out.WorkflowTimeout)
	getDuration("unknown-descriptor-ttl", &out.UnknownDescriptorTTL)
	getBool("flag-spawned-descriptors", &out.FlagSpawnedDescriptors)
	getString("title", &out.Title)
	getFloat("title-height-ratio", &out.TitleHeightRatio)
	getString("osd-datetime-format", &out.OSDDatetimeFormat)
	getString("logs-level", &out.LogsLevel)
	getInt("allow-group-id-without-auth", &out.AllowGroupIDWithoutAuth)
	getDuration("callback-timeout", &out.CallbackTimeout)
	getInt("sg-max-descriptor-count", &out.SgMaxDescriptorCount)

	getFloat("vehicle-confidence", &out.VehicleConfidence)
	getFloat("vehicle-iou-threshold", &out.VehicleIoUThreshold)
	getFloat("vehicle-area-ratio-threshold", &out.VehicleAreaRatioThreshold)
	getFloat("special-confidence", &out.SpecialConfidence)
	getFloat("plate-confidence", &out.PlateConfidence)
	getFloat("char-score", &out.CharScore)
	getFloat("char-iou-threshold", &out.CharIoUThreshold)
	getFloat("min-plate-height", &out.MinPlateHeight)
	getDuration("ban-duration", &out.BanDuration)
	getDuration("ban-duration-area", &out.BanDurationArea)
	getFloat("ban-iou-threshold", &out.BanIoUThreshold)
	getBool("flag-save-failed", &out.FlagSaveFailed)
	getBool("flag-process-special", &out.FlagProcessSpecial)

	if raw, ok := values["work-area"]; ok {
		if pts, ok := parseWorkArea(raw); ok {
			out.WorkArea = pts
		}
	}

	if dnn, ok := values["dnn"]; ok {
		if merged, ok := mergeDNN(out.DNN, dnn); ok {
			out.DNN = merged
		}
	}

	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func parseWorkArea(raw any) ([]Point2D, bool) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	pts := make([]Point2D, 0, len(arr))
	for _, e := range arr {
		pair, ok := e.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		x, xok := toFloat(pair[0])
		y, yok := toFloat(pair[1])
		if xok && yok {
			pts = append(pts, Point2D{X: x, Y: y})
		}
	}
	return pts, true
}

func mergeDNN(existing map[string]DNNEndpoint, raw any) (map[string]DNNEndpoint, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]DNNEndpoint, len(existing))
	for k, v := range existing {
		out[k] = v
	}
	for modelKey, v := range m {
		fields, ok := v.(map[string]any)
		if !ok {
			continue
		}
		ep := out[modelKey]
		if s, ok := fields["inference-server"].(string); ok {
			ep.Server = s
		}
		if s, ok := fields["model-name"].(string); ok {
			ep.ModelName = s
		}
		if f, ok := toFloat(fields["input-width"]); ok {
			ep.InputWidth = int(f)
		}
		if f, ok := toFloat(fields["input-height"]); ok {
			ep.InputHeight = int(f)
		}
		if s, ok := fields["input-tensor-name"].(string); ok {
			ep.InputTensor = s
		}
		if s, ok := fields["output-tensor-name"].(string); ok {
			ep.OutputTensor = s
		}
		if f, ok := toFloat(fields["output-size"]); ok {
			ep.OutputSize = int(f)
		}
		out[modelKey] = ep
	}
	return out, true
}
