package pipeline

import (
	"context"
	"image"
	"regexp"
	"sort"
	"time"

	"github.com/rosteleset/falprs-go/internal/cache"
	"github.com/rosteleset/falprs-go/internal/errs"
	"github.com/rosteleset/falprs-go/internal/geom"
	"github.com/rosteleset/falprs-go/internal/inference"
	"github.com/rosteleset/falprs-go/internal/logging"
)

// Vehicle is one detected vehicle and everything derived from it.
type Vehicle struct {
	Rect      geom.Rect
	Score     float64
	Class     int
	Plates    []Plate
	Special   bool
}

// Plate is one recognized plate candidate on a vehicle.
type Plate struct {
	Rect    geom.Rect
	Class   string // "ru_1" or "ru_1a"
	Number  string
	Score   float64
}

// charDetection is one recognized character glyph before grouping.
type charDetection struct {
	Rect  geom.Rect
	Char  byte
	Score float64
}

// plateRegex validates the two supported plate classes (glossary): 8-9
// chars, fixed letter/digit positions, 12-letter Cyrillic-lookalike
// alphabet (A,B,E,K,M,H,O,P,C,T,Y,X mapped to their Latin lookalikes here).
var plateRegex = map[string]*regexp.Regexp{
	"ru_1":  regexp.MustCompile(`^[ABEKMHOPCTYX]\d{3}[ABEKMHOPCTYX]{2}\d{2,3}$`),
	"ru_1a": regexp.MustCompile(`^\d{4}[ABEKMHOPCTYX]{2}\d{2,3}$`),
}

// LPRSEngine runs the LPRS vehicle/plate cascade (spec §4.3 "LPRS pipeline").
type LPRSEngine struct {
	infer *inference.Adapter
	log   *logging.Logger
}

func NewLPRSEngine(infer *inference.Adapter, log *logging.Logger) *LPRSEngine {
	return &LPRSEngine{infer: infer, log: log}
}

func (e *LPRSEngine) DetectVehicles(ctx context.Context, img image.Image, cfg cache.RecognizedConfig) ([]Vehicle, error) {
	ep, ok := cfg.DNN["vehicle-detect"]
	if !ok {
		return nil, errs.Inference("vehicle-detect endpoint not configured", nil)
	}
	srcW, srcH := img.Bounds().Dx(), img.Bounds().Dy()
	lb := geom.NewLetterbox(float64(srcW), float64(srcH), float64(ep.InputWidth), float64(ep.InputHeight))
	aligned := cropResize(img, geom.Rect{Width: float64(srcW), Height: float64(srcH)}, ep.InputWidth, ep.InputHeight)
	tensor := inference.Tensor{Shape: []int{3, ep.InputHeight, ep.InputWidth}, Data: chwNormalize(aligned, false)}

	out, ok, err := e.infer.Invoke(ctx, ep, tensor)
	if !ok {
		return nil, errs.Inference("vehicle-detect inference failed", err)
	}

	const vehicleRecordLen = 5 // score, l, t, w, h
	n := len(out.Data) / vehicleRecordLen
	dets := make([]geom.Detection, 0, n)
	boxes := make([]geom.Rect, 0, n)
	for i := 0; i < n; i++ {
		rec := out.Data[i*vehicleRecordLen : i*vehicleRecordLen+vehicleRecordLen]
		score := float64(rec[0])
		if score < cfg.VehicleConfidence {
			continue
		}
		box := geom.Rect{Left: float64(rec[1]), Top: float64(rec[2]), Width: float64(rec[3]), Height: float64(rec[4])}
		dets = append(dets, geom.Detection{Rect: box, Score: score})
		boxes = append(boxes, box)
	}
	kept := geom.NMS(dets, cfg.VehicleIoUThreshold)

	vehicles := make([]Vehicle, 0, len(kept))
	for _, k := range kept {
		vehicles = append(vehicles, Vehicle{Rect: lb.ToSrc(k.Rect), Score: k.Score})
	}
	return vehicles, nil
}

// ClassifyVehicle runs the optional vehicle classifier (parallel over
// vehicles per spec §4.3; callers fan this out with a goroutine per vehicle
// if desired — the call itself is sequential and safe to run concurrently
// since the adapter pools per-address HTTP clients).
func (e *LPRSEngine) ClassifyVehicle(ctx context.Context, img image.Image, v *Vehicle, cfg cache.RecognizedConfig) error {
	ep, ok := cfg.DNN["vehicle-class"]
	if !ok {
		return nil
	}
	crop := cropResize(img, v.Rect, ep.InputWidth, ep.InputHeight)
	tensor := inference.Tensor{Shape: []int{3, ep.InputHeight, ep.InputWidth}, Data: chwNormalize(crop, false)}
	out, ok, err := e.infer.Invoke(ctx, ep, tensor)
	if !ok {
		return errs.Inference("vehicle-class inference failed", err)
	}
	class, score := softmaxArgmax(out.Data)
	if score >= cfg.SpecialConfidence {
		v.Special = class != 0
	}
	v.Class = class
	return nil
}

// DetectPlates runs plate detection on a vehicle's cropped sub-image.
func (e *LPRSEngine) DetectPlates(ctx context.Context, img image.Image, v Vehicle, cfg cache.RecognizedConfig) ([]Plate, error) {
	ep, ok := cfg.DNN["plate-detect"]
	if !ok {
		return nil, errs.Inference("plate-detect endpoint not configured", nil)
	}
	crop := cropResize(img, v.Rect, ep.InputWidth, ep.InputHeight)
	lb := geom.NewLetterbox(v.Rect.Width, v.Rect.Height, float64(ep.InputWidth), float64(ep.InputHeight))
	tensor := inference.Tensor{Shape: []int{3, ep.InputHeight, ep.InputWidth}, Data: chwNormalize(crop, false)}

	out, ok, err := e.infer.Invoke(ctx, ep, tensor)
	if !ok {
		return nil, errs.Inference("plate-detect inference failed", err)
	}

	const plateRecordLen = 5
	n := len(out.Data) / plateRecordLen
	var plates []Plate
	for i := 0; i < n; i++ {
		rec := out.Data[i*plateRecordLen : i*plateRecordLen+plateRecordLen]
		score := float64(rec[0])
		if score < cfg.PlateConfidence {
			continue
		}
		box := geom.Rect{Left: float64(rec[1]), Top: float64(rec[2]), Width: float64(rec[3]), Height: float64(rec[4])}
		if box.Height < cfg.MinPlateHeight {
			continue
		}
		srcBox := lb.ToSrc(box)
		srcBox.Left += v.Rect.Left
		srcBox.Top += v.Rect.Top
		plates = append(plates, Plate{Rect: srcBox, Score: score})
	}
	return plates, nil
}

// RecognizeCharacters runs character recognition on an axis-aligned crop of
// the plate rect resized to the model input (no perspective warp is
// applied), groups overlapping character detections into alternatives and
// keeps the candidates that match the per-plate-class validation regex.
func (e *LPRSEngine) RecognizeCharacters(ctx context.Context, img image.Image, p *Plate, cfg cache.RecognizedConfig) error {
	ep, ok := cfg.DNN["plate-recognize"]
	if !ok {
		return errs.Inference("plate-recognize endpoint not configured", nil)
	}

	ratio := p.Rect.Width / max(p.Rect.Height, 1)
	p.Class = "ru_1"
	if ratio < 3.5 {
		p.Class = "ru_1a"
	}

	crop := cropResize(img, p.Rect, ep.InputWidth, ep.InputHeight)
	tensor := inference.Tensor{Shape: []int{3, ep.InputHeight, ep.InputWidth}, Data: chwNormalize(crop, false)}
	out, ok, err := e.infer.Invoke(ctx, ep, tensor)
	if !ok {
		return errs.Inference("plate-recognize inference failed", err)
	}

	const charRecordLen = 7 // score, l, t, w, h, charIndex, _unused
	n := len(out.Data) / charRecordLen
	chars := make([]charDetection, 0, n)
	for i := 0; i < n; i++ {
		rec := out.Data[i*charRecordLen : i*charRecordLen+charRecordLen]
		score := float64(rec[0])
		if score < cfg.CharScore {
			continue
		}
		chars = append(chars, charDetection{
			Rect:  geom.Rect{Left: float64(rec[1]), Top: float64(rec[2]), Width: float64(rec[3]), Height: float64(rec[4])},
			Char:  byte('0' + int(rec[5])%10),
			Score: score,
		})
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i].Rect.Left < chars[j].Rect.Left })

	candidates := groupAndExpand(chars, cfg.CharIoUThreshold)
	re := plateRegex[p.Class]
	best := ""
	bestScore := -1.0
	for _, cand := range candidates {
		if re != nil && !re.MatchString(cand) {
			continue
		}
		score := averageCharScore(chars)
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	p.Number = best
	return nil
}

func averageCharScore(chars []charDetection) float64 {
	if len(chars) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chars {
		sum += c.Score
	}
	return sum / float64(len(chars))
}

// groupAndExpand groups overlapping character boxes (IoU > threshold) into
// position-alternatives, then expands the cartesian product into candidate
// strings (spec: "expand the candidate number set multiplicatively").
func groupAndExpand(chars []charDetection, iouThreshold float64) []string {
	if len(chars) == 0 {
		return nil
	}
	var groups [][]byte
	var lastRect *geom.Rect
	for _, c := range chars {
		if lastRect != nil && geom.IoU(*lastRect, c.Rect) > iouThreshold {
			groups[len(groups)-1] = append(groups[len(groups)-1], c.Char)
		} else {
			groups = append(groups, []byte{c.Char})
		}
		r := c.Rect
		lastRect = &r
	}

	candidates := []string{""}
	for _, g := range groups {
		var next []string
		for _, prefix := range candidates {
			for _, ch := range g {
				next = append(next, prefix+string(ch))
			}
		}
		candidates = next
	}
	return candidates
}

// DedupOverlappingVehicles drops plates on a vehicle that overlaps another
// vehicle above 0.7 IoU, keeping the plate on the smaller-area / fewer-plate
// vehicle (spec §4.3 LPRS pipeline).
func DedupOverlappingVehicles(vehicles []Vehicle) []Vehicle {
	drop := make([]bool, len(vehicles))
	for i := range vehicles {
		for j := i + 1; j < len(vehicles); j++ {
			if geom.IoU(vehicles[i].Rect, vehicles[j].Rect) <= 0.7 {
				continue
			}
			loser := i
			if vehicles[j].Rect.Area() < vehicles[i].Rect.Area() ||
				(vehicles[j].Rect.Area() == vehicles[i].Rect.Area() && len(vehicles[j].Plates) < len(vehicles[i].Plates)) {
				loser = i
			} else {
				loser = j
			}
			drop[loser] = true
		}
	}
	out := make([]Vehicle, 0, len(vehicles))
	for i, v := range vehicles {
		if !drop[i] {
			out = append(out, v)
		} else {
			v.Plates = nil
			out = append(out, v)
		}
	}
	return out
}

// LPRSResult is the outcome of one LPRS frame iteration.
type LPRSResult struct {
	Vehicles []Vehicle
	Events   []LPRSPlateEvent
}

// LPRSPlateEvent is one not-banned plate sighting ready for event emission.
type LPRSPlateEvent struct {
	Vehicle Vehicle
	Plate   Plate
	Special bool
}

// LPRSEventSink persists/dispatches LPRS recognition events (implemented by
// the composition root's events package, same "no back-edge" shape as
// EventSink).
type LPRSEventSink interface {
	EmitPlateEvents(ctx context.Context, idVStream int32, vstreamKey string, callbackURL string, frame image.Image, events []LPRSPlateEvent, now time.Time) (eventID int64, err error)
}

// LPRSDeps bundles LPRS orchestration dependencies.
type LPRSDeps struct {
	Engine *LPRSEngine
	Bans   *BanTracker
	Sink   LPRSEventSink
	Log    *logging.Logger
}

// Process runs one LPRS pipeline iteration (spec §4.3 "LPRS pipeline
// (parallel decomposition)"). Per-vehicle stages are data-parallel; this
// implementation runs them in goroutines bounded by len(vehicles), which is
// already bounded by NMS + vehicle_confidence filtering upstream.
func (d *LPRSDeps) Process(ctx context.Context, task TaskData, idVStream int32, streamCallback string, cfg cache.RecognizedConfig, captureTimeout time.Duration, maxRetries int) LPRSResult {
	raw, err := FetchFrame(ctx, task.FrameURL, captureTimeout, maxRetries)
	if err != nil {
		d.Log.WithError(err).Warn("lprs frame fetch failed")
		return LPRSResult{}
	}
	img, err := decodeImage(raw)
	if err != nil {
		d.Log.WithError(err).Warn("lprs frame decode failed")
		return LPRSResult{}
	}

	vehicles, err := d.Engine.DetectVehicles(ctx, img, cfg)
	if err != nil {
		d.Log.WithError(err).Warn("vehicle detect failed")
		return LPRSResult{}
	}

	type outcome struct {
		idx     int
		plates  []Plate
		special bool
	}
	results := make(chan outcome, len(vehicles))
	for i := range vehicles {
		go func(i int) {
			v := vehicles[i]
			_ = d.Engine.ClassifyVehicle(ctx, img, &v, cfg)
			plates, err := d.Engine.DetectPlates(ctx, img, v, cfg)
			if err != nil {
				results <- outcome{idx: i}
				return
			}
			for j := range plates {
				_ = d.Engine.RecognizeCharacters(ctx, img, &plates[j], cfg)
			}
			results <- outcome{idx: i, plates: plates, special: v.Special}
		}(i)
	}
	for range vehicles {
		o := <-results
		vehicles[o.idx].Plates = o.plates
		vehicles[o.idx].Special = o.special
	}

	vehicles = DedupOverlappingVehicles(vehicles)

	now := time.Now()
	var events []LPRSPlateEvent
	for _, v := range vehicles {
		if v.Special && !cfg.FlagProcessSpecial {
			continue
		}
		for _, p := range v.Plates {
			if p.Number == "" {
				continue
			}
			if d.Bans.Check(task.VStreamKey, p.Number, p.Rect, now, cfg.BanDuration, cfg.BanDurationArea, cfg.BanIoUThreshold) {
				continue
			}
			events = append(events, LPRSPlateEvent{Vehicle: v, Plate: p, Special: v.Special})
		}
	}

	if len(events) > 0 {
		if _, err := d.Sink.EmitPlateEvents(ctx, idVStream, task.VStreamKey, streamCallback, img, events, now); err != nil {
			d.Log.WithError(err).Warn("lprs event emission failed")
		}
	}

	return LPRSResult{Vehicles: vehicles, Events: events}
}
