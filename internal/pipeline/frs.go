package pipeline

import (
	"context"
	"image"
	"math"

	"github.com/rosteleset/falprs-go/internal/cache"
	"github.com/rosteleset/falprs-go/internal/errs"
	"github.com/rosteleset/falprs-go/internal/geom"
	"github.com/rosteleset/falprs-go/internal/inference"
	"github.com/rosteleset/falprs-go/internal/logging"
	"github.com/rosteleset/falprs-go/internal/model"
)

// rawDetection is the wire shape returned by the face-detect model
// endpoint: one record per candidate, already decoded server-side from the
// three-stride anchor grids into (score, box, 5 landmarks) — the decode
// itself is architecture-specific and lives behind the inference adapter's
// boundary (spec §4.2 treats the model as an opaque tensor-in/tensor-out
// collaborator), so this layer's job is thresholding, NMS, and coordinate
// inversion, not re-deriving anchor math.
type rawDetection struct {
	Score float64
	Box   geom.Rect // letterboxed destination coordinates
	LM    [5]geom.Point
}

const recordLen = 1 + 4 + 10 // score, ltwh, 5 x,y pairs

func decodeRawDetections(data []float32) []rawDetection {
	n := len(data) / recordLen
	out := make([]rawDetection, 0, n)
	for i := 0; i < n; i++ {
		base := i * recordLen
		rec := data[base : base+recordLen]
		out = append(out, rawDetection{
			Score: float64(rec[0]),
			Box: geom.Rect{
				Left: float64(rec[1]), Top: float64(rec[2]),
				Width: float64(rec[3]), Height: float64(rec[4]),
			},
			LM: [5]geom.Point{
				{X: float64(rec[5]), Y: float64(rec[6])},
				{X: float64(rec[7]), Y: float64(rec[8])},
				{X: float64(rec[9]), Y: float64(rec[10])},
				{X: float64(rec[11]), Y: float64(rec[12])},
				{X: float64(rec[13]), Y: float64(rec[14])},
			},
		})
	}
	return out
}

// FRSEngine runs the FRS recognition cascade (spec §4.3) over one frame.
type FRSEngine struct {
	infer *inference.Adapter
	log   *logging.Logger
}

func NewFRSEngine(infer *inference.Adapter, log *logging.Logger) *FRSEngine {
	return &FRSEngine{infer: infer, log: log}
}

// DetectFaces runs the face detector and returns faces passing
// face_confidence and NMS, in the original frame's coordinate space.
func (e *FRSEngine) DetectFaces(ctx context.Context, img image.Image, cfg cache.RecognizedConfig) ([]Face, error) {
	ep, ok := cfg.DNN["face-detect"]
	if !ok {
		return nil, errs.Inference("face-detect endpoint not configured", nil)
	}
	srcW, srcH := img.Bounds().Dx(), img.Bounds().Dy()
	lb := geom.NewLetterbox(float64(srcW), float64(srcH), float64(ep.InputWidth), float64(ep.InputHeight))

	aligned := cropResize(img, geom.Rect{Left: 0, Top: 0, Width: float64(srcW), Height: float64(srcH)}, ep.InputWidth, ep.InputHeight)
	tensor := inference.Tensor{Shape: []int{3, ep.InputHeight, ep.InputWidth}, Data: chwNormalize(aligned, false)}

	out, ok, err := e.infer.Invoke(ctx, ep, tensor)
	if !ok {
		return nil, errs.Inference("face-detect inference failed", err)
	}

	raw := decodeRawDetections(out.Data)
	dets := make([]geom.Detection, 0, len(raw))
	keep := make([]rawDetection, 0, len(raw))
	for _, r := range raw {
		if r.Score < cfg.FaceConfidence {
			continue
		}
		dets = append(dets, geom.Detection{Rect: r.Box, Score: r.Score})
		keep = append(keep, r)
	}
	kept := geom.NMS(dets, 0.4)

	faces := make([]Face, 0, len(kept))
	for _, k := range kept {
		for _, r := range keep {
			if r.Box == k.Rect && r.Score == k.Score {
				srcBox := lb.ToSrc(r.Box)
				faces = append(faces, Face{
					Rect:  srcBox,
					Score: r.Score,
					Landmarks: geom.Landmarks5{
						RightEye:   lb.ToSrcPoint(r.LM[0]),
						LeftEye:    lb.ToSrcPoint(r.LM[1]),
						Nose:       lb.ToSrcPoint(r.LM[2]),
						RightMouth: lb.ToSrcPoint(r.LM[3]),
						LeftMouth:  lb.ToSrcPoint(r.LM[4]),
					},
				})
				break
			}
		}
	}
	return faces, nil
}

// RunCascade evaluates stages 1-5 on one face, mutating its state and
// advancing ReachedStage. It stops at the first failed stage, per spec
// §4.3 "on first failure skip to next face and record the last reached
// stage."
func (e *FRSEngine) RunCascade(ctx context.Context, img image.Image, face *Face, frame geom.Rect, cfg cache.RecognizedConfig) error {
	// Stage 1: work area.
	workArea := geom.Shrink(frame, cfg.Margin)
	if !workArea.Contains(face.Rect) {
		face.ReachedStage = StageNone
		return nil
	}
	face.ReachedStage = StageWorkArea

	// Stage 2: frontality.
	if !geom.IsFrontal(face.Landmarks) {
		return nil
	}
	face.ReachedStage = StageFrontal

	// Stage 3: align + sharpness.
	frSize := 112
	if ep, ok := cfg.DNN["face-recognize"]; ok && ep.InputWidth > 0 {
		frSize = ep.InputWidth
	}
	aligned := cropResize(img, geom.Enlarge(face.Rect, cfg.FaceEnlargeScale), frSize, frSize)
	face.Laplacian = laplacianVariance(aligned)
	if face.Laplacian < cfg.Blur || face.Laplacian > cfg.BlurMax {
		return nil
	}
	face.ReachedStage = StageBlur

	// Stage 4: face class.
	if ep, ok := cfg.DNN["face-class"]; ok {
		fcAligned := cropResize(img, face.Rect, ep.InputWidth, ep.InputHeight)
		tensor := inference.Tensor{Shape: []int{3, ep.InputHeight, ep.InputWidth}, Data: chwNormalize(fcAligned, false)}
		out, ok, err := e.infer.Invoke(ctx, ep, tensor)
		if !ok {
			return errs.Inference("face-class inference failed", err)
		}
		class, score := softmaxArgmax(out.Data)
		face.FaceClass = class
		if class != 0 && score > cfg.FaceClassConfidence {
			return nil
		}
	}
	face.ReachedStage = StageClass

	// Stage 5: descriptor.
	ep, ok := cfg.DNN["face-recognize"]
	if !ok {
		return errs.Inference("face-recognize endpoint not configured", nil)
	}
	arcface := ep.ModelName == "arcface"
	frAligned := cropResize(img, face.Rect, ep.InputWidth, ep.InputHeight)
	tensor := inference.Tensor{Shape: []int{3, ep.InputHeight, ep.InputWidth}, Data: chwNormalize(frAligned, arcface)}
	out, ok, err := e.infer.Invoke(ctx, ep, tensor)
	if !ok {
		return errs.Inference("face-recognize inference failed", err)
	}
	descriptor := append([]float32(nil), out.Data...)
	geom.L2Normalize(descriptor)
	face.Descriptor = descriptor
	face.ReachedStage = StageDescriptor
	return nil
}

func softmaxArgmax(logits []float32) (int, float64) {
	if len(logits) == 0 {
		return 0, 0
	}
	maxLogit := logits[0]
	for _, l := range logits {
		if l > maxLogit {
			maxLogit = l
		}
	}
	var sum float64
	exps := make([]float64, len(logits))
	for i, l := range logits {
		e := math.Exp(float64(l - maxLogit))
		exps[i] = e
		sum += e
	}
	bestIdx := 0
	bestVal := 0.0
	for i, e := range exps {
		p := e / sum
		if p > bestVal {
			bestVal = p
			bestIdx = i
		}
	}
	return bestIdx, bestVal
}

// MatchStreamGallery finds the best cosine match in a stream's descriptor
// gallery (spec §4.3 "Matching" - stream gallery). Spawned descriptors are
// resolved to their parent id.
func MatchStreamGallery(face Face, galleryIDs map[int32]struct{}, descriptors map[int32]model.FaceDescriptor, tolerance float64) (id int32, cos float64, found bool) {
	best := -2.0
	var bestID int32
	for gid := range galleryIDs {
		d, ok := descriptors[gid]
		if !ok {
			continue
		}
		c := geom.CosineNormalized(face.Descriptor, d.Vector)
		if c > best {
			best = c
			bestID = gid
		}
	}
	if best < tolerance {
		return 0, best, false
	}
	if winner, ok := descriptors[bestID]; ok && winner.IDParent != nil {
		bestID = *winner.IDParent
	}
	return bestID, best, true
}
