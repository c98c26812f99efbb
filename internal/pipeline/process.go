package pipeline

import (
	"context"
	"image"
	"time"

	"github.com/rosteleset/falprs-go/internal/cache"
	"github.com/rosteleset/falprs-go/internal/errs"
	"github.com/rosteleset/falprs-go/internal/geom"
	"github.com/rosteleset/falprs-go/internal/logging"
	"github.com/rosteleset/falprs-go/internal/model"
)

// EventSink is the composition root's event-emission collaborator (spec
// §4.5). Pipeline never writes logs, screenshots, or callbacks directly —
// per spec §9's "no back-edge" design note, it only calls forward through
// this narrow interface.
type EventSink interface {
	EmitFaceEvent(ctx context.Context, ev FaceEventInput) (logID int64, eventUUID string, err error)
	EmitSpecialGroupHit(ctx context.Context, hit SGroupEventInput) error
	PersistSpawnedDescriptor(ctx context.Context, idGroup int32, descriptor []float32, faceJPEG []byte, idParent int32) (int32, error)
}

// FaceEventInput is everything EmitFaceEvent needs to write the log row,
// screenshot, and callback for one RECOGNIZE result.
type FaceEventInput struct {
	IDVStream     int32
	VStreamKey    string
	IDGroup       int32
	CallbackURL   string
	Frame         image.Image
	Best          Face
	AllFaces      []Face
	Title         string
	TitleRatio    float64
	OSDFormat     string
	Now           time.Time
}

// SGroupEventInput is what EmitSpecialGroupHit needs for one extra
// special-group log row riding on an already-emitted face event.
type SGroupEventInput struct {
	IDVStream     int32
	ScreenshotURL string
	EventDate     time.Time
	Hit           SGroupHit
	CallbackURL   string
}

// FRSDeps bundles everything the FRS orchestration needs, assembled once by
// the composition root (cmd/frsd) and borrowed by every pipeline iteration.
type FRSDeps struct {
	Descriptors  *cache.DescriptorCache
	StreamLinks  *cache.LinkCache
	SGroupLinks  *cache.LinkCache
	SGroups      *cache.SpecialGroupCache
	Ring         *UnknownDescriptorRing
	Engine       *FRSEngine
	Sink         EventSink
	Log          *logging.Logger
}

// Process runs one FRS pipeline iteration for task against stream (spec
// §4.3). streamIDVStream/streamCallback come from the stream config cache
// lookup the caller already performed (keeps this function cache-agnostic
// for easier testing).
func (d *FRSDeps) Process(ctx context.Context, task TaskData, idVStream int32, streamCallback string, cfg cache.RecognizedConfig, captureTimeout time.Duration, maxRetries int) Result {
	raw, err := FetchFrame(ctx, task.FrameURL, captureTimeout, maxRetries)
	if err != nil {
		return Result{Err: err}
	}
	img, err := decodeImage(raw)
	if err != nil {
		return Result{Err: err}
	}
	b := img.Bounds()
	frameRect := geom.Rect{Left: 0, Top: 0, Width: float64(b.Dx()), Height: float64(b.Dy())}

	faces, err := d.Engine.DetectFaces(ctx, img, cfg)
	if err != nil {
		return Result{Err: err}
	}

	for i := range faces {
		if cerr := d.Engine.RunCascade(ctx, img, &faces[i], frameRect, cfg); cerr != nil {
			return Result{Err: cerr, Faces: faces}
		}
	}

	streamGallery := d.StreamLinks.Snapshot(idVStream)
	descriptors := d.Descriptors.Snapshot()
	sgroupIDs := d.SGroups.TenantGroups(task.IDGroup)

	for i := range faces {
		f := &faces[i]
		if f.ReachedStage != StageDescriptor {
			continue
		}
		if id, cos, ok := MatchStreamGallery(*f, streamGallery, descriptors, cfg.Tolerance); ok {
			f.MatchedDescriptor = id
			f.MatchedCosine = cos
		}
		if task.IDSGroup != nil {
			d.matchOneSGroup(f, *task.IDSGroup, descriptors, cfg.Tolerance)
		} else {
			for _, sg := range sgroupIDs {
				d.matchOneSGroup(f, sg, descriptors, cfg.Tolerance)
			}
		}
	}

	switch task.Type {
	case TaskRegisterDescriptor:
		return d.processRegister(ctx, task, img, faces, cfg)
	case TaskProcessFrame:
		return d.processFrame(faces)
	case TaskTest:
		return d.processTest(img, faces)
	default: // RECOGNIZE
		return d.processRecognize(ctx, task, idVStream, streamCallback, img, frameRect, faces, cfg)
	}
}

func (d *FRSDeps) matchOneSGroup(f *Face, sg int32, descriptors map[int32]model.FaceDescriptor, tolerance float64) {
	ids := d.SGroupLinks.Snapshot(sg)
	if id, cos, ok := MatchStreamGallery(*f, ids, descriptors, tolerance); ok {
		f.SGroupHits = append(f.SGroupHits, SGroupHit{IDSGroup: sg, Cosine: cos, IDDescriptor: id})
	}
}

// bestFace implements spec §4.3 "Best-face selection": best recognized face
// by max Laplacian, falling back to best unrecognized face only when no
// recognized face exists.
func bestFace(faces []Face) (*Face, bool) {
	var bestRecognized *Face
	var bestUnrecognized *Face
	for i := range faces {
		f := &faces[i]
		if f.ReachedStage != StageDescriptor {
			continue
		}
		if f.MatchedDescriptor != 0 {
			if bestRecognized == nil || f.Laplacian > bestRecognized.Laplacian {
				bestRecognized = f
			}
		} else if bestUnrecognized == nil || f.Laplacian > bestUnrecognized.Laplacian {
			bestUnrecognized = f
		}
	}
	if bestRecognized != nil {
		return bestRecognized, true
	}
	if bestUnrecognized != nil {
		return bestUnrecognized, false
	}
	return nil, false
}

func (d *FRSDeps) processRecognize(ctx context.Context, task TaskData, idVStream int32, callbackURL string, img image.Image, frame geom.Rect, faces []Face, cfg cache.RecognizedConfig) Result {
	best, recognized := bestFace(faces)
	res := Result{Faces: faces, BestFace: best, BestRecognized: recognized}
	if best == nil {
		return res
	}

	if cfg.FlagSpawnedDescriptors {
		d.handleSpawnedDescriptors(ctx, task.IDGroup, task.VStreamKey, img, frame, *best, recognized, cfg)
	}

	logID, uuid, err := d.Sink.EmitFaceEvent(ctx, FaceEventInput{
		IDVStream: idVStream, VStreamKey: task.VStreamKey, IDGroup: task.IDGroup,
		CallbackURL: callbackURL, Frame: img, Best: *best, AllFaces: faces,
		Title: cfg.Title, TitleRatio: cfg.TitleHeightRatio, OSDFormat: cfg.OSDDatetimeFormat,
		Now: time.Now(),
	})
	if err != nil {
		d.Log.WithError(err).Warn("event emission failed")
	}
	res.LogID = logID
	res.EventUUID = uuid

	// Every special-group hit on the same best face gets its own log row and
	// callback, reusing the already-written screenshot (spec §4.3).
	for _, hit := range best.SGroupHits {
		sg, ok := d.SGroups.Get(hit.IDSGroup)
		if !ok {
			continue
		}
		if serr := d.Sink.EmitSpecialGroupHit(ctx, SGroupEventInput{
			IDVStream: idVStream, ScreenshotURL: res.EventUUID, EventDate: time.Now(),
			Hit: hit, CallbackURL: sg.CallbackURL,
		}); serr != nil {
			d.Log.WithError(serr).Warn("special group event emission failed")
		}
	}
	return res
}

// handleSpawnedDescriptors implements spec §4.3 "Spawned descriptors": an
// unrecognized best face is enlarged, clipped to the frame, and captured
// into a per-stream ring; a later recognized face on the same stream then
// resolves against the ring and persists the closest candidate as a new
// face descriptor parented to the matched identity (spec §8: every spawned
// descriptor has a non-null id_parent pointing at an existing descriptor).
func (d *FRSDeps) handleSpawnedDescriptors(ctx context.Context, idGroup int32, streamKey string, img image.Image, frame geom.Rect, best Face, recognized bool, cfg cache.RecognizedConfig) {
	now := time.Now()
	if !recognized {
		enlarged := geom.Clip(geom.Enlarge(best.Rect, cfg.FaceEnlargeScale), frame.Width, frame.Height)
		jpg, err := encodeJPEG(captureSubImage(img, enlarged))
		if err != nil {
			d.Log.WithError(err).Warn("spawned descriptor capture failed")
			jpg = nil
		}
		d.Ring.Add(streamKey, append([]float32(nil), best.Descriptor...), jpg, cfg.UnknownDescriptorTTL, now)
		return
	}
	if idx, cos, ok := d.Ring.BestMatch(streamKey, best.Descriptor, geom.CosineNormalized, now); ok && cos > cfg.Tolerance {
		descriptor, faceJPEG, entryOK := d.Ring.Entry(streamKey, idx)
		if entryOK {
			if _, err := d.Sink.PersistSpawnedDescriptor(ctx, idGroup, descriptor, faceJPEG, best.MatchedDescriptor); err != nil {
				d.Log.WithError(err).Warn("spawned descriptor persistence failed")
			}
		}
	}
	d.Ring.Clear(streamKey)
}

func (d *FRSDeps) processRegister(ctx context.Context, task TaskData, img image.Image, faces []Face, cfg cache.RecognizedConfig) Result {
	if task.Hint == nil {
		return Result{Err: errs.BadRequest("registerFace requires a bounding hint")}
	}
	var inside []*Face
	for i := range faces {
		f := &faces[i]
		if f.ReachedStage != StageDescriptor {
			continue
		}
		f.IoAWithHint = geom.IoA(f.Rect, *task.Hint)
		if f.IoAWithHint > 0.999 {
			inside = append(inside, f)
		}
	}
	var chosen *Face
	if len(inside) > 0 {
		for _, f := range inside {
			if chosen == nil || f.Laplacian > chosen.Laplacian {
				chosen = f
			}
		}
	} else {
		for i := range faces {
			f := &faces[i]
			if f.ReachedStage != StageDescriptor {
				continue
			}
			if chosen == nil || f.IoAWithHint > chosen.IoAWithHint {
				chosen = f
			}
		}
	}
	if chosen == nil {
		// ReachedStage is the last stage a face completed, so the stage it
		// failed at is the next one; with no faces the comment is "no faces".
		failed := StageNone
		for _, f := range faces {
			if f.ReachedStage+1 > failed {
				failed = f.ReachedStage + 1
			}
		}
		return Result{Faces: faces, Comments: failed.FailureComment()}
	}

	res := Result{Faces: faces, BestFace: chosen}
	if chosen.MatchedDescriptor != 0 && chosen.MatchedCosine > 0.999 {
		res.NewDescriptorID = chosen.MatchedDescriptor
		res.Reused = true
		res.Comments = "The descriptor already exists."
	} else {
		res.Comments = "A new descriptor has been created."
	}
	return res
}

func (d *FRSDeps) processFrame(faces []Face) Result {
	res := Result{Faces: faces}
	for _, f := range faces {
		if f.ReachedStage == StageDescriptor && f.MatchedDescriptor != 0 {
			res.IDDescriptors = append(res.IDDescriptors, f.MatchedDescriptor)
		}
	}
	return res
}

func (d *FRSDeps) processTest(img image.Image, faces []Face) Result {
	for i := range faces {
		if faces[i].ReachedStage != StageDescriptor {
			continue
		}
		crop := cropResize(img, faces[i].Rect, 256, 256)
		if jpg, err := encodeJPEG(crop); err == nil {
			faces[i].AlignedJPEG = jpg
		}
	}
	return Result{Faces: faces}
}
