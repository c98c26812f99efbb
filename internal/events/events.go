// Package events implements the event store & dispatcher (spec §4.5):
// log-row persistence, screenshot/json/dat file writes, and outbound
// callback POSTs. It implements pipeline.EventSink / pipeline.LPRSEventSink
// so the pipeline package never touches the store or filesystem directly
// (spec §9 "no back-edge" composition). Grounded on the teacher's HTTP
// resolver pattern (packages/com.r3e.services.oracle/service/resolver_http.go)
// for the outbound-POST shape, and its store_postgres.go for the
// fresh-transaction-per-write idiom.
package events

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/rosteleset/falprs-go/internal/cache"
	"github.com/rosteleset/falprs-go/internal/logging"
	"github.com/rosteleset/falprs-go/internal/model"
	"github.com/rosteleset/falprs-go/internal/osd"
	"github.com/rosteleset/falprs-go/internal/pipeline"
	"github.com/rosteleset/falprs-go/internal/store"
)

// Store is the narrow persistence surface events needs.
type Store interface {
	AddLogFace(ctx context.Context, l model.LogFace) (int64, error)
	AddEventLog(ctx context.Context, idVStream int32, info []byte) (int64, error)
	CreateFaceDescriptor(ctx context.Context, idGroup int32, raw []byte, idParent *int32) (int32, error)
}

// Dispatcher writes FRS/LPRS recognition events to the store, screenshot
// tree, and callback URLs.
type Dispatcher struct {
	store             Store
	log               *logging.Logger
	screenshotsPath   string
	screenshotsURLPfx string
	callbackTimeout   time.Duration
}

func NewDispatcher(st Store, log *logging.Logger, screenshotsPath, screenshotsURLPrefix string, callbackTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		store: st, log: log,
		screenshotsPath: screenshotsPath, screenshotsURLPfx: screenshotsURLPrefix,
		callbackTimeout: callbackTimeout,
	}
}

var _ pipeline.EventSink = (*Dispatcher)(nil)
var _ pipeline.LPRSEventSink = (*Dispatcher)(nil)

// screenshotSuffix builds the "group_<gid>/<u0>/<u1>/<u2>/<u3>/<uuid>" path
// suffix shared by screenshots and their companion json/dat files (spec §6
// filesystem layout).
func screenshotSuffix(idGroup int32, id uuid.UUID) string {
	hex := id.String()[:4] // first four hex chars of the canonical form, dashes excluded by position
	u0, u1, u2, u3 := hex[0:1], hex[1:2], hex[2:3], hex[3:4]
	return fmt.Sprintf("group_%d/%s/%s/%s/%s/%s", idGroup, u0, u1, u2, u3, id.String())
}

func encodeFrameJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFile creates parent directories, writes data, and chmods to
// owner+others read/write (spec §4.5: "chmod to owner read+write, others
// read+write").
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o666); err != nil {
		return err
	}
	return os.Chmod(path, 0o666)
}

type faceEventRecord struct {
	IDVStream int32       `json:"idVStream"`
	EventDate time.Time   `json:"eventDate"`
	BestIndex int         `json:"bestFaceIndex"`
	Faces     []faceMeta  `json:"faces"`
}

type faceMeta struct {
	Rect         [4]float64 `json:"rect"`
	Laplacian    float64    `json:"laplacian"`
	Landmarks5   [5][2]float64 `json:"landmarks5"`
	FaceClass    int        `json:"faceClass"`
	IDDescriptor int32      `json:"idDescriptor"`
	Valid        bool       `json:"valid"`
}

// EmitFaceEvent implements pipeline.EventSink for RECOGNIZE results (spec
// §4.3 "Event emission").
func (d *Dispatcher) EmitFaceEvent(ctx context.Context, ev pipeline.FaceEventInput) (int64, string, error) {
	id := uuid.New()
	suffix := screenshotSuffix(ev.IDGroup, id)
	jpgPath := filepath.Join(d.screenshotsPath, suffix+".jpg")
	jsonPath := filepath.Join(d.screenshotsPath, suffix+".json")
	datPath := filepath.Join(d.screenshotsPath, suffix+".dat")

	frame := ev.Frame
	if ev.Title != "" {
		frame = osd.DrawOSD(frame, ev.Title, ev.Now, ev.OSDFormat, ev.TitleRatio)
	}
	jpg, err := encodeFrameJPEG(frame)
	if err != nil {
		return -1, "", err
	}
	if err := writeFile(jpgPath, jpg); err != nil {
		return -1, "", err
	}

	bestIdx := 0
	faces := make([]faceMeta, 0, len(ev.AllFaces))
	for i, f := range ev.AllFaces {
		if f.Rect == ev.Best.Rect {
			bestIdx = i
		}
		faces = append(faces, faceMeta{
			Rect:       [4]float64{f.Rect.Left, f.Rect.Top, f.Rect.Width, f.Rect.Height},
			Laplacian:  f.Laplacian,
			Landmarks5: landmarksArray(f),
			FaceClass:  f.FaceClass,
			IDDescriptor: f.MatchedDescriptor,
			Valid:      f.ReachedStage == pipeline.StageDescriptor,
		})
	}
	record := faceEventRecord{IDVStream: ev.IDVStream, EventDate: ev.Now, BestIndex: bestIdx, Faces: faces}
	recordJSON, _ := json.Marshal(record)
	if err := writeFile(jsonPath, recordJSON); err != nil {
		return -1, "", err
	}

	idHex := []byte(hex.EncodeToString(id[:])) // 32 ASCII bytes, no separator (spec §6 binary event-data format)
	var dat bytes.Buffer
	for i, f := range ev.AllFaces {
		if len(f.Descriptor) == 0 {
			continue
		}
		dat.Write(idHex)
		var idxBuf [4]byte
		binary.LittleEndian.PutUint32(idxBuf[:], uint32(i))
		dat.Write(idxBuf[:])
		for _, v := range f.Descriptor {
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			dat.Write(buf[:])
		}
	}
	if dat.Len() > 0 {
		if err := writeFile(datPath, dat.Bytes()); err != nil {
			return -1, "", err
		}
	}

	screenshotURL := d.screenshotsURLPfx + "/" + suffix + ".jpg"
	var idDescriptor *int32
	if ev.Best.MatchedDescriptor != 0 {
		md := ev.Best.MatchedDescriptor
		idDescriptor = &md
	}
	logID, err := d.store.AddLogFace(ctx, model.LogFace{
		IDVStream: ev.IDVStream, LogDate: ev.Now, IDDescriptor: idDescriptor,
		Quality: ev.Best.Laplacian, FaceRect: ev.Best.Rect, ScreenshotURL: screenshotURL,
		LogUUID: id.String(), CopyData: model.CopyDataNone,
	})
	if err != nil {
		d.log.WithError(err).Error("add log face failed")
	}

	if ev.CallbackURL != "" {
		d.postCallback(ctx, ev.CallbackURL, map[string]any{"faceId": ev.Best.MatchedDescriptor, "eventId": id.String()})
	}

	return logID, id.String(), nil
}

// PersistSpawnedDescriptor implements pipeline.EventSink for spec §4.3
// "Spawned descriptors": the ring's resolved candidate is written as a new
// face descriptor parented to the recognized identity (spec §8: every
// spawned descriptor carries a non-null id_parent). faceJPEG is the
// enlarged/clipped sub-image the pipeline captured into the ring; it is not
// persisted by this call (face_descriptors has no image column, spec §3) —
// capture already happened when the ring recorded it.
func (d *Dispatcher) PersistSpawnedDescriptor(ctx context.Context, idGroup int32, descriptor []float32, faceJPEG []byte, idParent int32) (int32, error) {
	raw := cache.Float32ToBytes(descriptor)
	parent := idParent
	id, err := d.store.CreateFaceDescriptor(ctx, idGroup, raw, &parent)
	if err != nil {
		d.log.WithError(err).Error("persist spawned descriptor failed")
		return 0, err
	}
	return id, nil
}

// EmitSpecialGroupHit writes a second log row (copy_data = DISABLED) and
// POSTs the special group's own callback, reusing the screenshot already
// written by EmitFaceEvent (spec §4.3).
func (d *Dispatcher) EmitSpecialGroupHit(ctx context.Context, hit pipeline.SGroupEventInput) error {
	md := hit.Hit.IDDescriptor
	_, err := d.store.AddLogFace(ctx, model.LogFace{
		IDVStream: hit.IDVStream, LogDate: hit.EventDate, IDDescriptor: &md,
		ScreenshotURL: hit.ScreenshotURL, CopyData: model.CopyDataDisabled,
	})
	if err != nil {
		d.log.WithError(err).Error("add special group log face failed")
	}
	if hit.CallbackURL != "" {
		d.postCallback(ctx, hit.CallbackURL, map[string]any{
			"faceId": hit.Hit.IDDescriptor, "screenshotUrl": hit.ScreenshotURL, "date": hit.EventDate,
		})
	}
	return err
}

// EmitPlateEvents implements pipeline.LPRSEventSink (spec §4.3 LPRS, §6
// callback body "{streamId, eventId, date, plates, hasSpecial}").
func (d *Dispatcher) EmitPlateEvents(ctx context.Context, idVStream int32, vstreamKey, callbackURL string, frame image.Image, evts []pipeline.LPRSPlateEvent, now time.Time) (int64, error) {
	type platePayload struct {
		Type   string `json:"type"`
		Number string `json:"number"`
	}
	plates := make([]platePayload, 0, len(evts))
	hasSpecial := false
	for _, e := range evts {
		plates = append(plates, platePayload{Type: e.Plate.Class, Number: e.Plate.Number})
		hasSpecial = hasSpecial || e.Special
	}
	info, _ := json.Marshal(map[string]any{"plates": plates, "hasSpecial": hasSpecial})
	eventID, err := d.store.AddEventLog(ctx, idVStream, info)
	if err != nil {
		d.log.WithError(err).Error("add event log failed")
		return -1, err
	}
	if callbackURL != "" {
		d.postCallback(ctx, callbackURL, map[string]any{
			"streamId": vstreamKey, "eventId": eventID, "date": now, "plates": plates, "hasSpecial": hasSpecial,
		})
	}
	return eventID, nil
}

// postCallback POSTs body as JSON using a single fresh client per call
// (spec §4.5). Failures are logged WARNING and never returned: callback
// errors must not interrupt the pipeline.
func (d *Dispatcher) postCallback(ctx context.Context, url string, body map[string]any) {
	payload, err := json.Marshal(body)
	if err != nil {
		d.log.WithError(err).Warn("marshal callback body failed")
		return
	}
	client := &http.Client{Timeout: d.callbackTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		d.log.WithError(err).Warn("build callback request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		d.log.WithError(err).Warn("callback POST failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		d.log.Warnf("callback POST to %s returned status %d", url, resp.StatusCode)
	}
}

func landmarksArray(f pipeline.Face) [5][2]float64 {
	l := f.Landmarks
	return [5][2]float64{
		{l.RightEye.X, l.RightEye.Y}, {l.LeftEye.X, l.LeftEye.Y}, {l.Nose.X, l.Nose.Y},
		{l.RightMouth.X, l.RightMouth.Y}, {l.LeftMouth.X, l.LeftMouth.Y},
	}
}

// ensure store.Store satisfies the narrow Store interface at compile time
// without importing it into signatures elsewhere.
var _ Store = (*store.Store)(nil)
