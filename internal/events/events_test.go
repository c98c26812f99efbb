package events

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"image"
	"image/color"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosteleset/falprs-go/internal/logging"
	"github.com/rosteleset/falprs-go/internal/model"
	"github.com/rosteleset/falprs-go/internal/pipeline"
)

type fakeStore struct {
	logFaces     []model.LogFace
	descriptors  [][]byte
	lastIDParent *int32
}

func (f *fakeStore) AddLogFace(ctx context.Context, l model.LogFace) (int64, error) {
	f.logFaces = append(f.logFaces, l)
	return int64(len(f.logFaces)), nil
}

func (f *fakeStore) AddEventLog(ctx context.Context, idVStream int32, info []byte) (int64, error) {
	return 1, nil
}

func (f *fakeStore) CreateFaceDescriptor(ctx context.Context, idGroup int32, raw []byte, idParent *int32) (int32, error) {
	f.descriptors = append(f.descriptors, raw)
	f.lastIDParent = idParent
	return int32(len(f.descriptors)), nil
}

func solidFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	return img
}

func TestScreenshotSuffixLayout(t *testing.T) {
	id := uuid.MustParse("abcd1234-0000-0000-0000-000000000000")
	got := screenshotSuffix(7, id)
	assert.Equal(t, "group_7/a/b/c/d/abcd1234-0000-0000-0000-000000000000", got)
}

func TestEmitFaceEventWritesFilesAndLogRow(t *testing.T) {
	dir := t.TempDir()
	st := &fakeStore{}
	d := NewDispatcher(st, logging.NewDefault(), dir, "/screens", time.Second)

	face := pipeline.Face{
		Descriptor: []float32{1, 2, 3},
		ReachedStage: pipeline.StageDescriptor,
	}
	logID, eventUUID, err := d.EmitFaceEvent(context.Background(), pipeline.FaceEventInput{
		IDVStream: 5, IDGroup: 7, Frame: solidFrame(), Best: face, AllFaces: []pipeline.Face{face}, Now: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), logID)
	require.NotEmpty(t, eventUUID)
	require.Len(t, st.logFaces, 1)
	assert.Equal(t, "/screens/"+screenshotSuffix(7, uuid.MustParse(eventUUID))+".jpg", st.logFaces[0].ScreenshotURL)

	suffix := screenshotSuffix(7, uuid.MustParse(eventUUID))
	_, err = os.Stat(filepath.Join(dir, suffix+".jpg"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, suffix+".json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, suffix+".dat"))
	assert.NoError(t, err, "a .dat file is written when any face carries a descriptor")
}

func TestEmitFaceEventDatRecordLayout(t *testing.T) {
	dir := t.TempDir()
	st := &fakeStore{}
	d := NewDispatcher(st, logging.NewDefault(), dir, "/screens", time.Second)

	face := pipeline.Face{Descriptor: []float32{1, 2, 3}, ReachedStage: pipeline.StageDescriptor}
	_, eventUUID, err := d.EmitFaceEvent(context.Background(), pipeline.FaceEventInput{
		IDVStream: 5, IDGroup: 7, Frame: solidFrame(), Best: face, AllFaces: []pipeline.Face{face}, Now: time.Now(),
	})
	require.NoError(t, err)

	suffix := screenshotSuffix(7, uuid.MustParse(eventUUID))
	raw, err := os.ReadFile(filepath.Join(dir, suffix+".dat"))
	require.NoError(t, err)

	// record = 32-byte ASCII hex id (no separator) + int32 LE index + N*float32 LE descriptor
	wantLen := 32 + 4 + 4*len(face.Descriptor)
	require.Len(t, raw, wantLen)
	idHex := hex.EncodeToString(uuid.MustParse(eventUUID)[:])
	assert.Equal(t, idHex, string(raw[:32]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(raw[32:36]))
	assert.Equal(t, math.Float32bits(1), binary.LittleEndian.Uint32(raw[36:40]))
}

func TestEmitFaceEventSkipsDatFileWithoutDescriptors(t *testing.T) {
	dir := t.TempDir()
	st := &fakeStore{}
	d := NewDispatcher(st, logging.NewDefault(), dir, "/screens", time.Second)

	face := pipeline.Face{}
	_, eventUUID, err := d.EmitFaceEvent(context.Background(), pipeline.FaceEventInput{
		IDVStream: 5, IDGroup: 7, Frame: solidFrame(), Best: face, AllFaces: []pipeline.Face{face}, Now: time.Now(),
	})
	require.NoError(t, err)

	suffix := screenshotSuffix(7, uuid.MustParse(eventUUID))
	_, err = os.Stat(filepath.Join(dir, suffix+".dat"))
	assert.True(t, os.IsNotExist(err))
}

func TestPostCallbackDoesNotReturnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(&fakeStore{}, logging.NewDefault(), t.TempDir(), "/screens", time.Second)
	// postCallback must swallow transport/status errors: no panic, no return value to check.
	d.postCallback(context.Background(), srv.URL, map[string]any{"x": 1})
}

func TestPersistSpawnedDescriptorSetsIDParent(t *testing.T) {
	st := &fakeStore{}
	d := NewDispatcher(st, logging.NewDefault(), t.TempDir(), "/screens", time.Second)

	id, err := d.PersistSpawnedDescriptor(context.Background(), 7, []float32{1, 2, 3}, []byte("jpeg"), 42)
	require.NoError(t, err)
	assert.Equal(t, int32(1), id)
	require.Len(t, st.descriptors, 1)
	require.NotNil(t, st.lastIDParent)
	assert.Equal(t, int32(42), *st.lastIDParent)
}

func TestEmitPlateEventsAddsEventLog(t *testing.T) {
	st := &fakeStore{}
	d := NewDispatcher(st, logging.NewDefault(), t.TempDir(), "/screens", time.Second)
	id, err := d.EmitPlateEvents(context.Background(), 3, "cam1", "", solidFrame(), []pipeline.LPRSPlateEvent{
		{Plate: pipeline.Plate{Class: "ru_1", Number: "A123BC77"}},
	}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}
