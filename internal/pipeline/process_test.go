package pipeline

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosteleset/falprs-go/internal/cache"
	"github.com/rosteleset/falprs-go/internal/geom"
	"github.com/rosteleset/falprs-go/internal/logging"
)

type fakeSink struct {
	logID       int64
	uuid        string
	emitErr     error
	sgHits      []SGroupEventInput
	sgErr       error
	emitted     []FaceEventInput
	spawnErr    error
	spawnCalls  int
	spawnParent int32
}

func (f *fakeSink) EmitFaceEvent(ctx context.Context, ev FaceEventInput) (int64, string, error) {
	f.emitted = append(f.emitted, ev)
	return f.logID, f.uuid, f.emitErr
}

func (f *fakeSink) EmitSpecialGroupHit(ctx context.Context, hit SGroupEventInput) error {
	f.sgHits = append(f.sgHits, hit)
	return f.sgErr
}

func (f *fakeSink) PersistSpawnedDescriptor(ctx context.Context, idGroup int32, descriptor []float32, faceJPEG []byte, idParent int32) (int32, error) {
	f.spawnCalls++
	f.spawnParent = idParent
	return 99, f.spawnErr
}

func newTestDeps(sink *fakeSink) *FRSDeps {
	return &FRSDeps{
		Descriptors: cache.NewDescriptorCache(nil, logging.NewDefault(), 4),
		StreamLinks: cache.NewLinkCache(),
		SGroupLinks: cache.NewLinkCache(),
		SGroups:     cache.NewSpecialGroupCache(nil, logging.NewDefault()),
		Ring:        NewUnknownDescriptorRing(),
		Sink:        sink,
		Log:         logging.NewDefault(),
	}
}

func TestBestFacePrefersRecognizedOverUnrecognized(t *testing.T) {
	faces := []Face{
		{ReachedStage: StageDescriptor, MatchedDescriptor: 0, Laplacian: 500},
		{ReachedStage: StageDescriptor, MatchedDescriptor: 9, Laplacian: 10},
	}
	best, recognized := bestFace(faces)
	require.NotNil(t, best)
	assert.True(t, recognized)
	assert.Equal(t, int32(9), best.MatchedDescriptor)
}

func TestBestFaceFallsBackToUnrecognizedWhenNoneMatched(t *testing.T) {
	faces := []Face{
		{ReachedStage: StageDescriptor, Laplacian: 5},
		{ReachedStage: StageDescriptor, Laplacian: 50},
		{ReachedStage: StageBlur, Laplacian: 999}, // never reached descriptor stage
	}
	best, recognized := bestFace(faces)
	require.NotNil(t, best)
	assert.False(t, recognized)
	assert.Equal(t, 50.0, best.Laplacian)
}

func TestBestFaceNoCandidates(t *testing.T) {
	best, recognized := bestFace([]Face{{ReachedStage: StageBlur}})
	assert.Nil(t, best)
	assert.False(t, recognized)
}

func TestProcessRecognizeEmitsFaceEventAndSkipsUnknownSpecialGroup(t *testing.T) {
	sink := &fakeSink{logID: 42, uuid: "uuid-1"}
	d := newTestDeps(sink)

	faces := []Face{
		{ReachedStage: StageDescriptor, Laplacian: 100, MatchedDescriptor: 3,
			// id_special_group 7 isn't in the (empty, DB-free) SGroups cache, so
			// processRecognize's fan-out loop must skip it rather than panic.
			SGroupHits: []SGroupHit{{IDSGroup: 7, Cosine: 0.9, IDDescriptor: 3}}},
	}
	task := TaskData{Type: TaskRecognize, IDGroup: 1, VStreamKey: "cam1"}

	res := d.processRecognize(context.Background(), task, 10, "http://callback", image.NewRGBA(image.Rect(0, 0, 4, 4)), geom.Rect{Width: 4, Height: 4}, faces, cache.RecognizedConfig{})
	require.NoError(t, res.Err)
	assert.Equal(t, int64(42), res.LogID)
	assert.Equal(t, "uuid-1", res.EventUUID)
	require.Len(t, sink.emitted, 1)
	assert.Equal(t, "cam1", sink.emitted[0].VStreamKey)
	assert.Empty(t, sink.sgHits)
}

func TestProcessRecognizeNoFacesReturnsEmptyResult(t *testing.T) {
	sink := &fakeSink{}
	d := newTestDeps(sink)
	res := d.processRecognize(context.Background(), TaskData{}, 1, "", image.NewRGBA(image.Rect(0, 0, 2, 2)), geom.Rect{Width: 2, Height: 2}, nil, cache.RecognizedConfig{})
	assert.Nil(t, res.BestFace)
	assert.Empty(t, sink.emitted)
}

func TestProcessFrameCollectsRecognizedDescriptorIDs(t *testing.T) {
	faces := []Face{
		{ReachedStage: StageDescriptor, MatchedDescriptor: 5},
		{ReachedStage: StageDescriptor, MatchedDescriptor: 0}, // unmatched, excluded
		{ReachedStage: StageBlur, MatchedDescriptor: 9},       // never reached descriptor stage
	}
	d := newTestDeps(&fakeSink{})
	res := d.processFrame(faces)
	assert.Equal(t, []int32{5}, res.IDDescriptors)
}

func TestProcessRegisterRequiresHint(t *testing.T) {
	d := newTestDeps(&fakeSink{})
	res := d.processRegister(context.Background(), TaskData{Hint: nil}, nil, nil, cache.RecognizedConfig{})
	assert.Error(t, res.Err)
}

func TestProcessRegisterPicksSharpestFaceInsideHint(t *testing.T) {
	d := newTestDeps(&fakeSink{})
	hint := geom.Rect{Left: 0, Top: 0, Width: 100, Height: 100}
	task := TaskData{Hint: &hint}

	faces := []Face{
		{ReachedStage: StageDescriptor, Rect: geom.Rect{Left: 0, Top: 0, Width: 100, Height: 100}, Laplacian: 10},
		{ReachedStage: StageDescriptor, Rect: geom.Rect{Left: 500, Top: 500, Width: 10, Height: 10}, Laplacian: 999},
	}
	res := d.processRegister(context.Background(), task, nil, faces, cache.RecognizedConfig{})
	require.NotNil(t, res.BestFace)
	assert.Equal(t, 10.0, res.BestFace.Laplacian)
	assert.Equal(t, "A new descriptor has been created.", res.Comments)
}

func TestProcessRegisterReusesExistingDescriptorAboveThreshold(t *testing.T) {
	d := newTestDeps(&fakeSink{})
	hint := geom.Rect{Left: 0, Top: 0, Width: 100, Height: 100}
	task := TaskData{Hint: &hint}
	faces := []Face{
		{ReachedStage: StageDescriptor, Rect: geom.Rect{Left: 0, Top: 0, Width: 100, Height: 100}, MatchedDescriptor: 77, MatchedCosine: 0.9999},
	}
	res := d.processRegister(context.Background(), task, nil, faces, cache.RecognizedConfig{})
	require.NotNil(t, res.BestFace)
	assert.True(t, res.Reused)
	assert.Equal(t, int32(77), res.NewDescriptorID)
}

func TestProcessRegisterNoCandidateFacesReportsFailureStage(t *testing.T) {
	d := newTestDeps(&fakeSink{})
	hint := geom.Rect{Left: 0, Top: 0, Width: 10, Height: 10}
	task := TaskData{Hint: &hint}
	faces := []Face{{ReachedStage: StageFrontal}} // passed frontality, failed at blur
	res := d.processRegister(context.Background(), task, nil, faces, cache.RecognizedConfig{})
	assert.Nil(t, res.BestFace)
	assert.Equal(t, "blur", res.Comments)
}

func TestProcessTestEncodesAlignedCropsForDescriptorFaces(t *testing.T) {
	d := newTestDeps(&fakeSink{})
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	faces := []Face{
		{ReachedStage: StageDescriptor, Rect: geom.Rect{Left: 0, Top: 0, Width: 32, Height: 32}},
		{ReachedStage: StageBlur, Rect: geom.Rect{Left: 0, Top: 0, Width: 32, Height: 32}}, // untouched
	}
	res := d.processTest(img, faces)
	assert.NotEmpty(t, res.Faces[0].AlignedJPEG)
	assert.Empty(t, res.Faces[1].AlignedJPEG)
}

func TestHandleSpawnedDescriptorsAddsUnrecognizedFaceToRing(t *testing.T) {
	d := newTestDeps(&fakeSink{})
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	frame := geom.Rect{Left: 0, Top: 0, Width: 100, Height: 100}
	face := Face{Descriptor: []float32{1, 0, 0, 0}, Rect: geom.Rect{Left: 10, Top: 10, Width: 20, Height: 20}}
	d.handleSpawnedDescriptors(context.Background(), 1, "cam1", img, frame, face, false, cache.RecognizedConfig{UnknownDescriptorTTL: time.Minute})
	require.Len(t, d.Ring.streams["cam1"], 1)
	assert.Equal(t, []float32{1, 0, 0, 0}, d.Ring.streams["cam1"][0].descriptor)
	assert.NotEmpty(t, d.Ring.streams["cam1"][0].faceJPEG)
}

func TestHandleSpawnedDescriptorsClearsRingAfterRecognizedMatch(t *testing.T) {
	sink := &fakeSink{}
	d := newTestDeps(sink)
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	frame := geom.Rect{Left: 0, Top: 0, Width: 100, Height: 100}
	unknown := Face{Descriptor: []float32{1, 0, 0, 0}, Rect: geom.Rect{Left: 10, Top: 10, Width: 20, Height: 20}}
	d.handleSpawnedDescriptors(context.Background(), 1, "cam1", img, frame, unknown, false, cache.RecognizedConfig{UnknownDescriptorTTL: time.Minute})

	recognized := Face{Descriptor: []float32{1, 0, 0, 0}, MatchedDescriptor: 3}
	d.handleSpawnedDescriptors(context.Background(), 1, "cam1", img, frame, recognized, true, cache.RecognizedConfig{Tolerance: 0.5})

	assert.Empty(t, d.Ring.streams["cam1"], "ring is cleared once a spawn candidate resolves")
	assert.Equal(t, 1, sink.spawnCalls)
	assert.Equal(t, int32(3), sink.spawnParent)
}
