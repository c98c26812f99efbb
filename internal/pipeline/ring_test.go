package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosineExact(a, b []float32) float64 {
	if len(a) != len(b) {
		return -2
	}
	var sum float64
	match := true
	for i := range a {
		if a[i] != b[i] {
			match = false
		}
		sum += float64(a[i]) * float64(b[i])
	}
	if match {
		return 1
	}
	return sum
}

func TestUnknownDescriptorRingBestMatch(t *testing.T) {
	r := NewUnknownDescriptorRing()
	now := time.Unix(1700000000, 0)

	r.Add("cam1", []float32{1, 0, 0}, []byte("jpeg-a"), time.Minute, now)
	r.Add("cam1", []float32{0, 1, 0}, []byte("jpeg-b"), time.Minute, now)

	idx, cos, found := r.BestMatch("cam1", []float32{1, 0, 0}, cosineExact, now.Add(time.Second))
	require.True(t, found)
	assert.Equal(t, 0, idx)
	assert.InDelta(t, 1.0, cos, 1e-9)

	descriptor, img, ok := r.Entry("cam1", idx)
	require.True(t, ok)
	assert.Equal(t, []byte("jpeg-a"), img)
	assert.Equal(t, []float32{1, 0, 0}, descriptor)
}

func TestUnknownDescriptorRingPrunesExpired(t *testing.T) {
	r := NewUnknownDescriptorRing()
	now := time.Unix(1700000000, 0)

	r.Add("cam1", []float32{1, 0}, []byte("jpeg-a"), time.Second, now)

	_, _, found := r.BestMatch("cam1", []float32{1, 0}, cosineExact, now.Add(time.Hour))
	assert.False(t, found)
}

func TestUnknownDescriptorRingEmptyStreamHasNoMatch(t *testing.T) {
	r := NewUnknownDescriptorRing()
	now := time.Unix(1700000000, 0)
	_, _, found := r.BestMatch("nope", []float32{1, 0}, cosineExact, now)
	assert.False(t, found)
}

func TestUnknownDescriptorRingCapsSize(t *testing.T) {
	r := NewUnknownDescriptorRing()
	now := time.Unix(1700000000, 0)
	for i := 0; i < defaultRingCap+10; i++ {
		r.Add("cam1", []float32{float32(i)}, nil, time.Hour, now)
	}
	entries := r.streams["cam1"]
	assert.Len(t, entries, defaultRingCap)
	// The oldest entries should have been evicted, newest kept.
	assert.Equal(t, float32(defaultRingCap+9), entries[len(entries)-1].descriptor[0])
}

func TestUnknownDescriptorRingClear(t *testing.T) {
	r := NewUnknownDescriptorRing()
	now := time.Unix(1700000000, 0)
	r.Add("cam1", []float32{1}, nil, time.Minute, now)
	r.Clear("cam1")
	_, _, found := r.BestMatch("cam1", []float32{1}, cosineExact, now)
	assert.False(t, found)
}

func TestUnknownDescriptorRingEntryOutOfRange(t *testing.T) {
	r := NewUnknownDescriptorRing()
	_, _, ok := r.Entry("cam1", 0)
	assert.False(t, ok)
}
