package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rosteleset/falprs-go/internal/model"
	"github.com/rosteleset/falprs-go/internal/store"
)

func TestFloat32BytesRoundTrip(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.125}
	raw := Float32ToBytes(v)
	assert.Equal(t, v, BytesToFloat32(raw, len(v)))
}

func TestBytesToFloat32PadsShortInput(t *testing.T) {
	raw := Float32ToBytes([]float32{1, 2})
	out := BytesToFloat32(raw, 4)
	assert.Equal(t, []float32{1, 2, 0, 0}, out)
}

func TestBytesToFloat32TruncatesLongInput(t *testing.T) {
	raw := Float32ToBytes([]float32{1, 2, 3, 4})
	out := BytesToFloat32(raw, 2)
	assert.Equal(t, []float32{1, 2}, out)
}

func TestLinkCacheApplyAndSnapshot(t *testing.T) {
	c := NewLinkCache()
	now := time.Now()
	c.ApplyRows([]store.LinkRow{
		{A: 1, B: 10, LastUpdated: now},
		{A: 1, B: 11, LastUpdated: now},
	})
	snap := c.Snapshot(1)
	assert.Len(t, snap, 2)
	_, ok := snap[10]
	assert.True(t, ok)

	c.ApplyRows([]store.LinkRow{{A: 1, B: 10, FlagDeleted: true, LastUpdated: now.Add(time.Second)}})
	snap = c.Snapshot(1)
	assert.Len(t, snap, 1)
	_, ok = snap[10]
	assert.False(t, ok)
}

func TestLinkCacheSnapshotIsImmutableCopy(t *testing.T) {
	c := NewLinkCache()
	c.ApplyRows([]store.LinkRow{{A: 1, B: 10, LastUpdated: time.Now()}})
	snap := c.Snapshot(1)
	snap[99] = struct{}{}
	assert.NotContains(t, c.Snapshot(1), int32(99))
}

func TestLinkCacheSinceAdvancesWithLatestRow(t *testing.T) {
	c := NewLinkCache()
	t1 := time.Now()
	t2 := t1.Add(time.Minute)
	c.ApplyRows([]store.LinkRow{{A: 1, B: 10, LastUpdated: t2}, {A: 1, B: 11, LastUpdated: t1}})
	assert.Equal(t, t2, c.Since())
}

func TestSpecialGroupCacheIndexes(t *testing.T) {
	c := NewSpecialGroupCache(nil, nil)
	c.byToken = map[string]model.SpecialGroup{
		"tok-a": {IDSpecialGroup: 1, IDGroup: 100, SgAPIToken: "tok-a"},
		"tok-b": {IDSpecialGroup: 2, IDGroup: 100, SgAPIToken: "tok-b"},
	}
	c.tokenByID = map[int32]string{1: "tok-a", 2: "tok-b"}
	c.idsByTenant = map[int32]map[int32]struct{}{100: {1: {}, 2: {}}}

	sg, ok := c.ByToken("tok-a")
	assert.True(t, ok)
	assert.Equal(t, int32(1), sg.IDSpecialGroup)

	sg, ok = c.Get(2)
	assert.True(t, ok)
	assert.Equal(t, "tok-b", sg.SgAPIToken)

	_, ok = c.Get(999)
	assert.False(t, ok)

	assert.ElementsMatch(t, []int32{1, 2}, c.TenantGroups(100))
	assert.Empty(t, c.TenantGroups(999))
}
