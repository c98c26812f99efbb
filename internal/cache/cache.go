// Package cache implements the six read-through caches of spec §4.1. Each
// cache is single-writer (a polling goroutine) / many-reader, handing out
// immutable snapshots so readers never hold a lock across a suspension point
// (spec §5 "Shared state"), following the teacher's infrastructure/cache
// sync.RWMutex + versioned-entry pattern.
package cache

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rosteleset/falprs-go/internal/geom"
	"github.com/rosteleset/falprs-go/internal/logging"
	"github.com/rosteleset/falprs-go/internal/model"
	"github.com/rosteleset/falprs-go/internal/store"
)

// Poller runs fn on an interval until ctx is done. A run still in flight when
// the next tick fires is skipped rather than queued (spec §4.6 "do not
// queue" rule generalized to cache refresh, since a poll itself can be slow
// under incremental load).
func Poller(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var mu sync.Mutex
	running := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mu.Lock()
			if running {
				mu.Unlock()
				continue
			}
			running = true
			mu.Unlock()
			fn(ctx)
			mu.Lock()
			running = false
			mu.Unlock()
		}
	}
}

// TokenCache maps an opaque tenant auth token to its tenant id (full
// refresh).
type TokenCache struct {
	mu     sync.RWMutex
	byTok  map[string]int32
	db     *store.Store
	log    *logging.Logger
}

func NewTokenCache(db *store.Store, log *logging.Logger) *TokenCache {
	return &TokenCache{byTok: map[string]int32{}, db: db, log: log}
}

func (c *TokenCache) Refresh(ctx context.Context) {
	rows, err := c.db.AllTenantTokens(ctx)
	if err != nil {
		c.log.WithError(err).Warn("token cache refresh failed")
		return
	}
	next := make(map[string]int32, len(rows))
	for _, r := range rows {
		next[r.AuthToken] = r.IDGroup
	}
	c.mu.Lock()
	c.byTok = next
	c.mu.Unlock()
}

func (c *TokenCache) Lookup(token string) (int32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byTok[token]
	return id, ok
}

// TenantConfigCache holds the tenant common+default stream config (full
// refresh). Each recognized key is applied onto a typed RecognizedConfig;
// unknown keys are ignored and missing keys keep the previous value (spec
// §4.1).
type TenantConfigCache struct {
	mu   sync.RWMutex
	byID map[int32]RecognizedConfig
	db   *store.Store
	log  *logging.Logger
}

func NewTenantConfigCache(db *store.Store, log *logging.Logger) *TenantConfigCache {
	return &TenantConfigCache{byID: map[int32]RecognizedConfig{}, db: db, log: log}
}

func (c *TenantConfigCache) Refresh(ctx context.Context) {
	rows, err := c.db.AllTenantConfigs(ctx)
	if err != nil {
		c.log.WithError(err).Warn("tenant config cache refresh failed")
		return
	}
	c.mu.Lock()
	for _, r := range rows {
		prev, ok := c.byID[r.IDGroup]
		if !ok {
			prev = DefaultRecognizedConfig()
		}
		c.byID[r.IDGroup] = prev.ApplyRecognized(r.Values)
	}
	c.mu.Unlock()
}

func (c *TenantConfigCache) Get(idGroup int32) RecognizedConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, ok := c.byID[idGroup]
	if !ok {
		return DefaultRecognizedConfig()
	}
	return cfg
}

// StreamConfigCache holds the merged per-stream config (incremental by
// last_updated). A row with flag_deleted removes the key.
type StreamConfigCache struct {
	mu      sync.RWMutex
	streams map[string]model.VStream // keyed by vstream key
	byID    map[int32]string         // id_vstream -> vstream key, for link lookups
	since   time.Time
	db      *store.Store
	log     *logging.Logger
}

func NewStreamConfigCache(db *store.Store, log *logging.Logger) *StreamConfigCache {
	return &StreamConfigCache{streams: map[string]model.VStream{}, byID: map[int32]string{}, db: db, log: log}
}

func (c *StreamConfigCache) Refresh(ctx context.Context) {
	c.mu.RLock()
	since := c.since
	c.mu.RUnlock()

	rows, err := c.db.VStreamsSince(ctx, since)
	if err != nil {
		c.log.WithError(err).Warn("stream config cache refresh failed")
		return
	}
	if len(rows) == 0 {
		return
	}
	c.mu.Lock()
	for _, v := range rows {
		key := v.Key()
		if v.FlagDeleted {
			delete(c.streams, key)
			delete(c.byID, v.IDVStream)
			continue
		}
		c.streams[key] = v
		c.byID[v.IDVStream] = key
		if v.LastUpdated.After(c.since) {
			c.since = v.LastUpdated
		}
	}
	c.mu.Unlock()
}

func (c *StreamConfigCache) Get(key string) (model.VStream, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.streams[key]
	return v, ok
}

func (c *StreamConfigCache) KeyForID(idVStream int32) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.byID[idVStream]
	return k, ok
}

func (c *StreamConfigCache) All() []model.VStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.VStream, 0, len(c.streams))
	for _, v := range c.streams {
		out = append(out, v)
	}
	return out
}

// DescriptorCache holds normalized face-descriptor vectors (incremental).
type DescriptorCache struct {
	mu       sync.RWMutex
	byID     map[int32]model.FaceDescriptor
	since    time.Time
	outputSz int
	db       *store.Store
	log      *logging.Logger
}

func NewDescriptorCache(db *store.Store, log *logging.Logger, frOutputSize int) *DescriptorCache {
	if frOutputSize <= 0 {
		frOutputSize = 512
	}
	return &DescriptorCache{byID: map[int32]model.FaceDescriptor{}, db: db, log: log, outputSz: frOutputSize}
}

func (c *DescriptorCache) Refresh(ctx context.Context) {
	c.mu.RLock()
	since := c.since
	c.mu.RUnlock()

	rows, err := c.db.FaceDescriptorsSince(ctx, since)
	if err != nil {
		c.log.WithError(err).Warn("descriptor cache refresh failed")
		return
	}
	if len(rows) == 0 {
		return
	}
	c.mu.Lock()
	for _, r := range rows {
		if r.FlagDeleted {
			delete(c.byID, r.IDDescriptor)
			if r.LastUpdated.After(c.since) {
				c.since = r.LastUpdated
			}
			continue
		}
		vec := BytesToFloat32(r.Vector, c.outputSz)
		geom.L2Normalize(vec)
		c.byID[r.IDDescriptor] = model.FaceDescriptor{
			IDDescriptor: r.IDDescriptor, IDGroup: r.IDGroup, Vector: vec,
			IDParent: r.IDParent, LastUpdated: r.LastUpdated,
		}
		if r.LastUpdated.After(c.since) {
			c.since = r.LastUpdated
		}
	}
	c.mu.Unlock()
}

func (c *DescriptorCache) Get(id int32) (model.FaceDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byID[id]
	return d, ok
}

// Snapshot returns an immutable copy of the whole descriptor map for use
// across a suspension point (the cascade's gallery scan).
func (c *DescriptorCache) Snapshot() map[int32]model.FaceDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int32]model.FaceDescriptor, len(c.byID))
	for k, v := range c.byID {
		out[k] = v
	}
	return out
}

// LinkCache is the generic incremental A -> set(B) binding cache shared by
// the stream<->descriptor and special-group<->descriptor link tables.
type LinkCache struct {
	mu    sync.RWMutex
	links map[int32]map[int32]struct{}
	since time.Time
}

func NewLinkCache() *LinkCache {
	return &LinkCache{links: map[int32]map[int32]struct{}{}}
}

func (c *LinkCache) ApplyRows(rows []store.LinkRow) {
	if len(rows) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range rows {
		set, ok := c.links[r.A]
		if !ok {
			set = map[int32]struct{}{}
			c.links[r.A] = set
		}
		if r.FlagDeleted {
			delete(set, r.B)
		} else {
			set[r.B] = struct{}{}
		}
		if r.LastUpdated.After(c.since) {
			c.since = r.LastUpdated
		}
	}
}

func (c *LinkCache) Since() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.since
}

// Snapshot returns an immutable copy of the set bound to a.
func (c *LinkCache) Snapshot(a int32) map[int32]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.links[a]
	out := make(map[int32]struct{}, len(src))
	for k := range src {
		out[k] = struct{}{}
	}
	return out
}

// SpecialGroupCache holds special-group config with the three indexes spec
// §4.1 requires (full refresh).
type SpecialGroupCache struct {
	mu          sync.RWMutex
	byToken     map[string]model.SpecialGroup
	tokenByID   map[int32]string
	idsByTenant map[int32]map[int32]struct{}
	db          *store.Store
	log         *logging.Logger
}

func NewSpecialGroupCache(db *store.Store, log *logging.Logger) *SpecialGroupCache {
	return &SpecialGroupCache{
		byToken: map[string]model.SpecialGroup{}, tokenByID: map[int32]string{},
		idsByTenant: map[int32]map[int32]struct{}{}, db: db, log: log,
	}
}

func (c *SpecialGroupCache) Refresh(ctx context.Context) {
	rows, err := c.db.AllSpecialGroups(ctx)
	if err != nil {
		c.log.WithError(err).Warn("special group cache refresh failed")
		return
	}
	byToken := make(map[string]model.SpecialGroup, len(rows))
	tokenByID := make(map[int32]string, len(rows))
	idsByTenant := map[int32]map[int32]struct{}{}
	for _, r := range rows {
		sg := model.SpecialGroup{
			IDSpecialGroup: r.IDSpecialGroup, IDGroup: r.IDGroup, GroupName: r.GroupName,
			SgAPIToken: r.SgAPIToken, CallbackURL: r.CallbackURL, MaxDescriptorCnt: r.MaxDescriptorCnt,
		}
		byToken[r.SgAPIToken] = sg
		tokenByID[r.IDSpecialGroup] = r.SgAPIToken
		set, ok := idsByTenant[r.IDGroup]
		if !ok {
			set = map[int32]struct{}{}
			idsByTenant[r.IDGroup] = set
		}
		set[r.IDSpecialGroup] = struct{}{}
	}
	c.mu.Lock()
	c.byToken, c.tokenByID, c.idsByTenant = byToken, tokenByID, idsByTenant
	c.mu.Unlock()
}

func (c *SpecialGroupCache) ByToken(token string) (model.SpecialGroup, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sg, ok := c.byToken[token]
	return sg, ok
}

// Get returns the special group config for id, if cached.
func (c *SpecialGroupCache) Get(id int32) (model.SpecialGroup, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tok, ok := c.tokenByID[id]
	if !ok {
		return model.SpecialGroup{}, false
	}
	sg, ok := c.byToken[tok]
	return sg, ok
}

func (c *SpecialGroupCache) TenantGroups(idGroup int32) []int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.idsByTenant[idGroup]
	out := make([]int32, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// BytesToFloat32 reinterprets raw little-endian float32 bytes as a vector,
// padding/truncating to size n (spec §4.1 "reinterpreted as a vector of
// floats, length fixed by the tenant's fr output size").
func BytesToFloat32(raw []byte, n int) []float32 {
	out := make([]float32, n)
	count := len(raw) / 4
	if count > n {
		count = n
	}
	for i := 0; i < count; i++ {
		bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// Float32ToBytes encodes a vector as raw little-endian float32 bytes, the
// inverse of BytesToFloat32 and the format used to persist new descriptors.
func Float32ToBytes(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}
