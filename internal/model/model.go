// Package model holds the shared domain types used across the cache,
// pipeline, store, and HTTP layers (spec §3 data model).
package model

import (
	"strconv"
	"time"

	"github.com/rosteleset/falprs-go/internal/geom"
)

// CopyDataState is the copy_data column on a log_faces row.
type CopyDataState int

const (
	CopyDataDisabled  CopyDataState = -1
	CopyDataNone      CopyDataState = 0
	CopyDataScheduled CopyDataState = 1
	CopyDataDone      CopyDataState = 2
)

// Tenant is the "group" entity (spec §3).
type Tenant struct {
	IDGroup   int32
	AuthToken string
}

// VStream is a video stream row.
type VStream struct {
	IDVStream   int32
	IDGroup     int32
	VStreamExt  string
	URL         string
	CallbackURL string
	Config      map[string]any
	FlagDeleted bool
	LastUpdated time.Time
}

// Key returns the "<id_group>_<vstream_ext>" scheduler/cache key (glossary).
func (v VStream) Key() string { return VStreamKey(v.IDGroup, v.VStreamExt) }

// VStreamKey builds the vstream key from its components.
func VStreamKey(idGroup int32, vstreamExt string) string {
	return strconv.FormatInt(int64(idGroup), 10) + "_" + vstreamExt
}

// FaceDescriptor is a persisted, L2-normalized (once loaded) face vector.
type FaceDescriptor struct {
	IDDescriptor int32
	IDGroup      int32
	Vector       []float32 // normalized once loaded into cache
	IDParent     *int32    // non-nil for spawned descriptors
	FlagDeleted  bool
	LastUpdated  time.Time
}

// StreamDescriptorLink is a stream<->descriptor binding row.
type StreamDescriptorLink struct {
	IDVStream    int32
	IDDescriptor int32
	FlagDeleted  bool
	LastUpdated  time.Time
}

// SpecialGroup is a tenant-scoped special-group (e.g. VIP gallery) config row.
type SpecialGroup struct {
	IDSpecialGroup    int32
	IDGroup           int32
	GroupName         string
	SgAPIToken        string
	CallbackURL       string
	MaxDescriptorCnt  int
	FlagDeleted       bool
}

// SpecialGroupLink binds a descriptor into a special group's gallery.
type SpecialGroupLink struct {
	IDSGroup     int32
	IDDescriptor int32
	FlagDeleted  bool
	LastUpdated  time.Time
}

// LogFace is a single FRS recognition log row.
type LogFace struct {
	IDLog          int64
	IDVStream      int32
	LogDate        time.Time
	IDDescriptor   *int32
	Quality        float64
	FaceRect       geom.Rect
	ScreenshotURL  string
	LogUUID        string
	CopyData       CopyDataState
	ExtEventUUID   string
}

// EventLog is a single LPRS event row; Info carries the JSON payload.
type EventLog struct {
	IDEvent   int64
	IDVStream int32
	LogDate   time.Time
	Info      []byte
}

// TenantConfig is the merged common+default tenant configuration.
type TenantConfig struct {
	IDGroup int32
	Values  map[string]any
}
