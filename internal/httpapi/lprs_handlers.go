package httpapi

import (
	"time"

	"github.com/rosteleset/falprs-go/internal/cache"
	"github.com/rosteleset/falprs-go/internal/errs"
	"github.com/rosteleset/falprs-go/internal/logging"
	"github.com/rosteleset/falprs-go/internal/model"
	"github.com/rosteleset/falprs-go/internal/pipeline"
	"github.com/rosteleset/falprs-go/internal/scheduler"
	"github.com/rosteleset/falprs-go/internal/store"
)

// LPRSDeps bundles what the LPRS admin handlers need — narrower than FRSDeps
// since LPRS has no descriptor gallery or special-group namespace (spec §6
// LPRS method list).
type LPRSDeps struct {
	Store         *store.Store
	TenantConfigs *cache.TenantConfigCache
	Streams       *cache.StreamConfigCache
	Scheduler     *scheduler.Scheduler
	Pipeline      *pipeline.LPRSDeps
	Log           *logging.Logger

	CaptureTimeout time.Duration
	MaxRetries     int
}

// RegisterLPRS wires every LPRS admin method into s.
func RegisterLPRS(s *Server, d *LPRSDeps) {
	s.RegisterVoid("addStream", d.handleAddStream)
	s.RegisterVoid("removeStream", d.handleRemoveStream)
	s.RegisterData("listStreams", d.handleListStreams)

	s.RegisterVoid("startWorkflow", d.handleStartWorkflow)
	s.RegisterVoid("stopWorkflow", d.handleStopWorkflow)

	s.RegisterData("getEventData", d.handleGetEventData)

	s.RegisterVoid("setStreamDefaultConfig", d.handleSetStreamConfig)
	s.RegisterData("getStreamDefaultConfig", d.handleGetStreamConfig)
}

func (d *LPRSDeps) handleAddStream(c ctx) error {
	var req addStreamReq
	if err := c.bind(&req); err != nil {
		return err
	}
	if req.VStreamExt == "" || req.URL == "" {
		return errs.BadRequest("vstreamExt and url are required")
	}
	_, err := d.Store.CreateVStream(c.Context(), model.VStream{
		IDGroup: c.idGroup, VStreamExt: req.VStreamExt, URL: req.URL, CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return errs.Persistence("create stream failed", err)
	}
	return nil
}

func (d *LPRSDeps) handleRemoveStream(c ctx) error {
	var req struct {
		VStreamExt string `json:"vstreamExt"`
	}
	if err := c.bind(&req); err != nil {
		return err
	}
	v, err := d.Store.GetVStream(c.Context(), c.idGroup, req.VStreamExt)
	if err != nil {
		return errs.NotFound("stream not found")
	}
	if err := d.Store.SoftDeleteVStream(c.Context(), v.IDVStream); err != nil {
		return errs.Persistence("remove stream failed", err)
	}
	d.Scheduler.StopWorkflow(v.Key(), false)
	return nil
}

func (d *LPRSDeps) handleListStreams(c ctx) (any, error) {
	rows, err := d.Store.ListVStreams(c.Context(), c.idGroup)
	if err != nil {
		return nil, errs.Persistence("list streams failed", err)
	}
	return rows, nil
}

// handleStartWorkflow/handleStopWorkflow implement spec §4.4's explicit
// start/stop admin entry points (LPRS, unlike FRS, has no implicit
// motion/door trigger — a workflow only runs between an explicit start and
// stop).
func (d *LPRSDeps) handleStartWorkflow(c ctx) error {
	var req struct {
		VStreamExt string        `json:"vstreamExt"`
		Timeout    time.Duration `json:"timeout"`
	}
	if err := c.bind(&req); err != nil {
		return err
	}
	key := model.VStreamKey(c.idGroup, req.VStreamExt)
	if _, ok := d.Streams.Get(key); !ok {
		return errs.NotFound("stream not found")
	}
	d.Scheduler.StartWorkflow(c.Context(), key, req.Timeout)
	return nil
}

func (d *LPRSDeps) handleStopWorkflow(c ctx) error {
	var req struct {
		VStreamExt string `json:"vstreamExt"`
	}
	if err := c.bind(&req); err != nil {
		return err
	}
	key := model.VStreamKey(c.idGroup, req.VStreamExt)
	d.Scheduler.StopWorkflow(key, true)
	return nil
}

func (d *LPRSDeps) handleGetEventData(c ctx) (any, error) {
	var req struct {
		VStreamExt string    `json:"vstreamExt"`
		From       time.Time `json:"from"`
		To         time.Time `json:"to"`
	}
	if err := c.bind(&req); err != nil {
		return nil, err
	}
	v, err := d.Store.GetVStream(c.Context(), c.idGroup, req.VStreamExt)
	if err != nil {
		return nil, errs.NotFound("stream not found")
	}
	row, err := d.Store.NearestEvent(c.Context(), v.IDVStream, req.From, req.To)
	if err != nil {
		return nil, errs.NotFound("no matching event")
	}
	return row, nil
}

func (d *LPRSDeps) handleSetStreamConfig(c ctx) error {
	var req struct {
		VStreamExt string         `json:"vstreamExt"`
		Values     map[string]any `json:"values"`
	}
	if err := c.bind(&req); err != nil {
		return err
	}
	v, err := d.Store.GetVStream(c.Context(), c.idGroup, req.VStreamExt)
	if err != nil {
		return errs.NotFound("stream not found")
	}
	if err := d.Store.UpdateVStreamConfig(c.Context(), v.IDVStream, req.Values); err != nil {
		return errs.Persistence("set stream config failed", err)
	}
	return nil
}

func (d *LPRSDeps) handleGetStreamConfig(c ctx) (any, error) {
	var req struct {
		VStreamExt string `json:"vstreamExt"`
	}
	if err := c.bind(&req); err != nil {
		return nil, err
	}
	v, ok := d.Streams.Get(model.VStreamKey(c.idGroup, req.VStreamExt))
	if !ok {
		return nil, errs.NotFound("stream not found")
	}
	return v.Config, nil
}
