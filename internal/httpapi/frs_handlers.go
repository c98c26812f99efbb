package httpapi

import (
	"time"

	"github.com/rosteleset/falprs-go/internal/cache"
	"github.com/rosteleset/falprs-go/internal/errs"
	"github.com/rosteleset/falprs-go/internal/geom"
	"github.com/rosteleset/falprs-go/internal/logging"
	"github.com/rosteleset/falprs-go/internal/metrics"
	"github.com/rosteleset/falprs-go/internal/model"
	"github.com/rosteleset/falprs-go/internal/pipeline"
	"github.com/rosteleset/falprs-go/internal/scheduler"
	"github.com/rosteleset/falprs-go/internal/store"
)

// FRSDeps bundles everything the FRS admin handlers need: the store, the
// read-through caches, the scheduler (to start/stop per-stream workflows),
// the pipeline (for synchronous TEST/PROCESS_FRAME/REGISTER_DESCRIPTOR
// calls), and DNN call statistics.
type FRSDeps struct {
	Store         *store.Store
	TenantConfigs *cache.TenantConfigCache
	Streams       *cache.StreamConfigCache
	Descriptors   *cache.DescriptorCache
	StreamLinks   *cache.LinkCache
	SGroupLinks   *cache.LinkCache
	SGroups       *cache.SpecialGroupCache
	Scheduler     *scheduler.Scheduler
	Pipeline      *pipeline.FRSDeps
	DNNStats      *metrics.DNNStats
	Log           *logging.Logger

	CaptureTimeout time.Duration
	MaxRetries     int
	WorkflowPoll   time.Duration
}

type addStreamReq struct {
	VStreamExt  string `json:"vstreamExt"`
	URL         string `json:"url"`
	CallbackURL string `json:"callbackUrl"`
}

type addFacesReq struct {
	VStreamExt string `json:"vstreamExt"`
	FrameURL   string `json:"frameUrl"`
	Rect       *geom.Rect `json:"rect"`
}

type removeFacesReq struct {
	IDs []int32 `json:"ids"`
}

type frameTaskReq struct {
	VStreamExt string     `json:"vstreamExt"`
	FrameURL   string     `json:"frameUrl"`
	Rect       *geom.Rect `json:"rect"`
}

type specialGroupReq struct {
	GroupName   string `json:"groupName"`
	CallbackURL string `json:"callbackUrl"`
	MaxDescriptorCnt int `json:"maxDescriptorCnt"`
}

// RegisterFRS wires every FRS admin method into s (spec §6 method list).
func RegisterFRS(s *Server, d *FRSDeps) {
	s.RegisterVoid("addStream", d.handleAddStream)
	s.RegisterVoid("removeStream", d.handleRemoveStream)
	s.RegisterData("listStreams", d.handleListStreams)

	s.RegisterVoid("motionDetection", d.handleMotionDetection)
	s.RegisterVoid("doorIsOpen", d.handleDoorIsOpen)

	s.RegisterData("bestQuality", d.handleBestQuality)
	s.RegisterData("getEvents", d.handleGetEvents)

	s.RegisterData("registerFace", d.handleRegisterFace)
	s.RegisterVoid("addFaces", d.handleAddFaces)
	s.RegisterVoid("removeFaces", d.handleRemoveFaces)
	s.RegisterData("listAllFaces", d.handleListAllFaces)
	s.RegisterVoid("deleteFaces", d.handleRemoveFaces)

	s.RegisterData("testImage", d.handleTestImage)
	s.RegisterData("processFrame", d.handleProcessFrame)

	s.RegisterVoid("addSpecialGroup", d.handleAddSpecialGroup)
	s.RegisterVoid("updateSpecialGroup", d.handleUpdateSpecialGroup)
	s.RegisterVoid("deleteSpecialGroup", d.handleDeleteSpecialGroup)
	s.RegisterData("listSpecialGroups", d.handleListSpecialGroups)

	s.RegisterVoid("saveDnnStatsData", d.handleSaveDNNStats)

	s.RegisterVoid("setCommonConfig", d.handleSetCommonConfig)
	s.RegisterData("getCommonConfig", d.handleGetCommonConfig)
	s.RegisterVoid("setStreamDefaultConfig", d.handleSetStreamConfig)
	s.RegisterData("getStreamDefaultConfig", d.handleGetStreamConfig)

	s.RegisterSGData("registerFace", d.handleSGRegisterFace)
	s.RegisterSGVoid("deleteFaces", d.handleSGDeleteFaces)
	s.RegisterSGData("listFaces", d.handleSGListFaces)
	s.RegisterSGVoid("updateGroup", d.handleSGUpdateGroup)
	s.RegisterSGVoid("renewToken", d.handleSGRenewToken)
	s.RegisterSGData("searchFaces", d.handleSGSearchFaces)
}

func (d *FRSDeps) handleAddStream(c ctx) error {
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

func (d *FRSDeps) handleRemoveStream(c ctx) error {
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
	d.Scheduler.StopWorkflow(v.Key(), true)
	return nil
}

func (d *FRSDeps) handleListStreams(c ctx) (any, error) {
	rows, err := d.Store.ListVStreams(c.Context(), c.idGroup)
	if err != nil {
		return nil, errs.Persistence("list streams failed", err)
	}
	return rows, nil
}

// handleMotionDetection/handleDoorIsOpen both start the stream's RECOGNIZE
// workflow with the request's timeout (spec §4.4: "an external motion/door
// signal starts the workflow if idle, otherwise it is a no-op"). Neither
// stops a workflow, and neither reads open-door-duration.
func (d *FRSDeps) handleMotionDetection(c ctx) error { return d.startWorkflow(c) }
func (d *FRSDeps) handleDoorIsOpen(c ctx) error      { return d.startWorkflow(c) }

func (d *FRSDeps) startWorkflow(c ctx) error {
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

func (d *FRSDeps) handleBestQuality(c ctx) (any, error) {
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
	row, err := d.Store.BestQualityLogFace(c.Context(), v.IDVStream, req.From, req.To)
	if err != nil {
		return nil, errs.NotFound("no matching event")
	}
	return row, nil
}

func (d *FRSDeps) handleGetEvents(c ctx) (any, error) {
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

// runPipelineTask runs one synchronous FRS iteration for an admin-triggered
// task (REGISTER_DESCRIPTOR / PROCESS_FRAME / TEST never go through the
// scheduler — spec §4.3 "these three task types run inline on the calling
// HTTP request").
func (d *FRSDeps) runPipelineTask(c ctx, tt pipeline.TaskType, vstreamExt, frameURL string, hint *geom.Rect) (pipeline.Result, model.VStream, error) {
	v, ok := d.Streams.Get(model.VStreamKey(c.idGroup, vstreamExt))
	if !ok && vstreamExt != "" {
		return pipeline.Result{}, model.VStream{}, errs.NotFound("stream not found")
	}
	cfg := d.TenantConfigs.Get(c.idGroup)
	task := pipeline.TaskData{Type: tt, IDGroup: c.idGroup, VStreamKey: v.Key(), FrameURL: frameURL, Hint: hint}
	res := d.Pipeline.Process(c.Context(), task, v.IDVStream, v.CallbackURL, cfg, d.CaptureTimeout, d.MaxRetries)
	if res.Err != nil {
		if e, ok := errs.As(res.Err); ok {
			return res, v, e
		}
		return res, v, errs.Internal("pipeline iteration failed", res.Err)
	}
	return res, v, nil
}

func (d *FRSDeps) handleRegisterFace(c ctx) (any, error) {
	var req addFacesReq
	if err := c.bind(&req); err != nil {
		return nil, err
	}
	res, _, err := d.runPipelineTask(c, pipeline.TaskRegisterDescriptor, req.VStreamExt, req.FrameURL, req.Rect)
	if err != nil {
		return nil, err
	}
	if res.BestFace == nil {
		return map[string]any{"comments": res.Comments}, nil
	}
	if res.Reused {
		return map[string]any{"idDescriptor": res.NewDescriptorID, "comments": res.Comments}, nil
	}
	raw := cache.Float32ToBytes(res.BestFace.Descriptor)
	id, err := d.Store.CreateFaceDescriptor(c.Context(), c.idGroup, raw, nil)
	if err != nil {
		return nil, errs.Persistence("create descriptor failed", err)
	}
	return map[string]any{"idDescriptor": id, "comments": res.Comments}, nil
}

func (d *FRSDeps) handleAddFaces(c ctx) error {
	var req struct {
		VStreamExt   string  `json:"vstreamExt"`
		IDDescriptor int32   `json:"idDescriptor"`
	}
	if err := c.bind(&req); err != nil {
		return err
	}
	v, err := d.Store.GetVStream(c.Context(), c.idGroup, req.VStreamExt)
	if err != nil {
		return errs.NotFound("stream not found")
	}
	if err := d.Store.AddStreamDescriptorLink(c.Context(), v.IDVStream, req.IDDescriptor); err != nil {
		return errs.Persistence("link descriptor failed", err)
	}
	return nil
}

func (d *FRSDeps) handleRemoveFaces(c ctx) error {
	var req removeFacesReq
	if err := c.bind(&req); err != nil {
		return err
	}
	if len(req.IDs) == 0 {
		return errs.BadRequest("ids required")
	}
	if err := d.Store.SoftDeleteFaceDescriptors(c.Context(), req.IDs); err != nil {
		return errs.Persistence("delete descriptors failed", err)
	}
	return nil
}

func (d *FRSDeps) handleListAllFaces(c ctx) (any, error) {
	rows, err := d.Store.ListFaceDescriptors(c.Context(), c.idGroup)
	if err != nil {
		return nil, errs.Persistence("list descriptors failed", err)
	}
	return rows, nil
}

func (d *FRSDeps) handleTestImage(c ctx) (any, error) {
	var req frameTaskReq
	if err := c.bind(&req); err != nil {
		return nil, err
	}
	res, _, err := d.runPipelineTask(c, pipeline.TaskTest, req.VStreamExt, req.FrameURL, req.Rect)
	if err != nil {
		return nil, err
	}
	return res.Faces, nil
}

func (d *FRSDeps) handleProcessFrame(c ctx) (any, error) {
	var req frameTaskReq
	if err := c.bind(&req); err != nil {
		return nil, err
	}
	res, _, err := d.runPipelineTask(c, pipeline.TaskProcessFrame, req.VStreamExt, req.FrameURL, req.Rect)
	if err != nil {
		return nil, err
	}
	return map[string]any{"idDescriptors": res.IDDescriptors}, nil
}

func (d *FRSDeps) handleAddSpecialGroup(c ctx) error {
	var req specialGroupReq
	if err := c.bind(&req); err != nil {
		return err
	}
	_, err := d.Store.CreateSpecialGroup(c.Context(), model.SpecialGroup{
		IDGroup: c.idGroup, GroupName: req.GroupName, CallbackURL: req.CallbackURL,
		MaxDescriptorCnt: req.MaxDescriptorCnt,
	})
	if err != nil {
		return errs.Persistence("create special group failed", err)
	}
	return nil
}

func (d *FRSDeps) handleUpdateSpecialGroup(c ctx) error {
	var req struct {
		IDSpecialGroup int32  `json:"idSpecialGroup"`
		CallbackURL    string `json:"callbackUrl"`
	}
	if err := c.bind(&req); err != nil {
		return err
	}
	if err := d.Store.UpdateSpecialGroup(c.Context(), req.IDSpecialGroup, req.CallbackURL); err != nil {
		return errs.Persistence("update special group failed", err)
	}
	return nil
}

func (d *FRSDeps) handleDeleteSpecialGroup(c ctx) error {
	var req struct {
		IDSpecialGroup int32 `json:"idSpecialGroup"`
	}
	if err := c.bind(&req); err != nil {
		return err
	}
	if err := d.Store.DeleteSpecialGroup(c.Context(), req.IDSpecialGroup); err != nil {
		return errs.Persistence("delete special group failed", err)
	}
	return nil
}

func (d *FRSDeps) handleListSpecialGroups(c ctx) (any, error) {
	ids := d.SGroups.TenantGroups(c.idGroup)
	out := make([]model.SpecialGroup, 0, len(ids))
	for _, id := range ids {
		if sg, ok := d.SGroups.Get(id); ok {
			out = append(out, sg)
		}
	}
	return out, nil
}

type dnnStatsReq struct {
	Model        string  `json:"model"`
	Calls        int64   `json:"calls"`
	Errors       int64   `json:"errors"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
}

// handleSaveDNNStats merges an externally-reported per-model call summary
// into the shared DNN statistics registry (spec §4.2: "per-model call
// count, error count, average latency").
func (d *FRSDeps) handleSaveDNNStats(c ctx) error {
	var req dnnStatsReq
	if err := c.bind(&req); err != nil {
		return err
	}
	if req.Model == "" {
		return errs.BadRequest("model is required")
	}
	d.DNNStats.Merge(req.Model, req.Calls, req.Errors, req.AvgLatencyMs)
	return nil
}

func (d *FRSDeps) handleSetCommonConfig(c ctx) error {
	var values map[string]any
	if err := c.bind(&values); err != nil {
		return err
	}
	if err := d.Store.SetTenantConfig(c.Context(), c.idGroup, values); err != nil {
		return errs.Persistence("set common config failed", err)
	}
	return nil
}

func (d *FRSDeps) handleGetCommonConfig(c ctx) (any, error) {
	return d.TenantConfigs.Get(c.idGroup), nil
}

func (d *FRSDeps) handleSetStreamConfig(c ctx) error {
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

func (d *FRSDeps) handleGetStreamConfig(c ctx) (any, error) {
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

// -- sg namespace (spec §6: authenticated via a special-group token rather
// than the tenant bearer token; c.sGroup carries the resolved group id) --

func (d *FRSDeps) handleSGRegisterFace(c ctx) (any, error) {
	var req addFacesReq
	if err := c.bind(&req); err != nil {
		return nil, err
	}
	sgID := c.sGroup
	task := pipeline.TaskData{Type: pipeline.TaskRegisterDescriptor, IDGroup: c.idGroup, IDSGroup: &sgID, Hint: req.Rect, FrameURL: req.FrameURL}
	cfg := d.TenantConfigs.Get(c.idGroup)
	res := d.Pipeline.Process(c.Context(), task, 0, "", cfg, d.CaptureTimeout, d.MaxRetries)
	if res.Err != nil {
		return nil, errs.Internal("sg register face failed", res.Err)
	}
	if res.BestFace == nil {
		return map[string]any{"comments": res.Comments}, nil
	}
	raw := cache.Float32ToBytes(res.BestFace.Descriptor)
	id, err := d.Store.CreateFaceDescriptor(c.Context(), c.idGroup, raw, nil)
	if err != nil {
		return nil, errs.Persistence("create descriptor failed", err)
	}
	if err := d.Store.AddSpecialGroupLink(c.Context(), sgID, id); err != nil {
		return nil, errs.Persistence("link to special group failed", err)
	}
	return map[string]any{"idDescriptor": id}, nil
}

func (d *FRSDeps) handleSGDeleteFaces(c ctx) error {
	var req removeFacesReq
	if err := c.bind(&req); err != nil {
		return err
	}
	for _, id := range req.IDs {
		if err := d.Store.RemoveSpecialGroupLink(c.Context(), c.sGroup, id); err != nil {
			return errs.Persistence("unlink special group descriptor failed", err)
		}
	}
	return nil
}

func (d *FRSDeps) handleSGListFaces(c ctx) (any, error) {
	ids := d.SGroupLinks.Snapshot(c.sGroup)
	out := make([]int32, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out, nil
}

func (d *FRSDeps) handleSGUpdateGroup(c ctx) error {
	var req struct {
		CallbackURL string `json:"callbackUrl"`
	}
	if err := c.bind(&req); err != nil {
		return err
	}
	if err := d.Store.UpdateSpecialGroup(c.Context(), c.sGroup, req.CallbackURL); err != nil {
		return errs.Persistence("sg update group failed", err)
	}
	return nil
}

func (d *FRSDeps) handleSGRenewToken(c ctx) error {
	newToken := generateToken()
	if err := d.Store.RenewSpecialGroupToken(c.Context(), c.sGroup, newToken); err != nil {
		return errs.Persistence("renew sg token failed", err)
	}
	return nil
}

func (d *FRSDeps) handleSGSearchFaces(c ctx) (any, error) {
	var req struct {
		FrameURL string     `json:"frameUrl"`
		Rect     *geom.Rect `json:"rect"`
	}
	if err := c.bind(&req); err != nil {
		return nil, err
	}
	sgID := c.sGroup
	task := pipeline.TaskData{Type: pipeline.TaskProcessFrame, IDGroup: c.idGroup, IDSGroup: &sgID, FrameURL: req.FrameURL}
	cfg := d.TenantConfigs.Get(c.idGroup)
	res := d.Pipeline.Process(c.Context(), task, 0, "", cfg, d.CaptureTimeout, d.MaxRetries)
	if res.Err != nil {
		return nil, errs.Internal("sg search faces failed", res.Err)
	}
	return map[string]any{"idDescriptors": res.IDDescriptors}, nil
}

// generateToken mints a new sg API token: 16 bytes from crypto/rand,
// hex-encoded to 32 characters. Grounded on the teacher's
// infrastructure/crypto random-token helper shape, reused here rather than
// reinvented.
func generateToken() string {
	return newRandomHex(16)
}
