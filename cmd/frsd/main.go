// Command frsd is the FRS composition root (spec §9): it owns the store,
// caches, scheduler, and pipeline, and wires them together in dependency
// order before serving the admin HTTP API. Grounded on the teacher's
// cmd/service-layer/main.go startup sequence (config.Load -> logging.New ->
// store.Open -> background pollers -> http.ListenAndServe ->
// signal-driven graceful shutdown).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rosteleset/falprs-go/internal/cache"
	"github.com/rosteleset/falprs-go/internal/config"
	"github.com/rosteleset/falprs-go/internal/errs"
	"github.com/rosteleset/falprs-go/internal/events"
	"github.com/rosteleset/falprs-go/internal/httpapi"
	"github.com/rosteleset/falprs-go/internal/inference"
	"github.com/rosteleset/falprs-go/internal/logging"
	"github.com/rosteleset/falprs-go/internal/maintenance"
	"github.com/rosteleset/falprs-go/internal/metrics"
	"github.com/rosteleset/falprs-go/internal/pipeline"
	"github.com/rosteleset/falprs-go/internal/scheduler"
	"github.com/rosteleset/falprs-go/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("APP_ENV"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		log.WithError(err).Fatal("store open failed")
	}
	defer db.Close()

	// Caches (spec §4.1): start their pollers before anything reads them.
	tokens := cache.NewTokenCache(db, log)
	tenantConfigs := cache.NewTenantConfigCache(db, log)
	streams := cache.NewStreamConfigCache(db, log)
	descriptors := cache.NewDescriptorCache(db, log, 512)
	streamLinks := cache.NewLinkCache()
	sgroupLinks := cache.NewLinkCache()
	sgroups := cache.NewSpecialGroupCache(db, log)

	tokens.Refresh(ctx)
	tenantConfigs.Refresh(ctx)
	streams.Refresh(ctx)
	descriptors.Refresh(ctx)
	sgroups.Refresh(ctx)
	refreshStreamLinks(ctx, db, streamLinks)
	refreshSGroupLinks(ctx, db, sgroupLinks)

	go cache.Poller(ctx, cfg.Cache.FullRefreshEvery, tokens.Refresh)
	go cache.Poller(ctx, cfg.Cache.FullRefreshEvery, tenantConfigs.Refresh)
	go cache.Poller(ctx, cfg.Cache.FullRefreshEvery, sgroups.Refresh)
	go cache.Poller(ctx, cfg.Cache.IncrementalRefreshEvery, streams.Refresh)
	go cache.Poller(ctx, cfg.Cache.IncrementalRefreshEvery, descriptors.Refresh)
	go cache.Poller(ctx, cfg.Cache.IncrementalRefreshEvery, func(ctx context.Context) { refreshStreamLinks(ctx, db, streamLinks) })
	go cache.Poller(ctx, cfg.Cache.IncrementalRefreshEvery, func(ctx context.Context) { refreshSGroupLinks(ctx, db, sgroupLinks) })

	// Inference + pipeline.
	dnnStats := metrics.NewDNNStats()
	infer := inference.NewAdapter(cfg.Inference.Timeout, dnnStats)
	engine := pipeline.NewFRSEngine(infer, log)
	ring := pipeline.NewUnknownDescriptorRing()

	dispatcher := events.NewDispatcher(db, log, cfg.Storage.ScreenshotsPath, cfg.Storage.ScreenshotsURLPrefix, cfg.Capture.CallbackTimeout)

	frsDeps := &pipeline.FRSDeps{
		Descriptors: descriptors, StreamLinks: streamLinks, SGroupLinks: sgroupLinks, SGroups: sgroups,
		Ring: ring, Engine: engine, Sink: dispatcher, Log: log,
	}

	sched := scheduler.New(makeIterationFunc(frsDeps, streams, tenantConfigs, cfg), log)

	runner := maintenance.New(db, log, maintenance.Config{
		FlagDeletedSpec: cfg.Maintenance.FlagDeletedSweepEvery, FlagDeletedTTL: cfg.Maintenance.FlagDeletedTTL,
		OldLogsSpec: cfg.Maintenance.OldLogsSweepEvery, LogFacesTTL: cfg.Maintenance.LogFacesTTL,
		ScreenshotsRoot: cfg.Storage.ScreenshotsPath,
		CopyEventsSpec:  cfg.Maintenance.CopyEventsSweepEvery,
		ScreenshotsPathFn: func(idGroup int32, logUUID string) (string, string) {
			suffix := fmt.Sprintf("group_%d/%s/%s/%s/%s/%s", idGroup, logUUID[0:1], logUUID[1:2], logUUID[2:3], logUUID[3:4], logUUID)
			return cfg.Storage.ScreenshotsPath + "/" + suffix + ".json", cfg.Storage.ScreenshotsPath + "/" + suffix + ".dat"
		},
		EventsRoot: cfg.Storage.EventsPath, OldEventsSpec: cfg.Maintenance.OldEventsSweepEvery, EventsTTL: cfg.Maintenance.EventsTTL,
	})
	if err := runner.Start(ctx); err != nil {
		log.WithError(err).Fatal("maintenance start failed")
	}

	server := httpapi.NewServer(tokens, httpapi.SGroupCacheAuth{Cache: sgroups}, log)
	httpapi.RegisterFRS(server, &httpapi.FRSDeps{
		Store: db, TenantConfigs: tenantConfigs, Streams: streams, Descriptors: descriptors,
		StreamLinks: streamLinks, SGroupLinks: sgroupLinks, SGroups: sgroups,
		Scheduler: sched, Pipeline: frsDeps, DNNStats: dnnStats, Log: log,
		CaptureTimeout: cfg.Capture.Timeout, MaxRetries: cfg.Capture.MaxErrorCount,
	})

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.Router(),
	}
	go func() {
		log.Infof("frsd listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	for _, key := range sched.ActiveKeys() {
		sched.StopWorkflow(key, true)
	}
	runner.Stop()
}

func refreshStreamLinks(ctx context.Context, db *store.Store, c *cache.LinkCache) {
	rows, err := db.StreamDescriptorLinksSince(ctx, c.Since())
	if err != nil {
		return
	}
	c.ApplyRows(rows)
}

func refreshSGroupLinks(ctx context.Context, db *store.Store, c *cache.LinkCache) {
	rows, err := db.SpecialGroupLinksSince(ctx, c.Since())
	if err != nil {
		return
	}
	c.ApplyRows(rows)
}

// makeIterationFunc adapts pipeline.FRSDeps.Process into the
// scheduler.IterationFunc shape for RECOGNIZE tasks (spec §4.4): key is the
// vstream_key. On success the returned delay is the tenant's
// delay-between-frames; a recoverable failure (upstream fetch or inference)
// re-arms after delay-after-error when that is positive, and any other
// failure stops the workflow.
func makeIterationFunc(deps *pipeline.FRSDeps, streams *cache.StreamConfigCache, tenantConfigs *cache.TenantConfigCache, cfg *config.Config) scheduler.IterationFunc {
	return func(ctx context.Context, key string) (bool, time.Duration) {
		v, ok := streams.Get(key)
		if !ok {
			return false, 0
		}
		rc := tenantConfigs.Get(v.IDGroup)
		task := pipeline.TaskData{Type: pipeline.TaskRecognize, IDGroup: v.IDGroup, VStreamKey: key, FrameURL: v.URL}
		res := deps.Process(ctx, task, v.IDVStream, v.CallbackURL, rc, cfg.Capture.Timeout, cfg.Capture.MaxErrorCount)
		if res.Err != nil {
			if e, ok := errs.As(res.Err); ok && e.Kind.Recoverable() && rc.DelayAfterError > 0 {
				return true, rc.DelayAfterError
			}
			return false, 0
		}
		return true, rc.DelayBetweenFrames
	}
}
