// Command lprsd is the LPRS composition root (spec §9), mirroring cmd/frsd's
// startup sequence but with the narrower dependency set LPRS needs: no
// descriptor gallery, no special groups, and an explicit start/stop
// workflow surface instead of FRS's implicit motion/door trigger.
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

	tokens := cache.NewTokenCache(db, log)
	tenantConfigs := cache.NewTenantConfigCache(db, log)
	streams := cache.NewStreamConfigCache(db, log)

	tokens.Refresh(ctx)
	tenantConfigs.Refresh(ctx)
	streams.Refresh(ctx)

	go cache.Poller(ctx, cfg.Cache.FullRefreshEvery, tokens.Refresh)
	go cache.Poller(ctx, cfg.Cache.FullRefreshEvery, tenantConfigs.Refresh)
	go cache.Poller(ctx, cfg.Cache.IncrementalRefreshEvery, streams.Refresh)

	dnnStats := metrics.NewDNNStats()
	infer := inference.NewAdapter(cfg.Inference.Timeout, dnnStats)
	engine := pipeline.NewLPRSEngine(infer, log)
	bans := pipeline.NewBanTracker()

	dispatcher := events.NewDispatcher(db, log, cfg.Storage.ScreenshotsPath, cfg.Storage.ScreenshotsURLPrefix, cfg.Capture.CallbackTimeout)

	lprsDeps := &pipeline.LPRSDeps{Engine: engine, Bans: bans, Sink: dispatcher, Log: log}

	sched := scheduler.New(makeIterationFunc(lprsDeps, streams, tenantConfigs, cfg), log)

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

	server := httpapi.NewServer(tokens, httpapi.NoSGroupAuth{}, log)
	httpapi.RegisterLPRS(server, &httpapi.LPRSDeps{
		Store: db, TenantConfigs: tenantConfigs, Streams: streams, Scheduler: sched, Pipeline: lprsDeps, Log: log,
		CaptureTimeout: cfg.Capture.Timeout, MaxRetries: cfg.Capture.MaxErrorCount,
	})

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.Router(),
	}
	go func() {
		log.Infof("lprsd listening on %s", httpSrv.Addr)
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

// makeIterationFunc adapts pipeline.LPRSDeps.Process into the scheduler
// shape. LPRS workflows only run between an explicit startWorkflow and
// stopWorkflow call (spec §4.4), so unlike FRS there is no motion/door
// implicit-start path here — only the scheduler loop itself.
func makeIterationFunc(deps *pipeline.LPRSDeps, streams *cache.StreamConfigCache, tenantConfigs *cache.TenantConfigCache, cfg *config.Config) scheduler.IterationFunc {
	return func(ctx context.Context, key string) (bool, time.Duration) {
		v, ok := streams.Get(key)
		if !ok {
			return false, 0
		}
		rc := tenantConfigs.Get(v.IDGroup)
		task := pipeline.TaskData{Type: pipeline.TaskRecognize, IDGroup: v.IDGroup, VStreamKey: key, FrameURL: v.URL}
		_ = deps.Process(ctx, task, v.IDVStream, v.CallbackURL, rc, cfg.Capture.Timeout, cfg.Capture.MaxErrorCount)
		return true, rc.DelayBetweenFrames
	}
}
