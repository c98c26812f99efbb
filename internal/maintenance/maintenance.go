// Package maintenance runs the four periodic sweep jobs of spec §4.6 on
// robfig/cron/v3 schedules. The teacher declares robfig/cron/v3 in go.mod
// but never calls it from any visible package; we wire it in for real here
// since spec §4.6 is exactly cron's problem (DESIGN.md).
package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	"github.com/rosteleset/falprs-go/internal/logging"
	"github.com/rosteleset/falprs-go/internal/model"
	"github.com/rosteleset/falprs-go/internal/store"
)

// purgeableExtensions are the screenshot-tree file extensions eligible for
// the old-logs sweep (spec §4.6.2).
var purgeableExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true,
	".ppm": true, ".tiff": true, ".dat": true, ".json": true,
}

// Config holds the four job intervals/TTLs plus the filesystem roots they
// sweep.
type Config struct {
	FlagDeletedSpec string
	FlagDeletedTTL  time.Duration

	OldLogsSpec   string
	LogFacesTTL   time.Duration
	ScreenshotsRoot string

	CopyEventsSpec string
	ScreenshotsPathFn func(idGroup int32, logUUID string) (jsonPath, datPath string)
	EventsRoot     string

	OldEventsSpec string
	EventsTTL     time.Duration
}

// Runner owns the cron scheduler and the store handle every job reads/writes.
type Runner struct {
	cron *cron.Cron
	st   *store.Store
	log  *logging.Logger
	cfg  Config

	mu      sync.Mutex
	running map[string]bool
}

func New(st *store.Store, log *logging.Logger, cfg Config) *Runner {
	return &Runner{cron: cron.New(), st: st, log: log, cfg: cfg, running: map[string]bool{}}
}

// Start registers all four jobs and starts the cron scheduler. Missing an
// iteration because one is still running is acceptable (spec §4.6: "do not
// queue") — each job guards itself with the running map.
func (r *Runner) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context)
	}{
		{"flag-deleted-sweep", r.cfg.FlagDeletedSpec, r.flagDeletedSweep},
		{"old-logs-sweep", r.cfg.OldLogsSpec, r.oldLogsSweep},
		{"copy-events-sweep", r.cfg.CopyEventsSpec, r.copyEventsSweep},
		{"old-events-sweep", r.cfg.OldEventsSpec, r.oldEventsSweep},
	}
	for _, j := range jobs {
		name := j.name
		fn := j.fn
		if _, err := r.cron.AddFunc(j.spec, func() { r.guarded(ctx, name, fn) }); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
	}
	r.cron.Start()
	return nil
}

func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Runner) guarded(ctx context.Context, name string, fn func(context.Context)) {
	r.mu.Lock()
	if r.running[name] {
		r.mu.Unlock()
		return
	}
	r.running[name] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running[name] = false
		r.mu.Unlock()
	}()
	fn(ctx)
}

// flagDeletedSweep implements spec §4.6.1.
func (r *Runner) flagDeletedSweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.FlagDeletedTTL)
	if err := r.st.PurgeFlagDeleted(ctx, cutoff); err != nil {
		r.log.WithError(err).Error("flag-deleted sweep failed")
	}
}

// oldLogsSweep implements spec §4.6.2: delete old log rows, then walk the
// screenshot tree deleting matching-extension files older than the cutoff.
func (r *Runner) oldLogsSweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.LogFacesTTL)
	n, err := r.st.PurgeOldLogFaces(ctx, cutoff)
	if err != nil {
		r.log.WithError(err).Error("old logs sweep (db) failed")
		return
	}
	if n == 0 && r.cfg.ScreenshotsRoot == "" {
		return
	}
	sweepFiles(r.cfg.ScreenshotsRoot, cutoff, r.log)
}

func sweepFiles(root string, cutoff time.Time, log *logging.Logger) {
	if root == "" {
		return
	}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best-effort: skip unreadable entries
		}
		if info.IsDir() {
			return nil
		}
		if !purgeableExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if rmErr := os.Remove(path); rmErr != nil {
				log.WithError(rmErr).Warnf("remove %s failed", path)
			}
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("filesystem sweep walk failed")
	}
}

// copyEventsSweep implements spec §4.6.3: materialize SCHEDULED log rows
// into the durable event tree, one transaction per row, continuing past
// any row's failure.
func (r *Runner) copyEventsSweep(ctx context.Context) {
	rows, err := r.st.ScheduledCopyData(ctx)
	if err != nil {
		r.log.WithError(err).Error("copy-events sweep: list scheduled rows failed")
		return
	}
	for _, row := range rows {
		if err := r.copyOneRow(ctx, row); err != nil {
			r.log.WithError(err).Warnf("copy-events sweep: row %d failed, continuing", row.IDLog)
		}
	}
}

func (r *Runner) copyOneRow(ctx context.Context, row model.LogFace) error {
	srcJSON, srcDat := r.cfg.ScreenshotsPathFn(idGroupFromScreenshotURL(row.ScreenshotURL), row.LogUUID)

	jsonBytes, err := os.ReadFile(srcJSON)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return err
	}
	doc["event_uuid"] = row.ExtEventUUID
	outJSON, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	idGroup := idGroupFromScreenshotURL(row.ScreenshotURL)
	dstDir := filepath.Join(r.cfg.EventsRoot, fmt.Sprintf("group_%d", idGroup))
	dstJSON := filepath.Join(dstDir, row.ExtEventUUID+".json")
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dstJSON, outJSON, 0o666); err != nil {
		return err
	}

	datBytes, err := os.ReadFile(srcDat)
	if err == nil {
		dailyPath := filepath.Join(dstDir, time.Now().Format("2006-01-02")+".dat")
		f, openErr := os.OpenFile(dailyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
		if openErr != nil {
			return openErr
		}
		_, writeErr := f.Write(datBytes)
		f.Close()
		if writeErr != nil {
			return writeErr
		}
	}

	return r.st.WithTx(ctx, func(tx *sqlx.Tx) error {
		return r.st.MarkCopyDone(ctx, tx, row.IDLog)
	})
}

// idGroupFromScreenshotURL extracts the "group_<gid>" segment written by
// events.screenshotSuffix (spec §6 filesystem layout).
func idGroupFromScreenshotURL(url string) int32 {
	idx := strings.Index(url, "group_")
	if idx < 0 {
		return 0
	}
	rest := url[idx+len("group_"):]
	end := strings.IndexByte(rest, '/')
	if end < 0 {
		end = len(rest)
	}
	var id int32
	fmt.Sscanf(rest[:end], "%d", &id)
	return id
}

// oldEventsSweep implements spec §4.6.4.
func (r *Runner) oldEventsSweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.EventsTTL)
	sweepFiles(r.cfg.EventsRoot, cutoff, r.log)
}
