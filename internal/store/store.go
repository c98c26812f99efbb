// Package store implements the spec §3 relational schema on Postgres via
// sqlx/lib-pq, following the teacher's explicit-SQL repository pattern
// (packages/com.r3e.services.automation/store_postgres.go).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rosteleset/falprs-go/internal/errs"
	"github.com/rosteleset/falprs-go/internal/geom"
	"github.com/rosteleset/falprs-go/internal/model"
)

// Store wraps the Postgres connection pool and every query the cache layer,
// admin HTTP surface, and maintenance jobs need.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn, applies the schema, and configures the pool.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errs.Persistence("connect to postgres", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, errs.Persistence("apply schema", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside a transaction, rolling back on any error it returns
// (spec §5: "on any thrown error the transaction is rolled back before the
// error is surfaced").
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errs.Persistence("begin tx", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Persistence("commit tx", err)
	}
	return nil
}

// ---------------------------------------------------------------------
// Tenant token cache source (full refresh)
// ---------------------------------------------------------------------

// TenantTokenRow is one row of the tenant-token cache query.
type TenantTokenRow struct {
	IDGroup   int32  `db:"id_group"`
	AuthToken string `db:"auth_token"`
}

func (s *Store) AllTenantTokens(ctx context.Context) ([]TenantTokenRow, error) {
	var rows []TenantTokenRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id_group, auth_token FROM groups`)
	if err != nil {
		return nil, errs.Persistence("select tenant tokens", err)
	}
	return rows, nil
}

// ---------------------------------------------------------------------
// Tenant common+default config (full refresh)
// ---------------------------------------------------------------------

type TenantConfigRow struct {
	IDGroup int32  `db:"id_group"`
	Config  []byte `db:"config"`
}

func (s *Store) AllTenantConfigs(ctx context.Context) ([]model.TenantConfig, error) {
	var rows []TenantConfigRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id_group, config FROM tenant_config`)
	if err != nil {
		return nil, errs.Persistence("select tenant configs", err)
	}
	out := make([]model.TenantConfig, 0, len(rows))
	for _, r := range rows {
		values := map[string]any{}
		_ = json.Unmarshal(r.Config, &values)
		out = append(out, model.TenantConfig{IDGroup: r.IDGroup, Values: values})
	}
	return out, nil
}

func (s *Store) SetTenantConfig(ctx context.Context, idGroup int32, values map[string]any) error {
	data, err := json.Marshal(values)
	if err != nil {
		return errs.Internal("marshal tenant config", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenant_config (id_group, config, last_updated) VALUES ($1, $2, now())
		ON CONFLICT (id_group) DO UPDATE SET config = $2, last_updated = now()
	`, idGroup, data)
	if err != nil {
		return errs.Persistence("upsert tenant config", err)
	}
	return nil
}

// ---------------------------------------------------------------------
// Per-stream config (incremental by last_updated)
// ---------------------------------------------------------------------

type VStreamRow struct {
	IDVStream   int32     `db:"id_vstream"`
	IDGroup     int32     `db:"id_group"`
	VStreamExt  string    `db:"vstream_ext"`
	URL         string    `db:"url"`
	CallbackURL string    `db:"callback_url"`
	Config      []byte    `db:"config"`
	FlagDeleted bool      `db:"flag_deleted"`
	LastUpdated time.Time `db:"last_updated"`
}

func (s *Store) VStreamsSince(ctx context.Context, since time.Time) ([]model.VStream, error) {
	var rows []VStreamRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id_vstream, id_group, vstream_ext, url, callback_url, config, flag_deleted, last_updated
		FROM video_streams WHERE last_updated > $1
	`, since)
	if err != nil {
		return nil, errs.Persistence("select vstreams since", err)
	}
	return toVStreams(rows), nil
}

func toVStreams(rows []VStreamRow) []model.VStream {
	out := make([]model.VStream, 0, len(rows))
	for _, r := range rows {
		cfg := map[string]any{}
		_ = json.Unmarshal(r.Config, &cfg)
		out = append(out, model.VStream{
			IDVStream: r.IDVStream, IDGroup: r.IDGroup, VStreamExt: r.VStreamExt,
			URL: r.URL, CallbackURL: r.CallbackURL, Config: cfg,
			FlagDeleted: r.FlagDeleted, LastUpdated: r.LastUpdated,
		})
	}
	return out
}

func (s *Store) CreateVStream(ctx context.Context, v model.VStream) (model.VStream, error) {
	cfgBytes, _ := json.Marshal(v.Config)
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO video_streams (id_group, vstream_ext, url, callback_url, config)
		VALUES ($1, $2, $3, $4, $5) RETURNING id_vstream, last_updated
	`, v.IDGroup, v.VStreamExt, v.URL, v.CallbackURL, cfgBytes)
	if err := row.Scan(&v.IDVStream, &v.LastUpdated); err != nil {
		return model.VStream{}, errs.Persistence("insert vstream", err)
	}
	return v, nil
}

func (s *Store) GetVStream(ctx context.Context, idGroup int32, vstreamExt string) (model.VStream, error) {
	var r VStreamRow
	err := s.db.GetContext(ctx, &r, `
		SELECT id_vstream, id_group, vstream_ext, url, callback_url, config, flag_deleted, last_updated
		FROM video_streams WHERE id_group = $1 AND vstream_ext = $2 AND NOT flag_deleted
	`, idGroup, vstreamExt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.VStream{}, errs.NotFound("stream not found")
		}
		return model.VStream{}, errs.Persistence("select vstream", err)
	}
	vs := toVStreams([]VStreamRow{r})
	return vs[0], nil
}

func (s *Store) ListVStreams(ctx context.Context, idGroup int32) ([]model.VStream, error) {
	var rows []VStreamRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id_vstream, id_group, vstream_ext, url, callback_url, config, flag_deleted, last_updated
		FROM video_streams WHERE id_group = $1 AND NOT flag_deleted ORDER BY id_vstream
	`, idGroup)
	if err != nil {
		return nil, errs.Persistence("list vstreams", err)
	}
	return toVStreams(rows), nil
}

func (s *Store) SoftDeleteVStream(ctx context.Context, idVStream int32) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE video_streams SET flag_deleted = true, last_updated = now() WHERE id_vstream = $1
	`, idVStream)
	if err != nil {
		return errs.Persistence("soft delete vstream", err)
	}
	return nil
}

func (s *Store) UpdateVStreamConfig(ctx context.Context, idVStream int32, values map[string]any) error {
	data, err := json.Marshal(values)
	if err != nil {
		return errs.Internal("marshal vstream config", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE video_streams SET config = $2, last_updated = now() WHERE id_vstream = $1
	`, idVStream, data)
	if err != nil {
		return errs.Persistence("update vstream config", err)
	}
	return nil
}

// ---------------------------------------------------------------------
// Face descriptor cache (incremental)
// ---------------------------------------------------------------------

type FaceDescriptorRow struct {
	IDDescriptor int32     `db:"id_descriptor"`
	IDGroup      int32     `db:"id_group"`
	Vector       []byte    `db:"vector"`
	IDParent     *int32    `db:"id_parent"`
	FlagDeleted  bool      `db:"flag_deleted"`
	LastUpdated  time.Time `db:"last_updated"`
}

func (s *Store) FaceDescriptorsSince(ctx context.Context, since time.Time) ([]FaceDescriptorRow, error) {
	var rows []FaceDescriptorRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id_descriptor, id_group, vector, id_parent, flag_deleted, last_updated
		FROM face_descriptors WHERE last_updated > $1
	`, since)
	if err != nil {
		return nil, errs.Persistence("select face descriptors since", err)
	}
	return rows, nil
}

func (s *Store) CreateFaceDescriptor(ctx context.Context, idGroup int32, raw []byte, idParent *int32) (int32, error) {
	var id int32
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO face_descriptors (id_group, vector, id_parent) VALUES ($1, $2, $3)
		RETURNING id_descriptor
	`, idGroup, raw, idParent)
	if err := row.Scan(&id); err != nil {
		return 0, errs.Persistence("insert face descriptor", err)
	}
	return id, nil
}

func (s *Store) SoftDeleteFaceDescriptors(ctx context.Context, ids []int32) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE face_descriptors SET flag_deleted = true, last_updated = now() WHERE id_descriptor = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return errs.Persistence("soft delete face descriptors", err)
	}
	return nil
}

func (s *Store) ListFaceDescriptors(ctx context.Context, idGroup int32) ([]FaceDescriptorRow, error) {
	var rows []FaceDescriptorRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id_descriptor, id_group, vector, id_parent, flag_deleted, last_updated
		FROM face_descriptors WHERE id_group = $1 AND NOT flag_deleted
	`, idGroup)
	if err != nil {
		return nil, errs.Persistence("list face descriptors", err)
	}
	return rows, nil
}

// ---------------------------------------------------------------------
// Stream<->descriptor link cache (incremental)
// ---------------------------------------------------------------------

type LinkRow struct {
	A           int32     `db:"a"`
	B           int32     `db:"b"`
	FlagDeleted bool      `db:"flag_deleted"`
	LastUpdated time.Time `db:"last_updated"`
}

func (s *Store) StreamDescriptorLinksSince(ctx context.Context, since time.Time) ([]LinkRow, error) {
	var rows []LinkRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id_vstream AS a, id_descriptor AS b, flag_deleted, last_updated
		FROM stream_descriptor_links WHERE last_updated > $1
	`, since)
	if err != nil {
		return nil, errs.Persistence("select stream links since", err)
	}
	return rows, nil
}

func (s *Store) AddStreamDescriptorLink(ctx context.Context, idVStream, idDescriptor int32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stream_descriptor_links (id_vstream, id_descriptor, last_updated)
		VALUES ($1, $2, now())
		ON CONFLICT (id_vstream, id_descriptor) DO UPDATE SET flag_deleted = false, last_updated = now()
	`, idVStream, idDescriptor)
	if err != nil {
		return errs.Persistence("link stream descriptor", err)
	}
	return nil
}

func (s *Store) RemoveStreamDescriptorLink(ctx context.Context, idVStream, idDescriptor int32) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE stream_descriptor_links SET flag_deleted = true, last_updated = now()
		WHERE id_vstream = $1 AND id_descriptor = $2
	`, idVStream, idDescriptor)
	if err != nil {
		return errs.Persistence("unlink stream descriptor", err)
	}
	return nil
}

// ---------------------------------------------------------------------
// Special group config + links
// ---------------------------------------------------------------------

type SpecialGroupRow struct {
	IDSpecialGroup   int32  `db:"id_special_group"`
	IDGroup          int32  `db:"id_group"`
	GroupName        string `db:"group_name"`
	SgAPIToken       string `db:"sg_api_token"`
	CallbackURL      string `db:"callback_url"`
	MaxDescriptorCnt int    `db:"max_descriptor_count"`
	FlagDeleted      bool   `db:"flag_deleted"`
}

func (s *Store) AllSpecialGroups(ctx context.Context) ([]SpecialGroupRow, error) {
	var rows []SpecialGroupRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id_special_group, id_group, group_name, sg_api_token, callback_url, max_descriptor_count, flag_deleted
		FROM special_groups WHERE NOT flag_deleted
	`)
	if err != nil {
		return nil, errs.Persistence("select special groups", err)
	}
	return rows, nil
}

func (s *Store) CreateSpecialGroup(ctx context.Context, g model.SpecialGroup) (model.SpecialGroup, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO special_groups (id_group, group_name, sg_api_token, callback_url, max_descriptor_count)
		VALUES ($1, $2, $3, $4, $5) RETURNING id_special_group
	`, g.IDGroup, g.GroupName, g.SgAPIToken, g.CallbackURL, g.MaxDescriptorCnt)
	if err := row.Scan(&g.IDSpecialGroup); err != nil {
		return model.SpecialGroup{}, errs.Persistence("insert special group", err)
	}
	return g, nil
}

// UpdateSpecialGroup applies the callback-url-only update. Spec §9 flags the
// original SQL_SG_UPDATE_GROUP as syntactically invalid ("set set callback_url
// = $2"); behavior was therefore never exercised upstream. We implement the
// evidently-intended statement and record this as a documented ambiguity
// rather than guessing further (DESIGN.md).
func (s *Store) UpdateSpecialGroup(ctx context.Context, idSpecialGroup int32, callbackURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE special_groups SET callback_url = $2 WHERE id_special_group = $1
	`, idSpecialGroup, callbackURL)
	if err != nil {
		return errs.Persistence("update special group", err)
	}
	return nil
}

func (s *Store) RenewSpecialGroupToken(ctx context.Context, idSpecialGroup int32, newToken string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE special_groups SET sg_api_token = $2 WHERE id_special_group = $1
	`, idSpecialGroup, newToken)
	if err != nil {
		return errs.Persistence("renew special group token", err)
	}
	return nil
}

func (s *Store) DeleteSpecialGroup(ctx context.Context, idSpecialGroup int32) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE special_groups SET flag_deleted = true, last_updated = now() WHERE id_special_group = $1
	`, idSpecialGroup)
	if err != nil {
		return errs.Persistence("delete special group", err)
	}
	return nil
}

func (s *Store) SpecialGroupLinksSince(ctx context.Context, since time.Time) ([]LinkRow, error) {
	var rows []LinkRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id_sgroup AS a, id_descriptor AS b, flag_deleted, last_updated
		FROM special_group_links WHERE last_updated > $1
	`, since)
	if err != nil {
		return nil, errs.Persistence("select special group links since", err)
	}
	return rows, nil
}

func (s *Store) AddSpecialGroupLink(ctx context.Context, idSGroup, idDescriptor int32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO special_group_links (id_sgroup, id_descriptor, last_updated)
		VALUES ($1, $2, now())
		ON CONFLICT (id_sgroup, id_descriptor) DO UPDATE SET flag_deleted = false, last_updated = now()
	`, idSGroup, idDescriptor)
	if err != nil {
		return errs.Persistence("link special group descriptor", err)
	}
	return nil
}

func (s *Store) RemoveSpecialGroupLink(ctx context.Context, idSGroup, idDescriptor int32) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE special_group_links SET flag_deleted = true, last_updated = now()
		WHERE id_sgroup = $1 AND id_descriptor = $2
	`, idSGroup, idDescriptor)
	if err != nil {
		return errs.Persistence("unlink special group descriptor", err)
	}
	return nil
}

// ---------------------------------------------------------------------
// log_faces (FRS events)
// ---------------------------------------------------------------------

// AddLogFace writes one row in its own (implicit, single-statement)
// transaction, spec §4.5: "returning id_log (-1 on error, logged)" — the
// caller logs, this just returns the error for it to log.
func (s *Store) AddLogFace(ctx context.Context, l model.LogFace) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO log_faces (id_vstream, log_date, id_descriptor, quality, face_left, face_top, face_width, face_height, screenshot_url, log_uuid, copy_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id_log
	`, l.IDVStream, l.LogDate, l.IDDescriptor, l.Quality, l.FaceRect.Left, l.FaceRect.Top, l.FaceRect.Width, l.FaceRect.Height, l.ScreenshotURL, l.LogUUID, int(l.CopyData))
	var id int64
	if err := row.Scan(&id); err != nil {
		return -1, errs.Persistence("insert log face", err)
	}
	return id, nil
}

// BestQualityLogFace implements SQL_GET_LOG_FACE_BEST_QUALITY, whose interval
// bounds are inclusive (spec §9 open question): ">= lo AND <= hi".
func (s *Store) BestQualityLogFace(ctx context.Context, idVStream int32, lo, hi time.Time) (model.LogFace, error) {
	var r logFaceRow
	err := s.db.GetContext(ctx, &r, `
		SELECT id_log, id_vstream, log_date, id_descriptor, quality, face_left, face_top, face_width, face_height, screenshot_url, log_uuid, copy_data, ext_event_uuid
		FROM log_faces
		WHERE id_vstream = $1 AND log_date >= $2 AND log_date <= $3
		ORDER BY quality DESC LIMIT 1
	`, idVStream, lo, hi)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.LogFace{}, errs.NotFound("no log face in window")
		}
		return model.LogFace{}, errs.Persistence("select best quality log face", err)
	}
	return r.toModel(), nil
}

type logFaceRow struct {
	IDLog         int64     `db:"id_log"`
	IDVStream     int32     `db:"id_vstream"`
	LogDate       time.Time `db:"log_date"`
	IDDescriptor  *int32    `db:"id_descriptor"`
	Quality       float64   `db:"quality"`
	FaceLeft      float64   `db:"face_left"`
	FaceTop       float64   `db:"face_top"`
	FaceWidth     float64   `db:"face_width"`
	FaceHeight    float64   `db:"face_height"`
	ScreenshotURL string    `db:"screenshot_url"`
	LogUUID       string    `db:"log_uuid"`
	CopyData      int       `db:"copy_data"`
	ExtEventUUID  string    `db:"ext_event_uuid"`
}

func (r logFaceRow) toModel() model.LogFace {
	return model.LogFace{
		IDLog: r.IDLog, IDVStream: r.IDVStream, LogDate: r.LogDate, IDDescriptor: r.IDDescriptor,
		Quality: r.Quality,
		FaceRect: geom.Rect{Left: r.FaceLeft, Top: r.FaceTop, Width: r.FaceWidth, Height: r.FaceHeight},
		ScreenshotURL: r.ScreenshotURL, LogUUID: r.LogUUID, CopyData: model.CopyDataState(r.CopyData),
		ExtEventUUID: r.ExtEventUUID,
	}
}

// ScheduleCopyData flips a log row to copy_data = SCHEDULED with the given
// external uuid. No admin handler calls it: bestQuality returns the best row
// without marking it.
func (s *Store) ScheduleCopyData(ctx context.Context, idLog int64, extEventUUID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE log_faces SET copy_data = $2, ext_event_uuid = $3 WHERE id_log = $1
	`, idLog, int(model.CopyDataScheduled), extEventUUID)
	if err != nil {
		return errs.Persistence("schedule copy data", err)
	}
	return nil
}

// ScheduledCopyData returns all rows pending the copy-events maintenance
// sweep (spec §4.6.3).
func (s *Store) ScheduledCopyData(ctx context.Context) ([]model.LogFace, error) {
	var rows []logFaceRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id_log, id_vstream, log_date, id_descriptor, quality, face_left, face_top, face_width, face_height, screenshot_url, log_uuid, copy_data, ext_event_uuid
		FROM log_faces WHERE copy_data = $1
	`, int(model.CopyDataScheduled))
	if err != nil {
		return nil, errs.Persistence("select scheduled copy data", err)
	}
	out := make([]model.LogFace, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *Store) MarkCopyDone(ctx context.Context, tx *sqlx.Tx, idLog int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE log_faces SET copy_data = $2 WHERE id_log = $1`, idLog, int(model.CopyDataDone))
	if err != nil {
		return errs.Persistence("mark copy done", err)
	}
	return nil
}

// ---------------------------------------------------------------------
// event_logs (LPRS events)
// ---------------------------------------------------------------------

func (s *Store) AddEventLog(ctx context.Context, idVStream int32, info []byte) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO event_logs (id_vstream, info) VALUES ($1, $2) RETURNING id_event
	`, idVStream, info)
	var id int64
	if err := row.Scan(&id); err != nil {
		return -1, errs.Persistence("insert event log", err)
	}
	return id, nil
}

// NearestEvent implements SQL_GET_NEAREST_EVENT with strict bounds (spec §9
// open question: LPRS uses "> lo AND < hi", unlike FRS's inclusive bounds —
// preserved as-is).
type eventLogRow struct {
	IDEvent   int64     `db:"id_event"`
	IDVStream int32     `db:"id_vstream"`
	LogDate   time.Time `db:"log_date"`
	Info      []byte    `db:"info"`
}

func (s *Store) NearestEvent(ctx context.Context, idVStream int32, lo, hi time.Time) (model.EventLog, error) {
	var r eventLogRow
	err := s.db.GetContext(ctx, &r, `
		SELECT id_event, id_vstream, log_date, info FROM event_logs
		WHERE id_vstream = $1 AND log_date > $2 AND log_date < $3
		ORDER BY log_date DESC LIMIT 1
	`, idVStream, lo, hi)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.EventLog{}, errs.NotFound("no event in window")
		}
		return model.EventLog{}, errs.Persistence("select nearest event", err)
	}
	return model.EventLog{IDEvent: r.IDEvent, IDVStream: r.IDVStream, LogDate: r.LogDate, Info: r.Info}, nil
}

// ---------------------------------------------------------------------
// Maintenance queries (spec §4.6)
// ---------------------------------------------------------------------

// PurgeFlagDeleted deletes rows flagged deleted past the TTL across all five
// flag_deleted-bearing tables in one transaction.
func (s *Store) PurgeFlagDeleted(ctx context.Context, cutoff time.Time) error {
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		tables := []string{
			"video_streams", "face_descriptors", "stream_descriptor_links",
			"special_groups", "special_group_links",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(
				`DELETE FROM %s WHERE flag_deleted AND last_updated < $1`, t,
			), cutoff); err != nil {
				return errs.Persistence("purge flag deleted: "+t, err)
			}
		}
		return nil
	})
}

// PurgeOldLogFaces deletes log rows older than cutoff, returning how many
// were removed (used to decide whether a filesystem sweep is worthwhile).
func (s *Store) PurgeOldLogFaces(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM log_faces WHERE log_date < $1`, cutoff)
	if err != nil {
		return 0, errs.Persistence("purge old log faces", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
