package store

// Schema is the DDL for the six entity families in spec §3. Open applies it
// on startup via db.ExecContext; in production this would
// normally run through a migration tool, but the spec fixes this schema
// bit-exact so it is kept inline and versionless.
const Schema = `
CREATE TABLE IF NOT EXISTS groups (
	id_group    SERIAL PRIMARY KEY,
	auth_token  TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS tenant_config (
	id_group     INTEGER PRIMARY KEY REFERENCES groups(id_group),
	config       JSONB NOT NULL DEFAULT '{}',
	last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS video_streams (
	id_vstream    SERIAL PRIMARY KEY,
	id_group      INTEGER NOT NULL REFERENCES groups(id_group),
	vstream_ext   TEXT NOT NULL,
	url           TEXT NOT NULL,
	callback_url  TEXT NOT NULL DEFAULT '',
	config        JSONB NOT NULL DEFAULT '{}',
	flag_deleted  BOOLEAN NOT NULL DEFAULT false,
	last_updated  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_video_streams_ext
	ON video_streams (id_group, vstream_ext) WHERE NOT flag_deleted;

CREATE TABLE IF NOT EXISTS face_descriptors (
	id_descriptor SERIAL PRIMARY KEY,
	id_group      INTEGER NOT NULL REFERENCES groups(id_group),
	vector        BYTEA NOT NULL,
	id_parent     INTEGER REFERENCES face_descriptors(id_descriptor),
	flag_deleted  BOOLEAN NOT NULL DEFAULT false,
	last_updated  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stream_descriptor_links (
	id_vstream    INTEGER NOT NULL REFERENCES video_streams(id_vstream),
	id_descriptor INTEGER NOT NULL REFERENCES face_descriptors(id_descriptor),
	flag_deleted  BOOLEAN NOT NULL DEFAULT false,
	last_updated  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (id_vstream, id_descriptor)
);

CREATE TABLE IF NOT EXISTS special_groups (
	id_special_group    SERIAL PRIMARY KEY,
	id_group             INTEGER NOT NULL REFERENCES groups(id_group),
	group_name            TEXT NOT NULL,
	sg_api_token          TEXT NOT NULL UNIQUE,
	callback_url          TEXT NOT NULL DEFAULT '',
	max_descriptor_count  INTEGER NOT NULL DEFAULT 0,
	flag_deleted          BOOLEAN NOT NULL DEFAULT false,
	last_updated          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_special_groups_name
	ON special_groups (id_group, group_name) WHERE NOT flag_deleted;

CREATE TABLE IF NOT EXISTS special_group_links (
	id_sgroup     INTEGER NOT NULL REFERENCES special_groups(id_special_group),
	id_descriptor INTEGER NOT NULL REFERENCES face_descriptors(id_descriptor),
	flag_deleted  BOOLEAN NOT NULL DEFAULT false,
	last_updated  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (id_sgroup, id_descriptor)
);

CREATE TABLE IF NOT EXISTS log_faces (
	id_log          BIGSERIAL PRIMARY KEY,
	id_vstream      INTEGER NOT NULL REFERENCES video_streams(id_vstream),
	log_date        TIMESTAMPTZ NOT NULL DEFAULT now(),
	id_descriptor   INTEGER REFERENCES face_descriptors(id_descriptor),
	quality         DOUBLE PRECISION NOT NULL DEFAULT 0,
	face_left       DOUBLE PRECISION NOT NULL DEFAULT 0,
	face_top        DOUBLE PRECISION NOT NULL DEFAULT 0,
	face_width      DOUBLE PRECISION NOT NULL DEFAULT 0,
	face_height     DOUBLE PRECISION NOT NULL DEFAULT 0,
	screenshot_url  TEXT NOT NULL DEFAULT '',
	log_uuid        TEXT NOT NULL,
	copy_data       SMALLINT NOT NULL DEFAULT 0,
	ext_event_uuid  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS ix_log_faces_vstream_date ON log_faces (id_vstream, log_date);
CREATE INDEX IF NOT EXISTS ix_log_faces_copy_data ON log_faces (copy_data) WHERE copy_data = 1;

CREATE TABLE IF NOT EXISTS event_logs (
	id_event    BIGSERIAL PRIMARY KEY,
	id_vstream  INTEGER NOT NULL REFERENCES video_streams(id_vstream),
	log_date    TIMESTAMPTZ NOT NULL DEFAULT now(),
	info        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_event_logs_vstream_date ON event_logs (id_vstream, log_date);
`
