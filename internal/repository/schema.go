package repository

import "fmt"

const schemaJamSessions = `
CREATE TABLE IF NOT EXISTS jam_sessions (
	id TEXT PRIMARY KEY,
	host_user_id TEXT NOT NULL,
	seed_type TEXT NOT NULL DEFAULT '',
	seed_id TEXT NOT NULL DEFAULT '',
	allow_controls INTEGER NOT NULL DEFAULT 1,
	queue_version INTEGER NOT NULL DEFAULT 0 CHECK (queue_version >= 0),
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`

const schemaJamParticipants = `
CREATE TABLE IF NOT EXISTS jam_participants (
	jam_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'guest',
	joined_at INTEGER NOT NULL,
	PRIMARY KEY (jam_id, user_id),
	FOREIGN KEY (jam_id) REFERENCES jam_sessions(id) ON DELETE CASCADE
);`

const schemaJamQueueItems = `
CREATE TABLE IF NOT EXISTS jam_queue_items (
	queue_item_id TEXT PRIMARY KEY,
	jam_id TEXT NOT NULL,
	position INTEGER NOT NULL CHECK (position >= 0),
	added_by TEXT NOT NULL DEFAULT '',
	track_id TEXT NOT NULL,
	track_name TEXT NOT NULL,
	artist TEXT NOT NULL,
	artist_id TEXT NOT NULL DEFAULT '',
	album TEXT NOT NULL,
	album_id TEXT NOT NULL DEFAULT '',
	album_cover TEXT NOT NULL DEFAULT '',
	duration INTEGER NOT NULL DEFAULT 0,
	audio TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (jam_id) REFERENCES jam_sessions(id) ON DELETE CASCADE
);`

const schemaJamQueueIndexes = `
CREATE INDEX IF NOT EXISTS idx_jam_queue_items_position ON jam_queue_items(jam_id, position);
CREATE INDEX IF NOT EXISTS idx_jam_queue_items_track ON jam_queue_items(jam_id, track_id);`

const schemaJamPlayback = `
CREATE TABLE IF NOT EXISTS jam_playback (
	jam_id TEXT PRIMARY KEY,
	position INTEGER NOT NULL DEFAULT 0,
	offset_ms INTEGER NOT NULL DEFAULT 0,
	is_playing INTEGER NOT NULL DEFAULT 0,
	track_id TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (jam_id) REFERENCES jam_sessions(id) ON DELETE CASCADE
);`

var schemaStatements = []string{
	schemaJamSessions,
	schemaJamParticipants,
	schemaJamQueueItems,
	schemaJamQueueIndexes,
	schemaJamPlayback,
}

func (r *sqliteJamRepo) migrate() error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("repository: migrate schema: %w", err)
		}
	}
	return nil
}
