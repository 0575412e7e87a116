package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"jamsync/internal/model"
)

type sqliteJamRepo struct {
	db *sql.DB
}

// OpenSQLite opens an embedded database file (or ":memory:") with the pragmas
// the jam store expects.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; an in-memory database is also private to its connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("repository: %s: %w", p, err)
		}
	}
	return db, nil
}

// NewSQLiteJamRepo returns a JamRepo backed by db, creating tables as needed.
func NewSQLiteJamRepo(db *sql.DB) (JamRepo, error) {
	r := &sqliteJamRepo{db: db}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *sqliteJamRepo) CreateSession(ctx context.Context, s *model.JamSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jam_sessions (id, host_user_id, seed_type, seed_id, allow_controls, queue_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.HostUserID, s.Seed.Type, s.Seed.ID, s.AllowControls, s.QueueVersion,
		s.CreatedAt.UnixMilli(), s.UpdatedAt.UnixMilli())
	return err
}

func (r *sqliteJamRepo) GetSession(ctx context.Context, id string) (*model.JamSession, error) {
	var (
		s                model.JamSession
		created, updated int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, host_user_id, seed_type, seed_id, allow_controls, queue_version, created_at, updated_at
		FROM jam_sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.HostUserID, &s.Seed.Type, &s.Seed.ID, &s.AllowControls, &s.QueueVersion, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt = time.UnixMilli(created).UTC()
	s.UpdatedAt = time.UnixMilli(updated).UTC()
	return &s, nil
}

func (r *sqliteJamRepo) UpdateSession(ctx context.Context, s *model.JamSession) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jam_sessions
		SET seed_type = ?, seed_id = ?, allow_controls = ?, queue_version = ?, updated_at = ?
		WHERE id = ?`,
		s.Seed.Type, s.Seed.ID, s.AllowControls, s.QueueVersion, s.UpdatedAt.UnixMilli(), s.ID)
	return err
}

func (r *sqliteJamRepo) UpsertParticipant(ctx context.Context, p *model.Participant) error {
	joinedAt := p.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jam_participants (jam_id, user_id, name, role, joined_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(jam_id, user_id) DO UPDATE SET name = excluded.name, role = excluded.role`,
		p.JamID, p.UserID, p.Name, string(p.Role), joinedAt.UnixMilli())
	return err
}

func (r *sqliteJamRepo) ListParticipants(ctx context.Context, jamID string) ([]*model.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT jam_id, user_id, name, role, joined_at
		FROM jam_participants WHERE jam_id = ?
		ORDER BY joined_at, rowid`, jamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []*model.Participant
	for rows.Next() {
		var (
			p        model.Participant
			role     string
			joinedAt int64
		)
		if err := rows.Scan(&p.JamID, &p.UserID, &p.Name, &role, &joinedAt); err != nil {
			return nil, err
		}
		p.Role = model.Role(role)
		p.JoinedAt = time.UnixMilli(joinedAt).UTC()
		participants = append(participants, &p)
	}
	return participants, rows.Err()
}

const queueColumns = `queue_item_id, jam_id, position, added_by, track_id, track_name, artist, artist_id, album, album_id, album_cover, duration, audio`

func (r *sqliteJamRepo) ListQueue(ctx context.Context, jamID string) ([]model.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+queueColumns+`
		FROM jam_queue_items WHERE jam_id = ? ORDER BY position`, jamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []model.QueueItem{}
	for rows.Next() {
		var item model.QueueItem
		t := &item.Track
		if err := rows.Scan(&item.QueueItemID, &item.JamID, &item.Position, &item.AddedBy,
			&t.ID, &t.Name, &t.Artist, &t.ArtistID, &t.Album, &t.AlbumID, &t.AlbumCover, &t.Duration, &t.Audio); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func insertQueueItem(ctx context.Context, tx *sql.Tx, jamID string, position int, item model.QueueItem) error {
	t := item.Track
	_, err := tx.ExecContext(ctx, `INSERT INTO jam_queue_items (`+queueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.QueueItemID, jamID, position, item.AddedBy,
		t.ID, t.Name, t.Artist, t.ArtistID, t.Album, t.AlbumID, t.AlbumCover, t.Duration, t.Audio)
	return err
}

func (r *sqliteJamRepo) ReplaceQueue(ctx context.Context, jamID string, items []model.QueueItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM jam_queue_items WHERE jam_id = ?`, jamID); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	for i, item := range items {
		if err := insertQueueItem(ctx, tx, jamID, i, item); err != nil {
			return fmt.Errorf("insert queue item %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (r *sqliteJamRepo) AppendQueue(ctx context.Context, jamID string, items []model.QueueItem) ([]model.QueueItem, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var start int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM jam_queue_items WHERE jam_id = ?`, jamID).Scan(&start)
	if err != nil {
		return nil, err
	}

	added := make([]model.QueueItem, len(items))
	for i, item := range items {
		item.JamID = jamID
		item.Position = start + i
		if err := insertQueueItem(ctx, tx, jamID, item.Position, item); err != nil {
			return nil, fmt.Errorf("insert queue item %d: %w", i, err)
		}
		added[i] = item
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return added, nil
}

func (r *sqliteJamRepo) RemoveQueueItem(ctx context.Context, jamID, trackID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var (
		itemID   string
		position int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT queue_item_id, position FROM jam_queue_items
		WHERE jam_id = ? AND track_id = ?
		ORDER BY position LIMIT 1`, jamID, trackID).Scan(&itemID, &position)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM jam_queue_items WHERE queue_item_id = ?`, itemID); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE jam_queue_items SET position = position - 1
		WHERE jam_id = ? AND position > ?`, jamID, position); err != nil {
		return false, fmt.Errorf("renumber queue: %w", err)
	}
	return true, tx.Commit()
}

func (r *sqliteJamRepo) GetPlayback(ctx context.Context, jamID string) (*model.PlaybackState, error) {
	var state model.PlaybackState
	err := r.db.QueryRowContext(ctx, `
		SELECT jam_id, position, offset_ms, is_playing, track_id, updated_at
		FROM jam_playback WHERE jam_id = ?`, jamID).
		Scan(&state.JamID, &state.Index, &state.OffsetMs, &state.IsPlaying, &state.TrackID, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *sqliteJamRepo) SavePlayback(ctx context.Context, state *model.PlaybackState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jam_playback (jam_id, position, offset_ms, is_playing, track_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(jam_id) DO UPDATE SET
			position = excluded.position,
			offset_ms = excluded.offset_ms,
			is_playing = excluded.is_playing,
			track_id = excluded.track_id,
			updated_at = excluded.updated_at`,
		state.JamID, state.Index, state.OffsetMs, state.IsPlaying, state.TrackID, state.UpdatedAt)
	return err
}
