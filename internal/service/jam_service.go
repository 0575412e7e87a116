package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"jamsync/internal/cache"
	"jamsync/internal/model"
	"jamsync/internal/repository"
)

var log = logging.Logger("jam/service")

const defaultPushTimeout = time.Second

// JamService owns the durable state of jams and pushes every committed change
// to the live relay.
type JamService struct {
	repo        repository.JamRepo
	cache       cache.SessionCache
	broadcaster Broadcaster
	locks       *keyedMutex
	pushTimeout time.Duration
	now         func() time.Time
}

// NewJamService creates a jam service. sessionCache may be nil.
func NewJamService(repo repository.JamRepo, sessionCache cache.SessionCache) *JamService {
	return &JamService{
		repo:        repo,
		cache:       sessionCache,
		locks:       newKeyedMutex(),
		pushTimeout: defaultPushTimeout,
		now:         time.Now,
	}
}

// SetBroadcaster sets the relay push target: the in-process hub or a RelayClient.
func (s *JamService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func (s *JamService) SetPushTimeout(d time.Duration) {
	if d > 0 {
		s.pushTimeout = d
	}
}

type CreateJamInput struct {
	SeedType      string
	SeedID        string
	Tracks        []model.Track
	AllowControls *bool
	HostName      string
}

// CreateJam starts a jam hosted by hostID with the given tracks queued.
func (s *JamService) CreateJam(ctx context.Context, hostID string, in CreateJamInput) (*model.JamView, error) {
	if hostID == "" {
		return nil, ErrForbidden
	}
	seedType, seedID := strings.TrimSpace(in.SeedType), strings.TrimSpace(in.SeedID)
	if seedType == "" || seedID == "" {
		return nil, fmt.Errorf("%w: seed type and id are required", ErrInvalidInput)
	}
	tracks, err := normalizeTracks(in.Tracks, 1)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	allow := true
	if in.AllowControls != nil {
		allow = *in.AllowControls
	}
	session := &model.JamSession{
		ID:            uuid.NewString(),
		HostUserID:    hostID,
		Seed:          model.Seed{Type: seedType, ID: seedID},
		AllowControls: allow,
		QueueVersion:  1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create jam: %w", err)
	}
	host := &model.Participant{JamID: session.ID, UserID: hostID, Name: in.HostName, Role: model.RoleHost, JoinedAt: now}
	if err := s.repo.UpsertParticipant(ctx, host); err != nil {
		return nil, fmt.Errorf("failed to add host: %w", err)
	}

	items := s.newItems(tracks, hostID)
	if err := s.repo.ReplaceQueue(ctx, session.ID, items); err != nil {
		return nil, fmt.Errorf("failed to store queue: %w", err)
	}
	playback := &model.PlaybackState{JamID: session.ID, UpdatedAt: now.UnixMilli()}
	playback.Clamp(items)
	if err := s.repo.SavePlayback(ctx, playback); err != nil {
		return nil, fmt.Errorf("failed to store playback: %w", err)
	}
	s.cacheMeta(ctx, session)

	log.Infow("jam created", "jam", session.ID, "host", hostID, "seed", seedType+":"+seedID, "tracks", len(items))

	index := 0
	s.push(ctx, session.ID, EventQueueSnapshot, queueSnapshotEvent{Tracks: items, Index: &index, Version: session.QueueVersion})
	return s.GetView(ctx, session.ID, hostID)
}

// JoinJam records userID as a participant. The host always joins as host;
// nobody else can claim it.
func (s *JamService) JoinJam(ctx context.Context, jamID, userID, name, role string) (*model.JamView, error) {
	if userID == "" {
		return nil, ErrForbidden
	}
	session, err := s.loadSession(ctx, jamID)
	if err != nil {
		return nil, err
	}

	effective := model.RoleGuest
	if session.HostUserID == userID {
		effective = model.RoleHost
	} else if model.ParseRole(role) == model.RoleHost {
		log.Debugw("host claim ignored", "jam", jamID, "user", userID)
	}

	p := &model.Participant{JamID: jamID, UserID: userID, Name: strings.TrimSpace(name), Role: effective, JoinedAt: s.now().UTC()}
	if err := s.repo.UpsertParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to join jam: %w", err)
	}
	log.Infow("participant joined", "jam", jamID, "user", userID, "role", effective)
	return s.GetView(ctx, jamID, userID)
}

// ReplaceQueue overwrites the queue with tracks.
func (s *JamService) ReplaceQueue(ctx context.Context, jamID, actorID string, tracks []model.Track) (*model.JamView, error) {
	normalized, err := normalizeTracks(tracks, 0)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(jamID)
	defer unlock()

	session, err := s.loadSession(ctx, jamID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(session.Meta(), actorID); err != nil {
		return nil, err
	}

	items := s.newItems(normalized, actorID)
	if err := s.repo.ReplaceQueue(ctx, jamID, items); err != nil {
		return nil, fmt.Errorf("failed to replace queue: %w", err)
	}
	if err := s.bumpVersion(ctx, session); err != nil {
		return nil, err
	}
	if err := s.clampPlayback(ctx, jamID, items); err != nil {
		return nil, err
	}

	s.push(ctx, jamID, EventQueueSnapshot, queueSnapshotEvent{Tracks: items, Version: session.QueueVersion})
	return s.GetView(ctx, jamID, actorID)
}

// AppendQueue adds tracks after the current tail.
func (s *JamService) AppendQueue(ctx context.Context, jamID, actorID string, tracks []model.Track) (*model.JamView, error) {
	normalized, err := normalizeTracks(tracks, 1)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(jamID)
	defer unlock()

	session, err := s.loadSession(ctx, jamID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(session.Meta(), actorID); err != nil {
		return nil, err
	}

	added, err := s.repo.AppendQueue(ctx, jamID, s.newItems(normalized, actorID))
	if err != nil {
		return nil, fmt.Errorf("failed to append to queue: %w", err)
	}
	if err := s.bumpVersion(ctx, session); err != nil {
		return nil, err
	}

	s.push(ctx, jamID, EventQueueAdd, queueAddEvent{Items: added, Version: session.QueueVersion})
	return s.GetView(ctx, jamID, actorID)
}

// RemoveFromQueue removes the first occurrence of trackID.
func (s *JamService) RemoveFromQueue(ctx context.Context, jamID, actorID, trackID string) (*model.JamView, error) {
	trackID = strings.TrimSpace(trackID)
	if trackID == "" {
		return nil, fmt.Errorf("%w: track id is required", ErrInvalidInput)
	}

	unlock := s.locks.Lock(jamID)
	defer unlock()

	session, err := s.loadSession(ctx, jamID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(session.Meta(), actorID); err != nil {
		return nil, err
	}

	removed, err := s.repo.RemoveQueueItem(ctx, jamID, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove from queue: %w", err)
	}
	if !removed {
		return nil, ErrTrackNotInQueue
	}
	if err := s.bumpVersion(ctx, session); err != nil {
		return nil, err
	}
	queue, err := s.repo.ListQueue(ctx, jamID)
	if err != nil {
		return nil, err
	}
	if err := s.clampPlayback(ctx, jamID, queue); err != nil {
		return nil, err
	}

	s.push(ctx, jamID, EventQueueSnapshot, queueSnapshotEvent{Tracks: queue, Version: session.QueueVersion})
	return s.GetView(ctx, jamID, actorID)
}

type playbackEvent struct {
	Index     *int    `json:"index,omitempty"`
	OffsetMs  *int64  `json:"offsetMs,omitempty"`
	IsPlaying *bool   `json:"isPlaying,omitempty"`
	TrackID   *string `json:"trackId,omitempty"`
}

// UpdatePlayback merges a partial clock update. Only the fields present in
// patch are changed, here and on the relay.
func (s *JamService) UpdatePlayback(ctx context.Context, jamID, actorID string, patch model.PlaybackPatch) (*model.PlaybackState, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: playback update carries no fields", ErrInvalidInput)
	}
	meta, err := s.sessionMeta(ctx, jamID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(meta, actorID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(jamID)
	defer unlock()

	queue, err := s.repo.ListQueue(ctx, jamID)
	if err != nil {
		return nil, err
	}
	if patch.TrackID != nil && patch.Index == nil && !queueHasTrack(queue, *patch.TrackID) {
		return nil, ErrTrackNotInQueue
	}
	state, err := s.currentPlayback(ctx, jamID)
	if err != nil {
		return nil, err
	}
	state.Apply(patch, queue, s.now())
	state.Clamp(queue)
	if err := s.repo.SavePlayback(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to store playback: %w", err)
	}

	event := playbackEvent{OffsetMs: patch.OffsetMs, IsPlaying: patch.IsPlaying}
	if patch.Index != nil || patch.TrackID != nil {
		event.Index = &state.Index
		event.TrackID = &state.TrackID
	}
	if event.OffsetMs != nil {
		event.OffsetMs = &state.OffsetMs
	}
	s.push(ctx, jamID, EventPlaybackState, event)
	return state, nil
}

// UpdateControls toggles whether guests may control the jam. Host only.
func (s *JamService) UpdateControls(ctx context.Context, jamID, actorID string, allow bool) (*model.JamSession, error) {
	unlock := s.locks.Lock(jamID)
	defer unlock()

	session, err := s.loadSession(ctx, jamID)
	if err != nil {
		return nil, err
	}
	if err := AuthorizeHost(session.Meta(), actorID); err != nil {
		return nil, err
	}
	session.AllowControls = allow
	session.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update jam: %w", err)
	}
	s.cacheMeta(ctx, session)

	log.Infow("controls changed", "jam", jamID, "allowControls", allow)
	s.push(ctx, jamID, EventControlsMode, controlsModeEvent{AllowControls: allow})
	return session, nil
}

// GetView assembles a jam as seen by requesterID.
func (s *JamService) GetView(ctx context.Context, jamID, requesterID string) (*model.JamView, error) {
	session, err := s.loadSession(ctx, jamID)
	if err != nil {
		return nil, err
	}
	participants, err := s.repo.ListParticipants(ctx, jamID)
	if err != nil {
		return nil, err
	}
	queue, err := s.repo.ListQueue(ctx, jamID)
	if err != nil {
		return nil, err
	}
	playback, err := s.repo.GetPlayback(ctx, jamID)
	if err != nil {
		return nil, err
	}

	views := make([]model.ParticipantView, 0, len(participants))
	for _, p := range participants {
		name := p.Name
		if name == "" {
			name = "User " + p.UserID
		}
		views = append(views, model.ParticipantView{
			ID:     p.UserID,
			Name:   name,
			Role:   p.Role,
			IsSelf: requesterID != "" && p.UserID == requesterID,
		})
	}
	return &model.JamView{
		Jam:          session,
		Participants: views,
		Queue:        queue,
		Playback:     playback,
	}, nil
}

// Snapshot returns the durable queue and clock used to hydrate a live room.
func (s *JamService) Snapshot(ctx context.Context, jamID string) (*model.JamSnapshot, error) {
	session, err := s.loadSession(ctx, jamID)
	if err != nil {
		return nil, err
	}
	queue, err := s.repo.ListQueue(ctx, jamID)
	if err != nil {
		return nil, err
	}
	playback, err := s.currentPlayback(ctx, jamID)
	if err != nil {
		return nil, err
	}
	return &model.JamSnapshot{
		Queue:        queue,
		QueueVersion: session.QueueVersion,
		Playback:     *playback,
	}, nil
}

func (s *JamService) loadSession(ctx context.Context, jamID string) (*model.JamSession, error) {
	session, err := s.repo.GetSession(ctx, jamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get jam: %w", err)
	}
	if session == nil {
		return nil, ErrJamNotFound
	}
	return session, nil
}

// sessionMeta reads authority data through the cache.
func (s *JamService) sessionMeta(ctx context.Context, jamID string) (*model.SessionMeta, error) {
	if s.cache != nil {
		meta, err := s.cache.GetMeta(ctx, jamID)
		if err != nil {
			log.Warnw("session cache read failed", "jam", jamID, "err", err)
		} else if meta != nil {
			return meta, nil
		}
	}
	session, err := s.loadSession(ctx, jamID)
	if err != nil {
		return nil, err
	}
	s.cacheMeta(ctx, session)
	return session.Meta(), nil
}

func (s *JamService) cacheMeta(ctx context.Context, session *model.JamSession) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetMeta(ctx, session.ID, session.Meta()); err != nil {
		log.Warnw("session cache write failed", "jam", session.ID, "err", err)
	}
}

func (s *JamService) bumpVersion(ctx context.Context, session *model.JamSession) error {
	session.QueueVersion++
	session.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateSession(ctx, session); err != nil {
		return fmt.Errorf("failed to bump queue version: %w", err)
	}
	s.cacheMeta(ctx, session)
	return nil
}

func (s *JamService) currentPlayback(ctx context.Context, jamID string) (*model.PlaybackState, error) {
	state, err := s.repo.GetPlayback(ctx, jamID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &model.PlaybackState{JamID: jamID}
	}
	return state, nil
}

func (s *JamService) clampPlayback(ctx context.Context, jamID string, queue []model.QueueItem) error {
	state, err := s.currentPlayback(ctx, jamID)
	if err != nil {
		return err
	}
	before := *state
	state.Clamp(queue)
	if *state == before {
		return nil
	}
	if err := s.repo.SavePlayback(ctx, state); err != nil {
		return fmt.Errorf("failed to store playback: %w", err)
	}
	return nil
}

// push never fails the caller; the relay recovers on the next snapshot.
func (s *JamService) push(ctx context.Context, jamID, msgType string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.pushTimeout)
	defer cancel()
	if err := s.broadcaster.Push(ctx, jamID, msgType, payload); err != nil {
		log.Warnw("relay push failed", "jam", jamID, "type", msgType, "err", err)
	}
}

func (s *JamService) newItems(tracks []model.Track, addedBy string) []model.QueueItem {
	items := make([]model.QueueItem, len(tracks))
	for i, t := range tracks {
		items[i] = model.QueueItem{
			QueueItemID: uuid.NewString(),
			Position:    i,
			AddedBy:     addedBy,
			Track:       t,
		}
	}
	return items
}

func normalizeTracks(tracks []model.Track, min int) ([]model.Track, error) {
	if len(tracks) < min {
		return nil, fmt.Errorf("%w: at least %d track(s) required", ErrInvalidInput, min)
	}
	out := make([]model.Track, len(tracks))
	for i, t := range tracks {
		t = t.Normalize()
		if t.ID == "" {
			return nil, fmt.Errorf("%w: track %d has no id", ErrInvalidInput, i)
		}
		out[i] = t
	}
	return out, nil
}

func queueHasTrack(queue []model.QueueItem, trackID string) bool {
	for _, item := range queue {
		if item.Track.ID == trackID {
			return true
		}
	}
	return false
}
