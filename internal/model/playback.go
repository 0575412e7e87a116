package model

import "time"

// PlaybackState is the shared playback clock of a jam.
//
// UpdatedAt is unix milliseconds. While IsPlaying, clients derive the elapsed
// position as OffsetMs + (now - UpdatedAt) instead of waiting for updates.
type PlaybackState struct {
	JamID     string `json:"-" bson:"_id"`
	Index     int    `json:"index" bson:"position"`
	OffsetMs  int64  `json:"offsetMs" bson:"offsetMs"`
	IsPlaying bool   `json:"isPlaying" bson:"isPlaying"`
	TrackID   string `json:"trackId,omitempty" bson:"trackId,omitempty"`
	UpdatedAt int64  `json:"ts" bson:"updatedAt"`
}

// PlaybackPatch is a partial clock update. Nil fields are left untouched.
type PlaybackPatch struct {
	Index     *int
	OffsetMs  *int64
	IsPlaying *bool
	TrackID   *string
}

func (p PlaybackPatch) Empty() bool {
	return p.Index == nil && p.OffsetMs == nil && p.IsPlaying == nil && p.TrackID == nil
}

// Apply merges the present fields of patch into the clock and stamps it with now.
// When only a track id is given, the index follows the first queue position
// holding that track.
func (p *PlaybackState) Apply(patch PlaybackPatch, queue []QueueItem, now time.Time) {
	if patch.Index != nil {
		p.Index = *patch.Index
	}
	if patch.OffsetMs != nil {
		p.OffsetMs = *patch.OffsetMs
		if p.OffsetMs < 0 {
			p.OffsetMs = 0
		}
	}
	if patch.IsPlaying != nil {
		p.IsPlaying = *patch.IsPlaying
	}
	if patch.TrackID != nil {
		p.TrackID = *patch.TrackID
		if patch.Index == nil {
			for i, item := range queue {
				if item.Track.ID == *patch.TrackID {
					p.Index = i
					break
				}
			}
		}
	}
	p.UpdatedAt = now.UnixMilli()
}

// Clamp keeps the clock on a valid queue position. An empty queue means no
// current track and nothing playing. Moving the index resets the offset.
func (p *PlaybackState) Clamp(queue []QueueItem) {
	if len(queue) == 0 {
		p.Index = 0
		p.OffsetMs = 0
		p.IsPlaying = false
		p.TrackID = ""
		return
	}
	if p.Index < 0 {
		p.Index = 0
		p.OffsetMs = 0
	}
	if p.Index >= len(queue) {
		p.Index = len(queue) - 1
		p.OffsetMs = 0
	}
	p.TrackID = queue[p.Index].Track.ID
}

// ElapsedAt extrapolates the playback position at the given time.
func (p PlaybackState) ElapsedAt(now time.Time) int64 {
	if !p.IsPlaying || p.UpdatedAt == 0 {
		return p.OffsetMs
	}
	delta := now.UnixMilli() - p.UpdatedAt
	if delta < 0 {
		delta = 0
	}
	return p.OffsetMs + delta
}
