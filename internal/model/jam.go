package model

import "time"

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// ParseRole maps a claimed role to a known one. Anything but "host" is a guest.
func ParseRole(s string) Role {
	if Role(s) == RoleHost {
		return RoleHost
	}
	return RoleGuest
}

// Seed describes what a jam was started from (album, playlist, track, ...).
type Seed struct {
	Type string `json:"type" bson:"type"`
	ID   string `json:"id" bson:"id"`
}

// JamSession is the durable record of a shared listening session.
type JamSession struct {
	ID            string    `json:"id" bson:"_id"`
	HostUserID    string    `json:"hostUserId" bson:"hostUserId"` // immutable after creation
	Seed          Seed      `json:"seed" bson:"seed"`
	AllowControls bool      `json:"allowControls" bson:"allowControls"`
	QueueVersion  int       `json:"queueVersion" bson:"queueVersion"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Participant is a member of a jam. Role is informational; mutation rights
// come from the session's host id and allow-controls flag.
type Participant struct {
	JamID    string    `json:"-" bson:"jamId"`
	UserID   string    `json:"id" bson:"userId"`
	Name     string    `json:"name" bson:"name"`
	Role     Role      `json:"role" bson:"role"`
	JoinedAt time.Time `json:"-" bson:"joinedAt"`
}

// SessionMeta is the subset of a session needed for authority decisions.
// It is what the Redis cache holds.
type SessionMeta struct {
	HostUserID    string `json:"hostUserId"`
	AllowControls bool   `json:"allowControls"`
	QueueVersion  int    `json:"queueVersion"`
	SeedType      string `json:"seedType"`
	SeedID        string `json:"seedId"`
}

func (s *JamSession) Meta() *SessionMeta {
	return &SessionMeta{
		HostUserID:    s.HostUserID,
		AllowControls: s.AllowControls,
		QueueVersion:  s.QueueVersion,
		SeedType:      s.Seed.Type,
		SeedID:        s.Seed.ID,
	}
}

// JamSnapshot is the durable queue and clock used to seed a live room.
type JamSnapshot struct {
	Queue        []QueueItem
	QueueVersion int
	Playback     PlaybackState
}

// ParticipantView is a participant as rendered for a particular requester.
type ParticipantView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	IsSelf bool   `json:"isSelf"`
}

// JamView is everything a client needs to render a jam.
type JamView struct {
	Jam          *JamSession       `json:"jam"`
	Participants []ParticipantView `json:"participants"`
	Queue        []QueueItem       `json:"queue"`
	Playback     *PlaybackState    `json:"playback"`
}
