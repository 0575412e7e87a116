package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"jamsync/internal/model"
)

// MessageType discriminates envelope kinds.
type MessageType string

const (
	MsgAnnounce      MessageType = "announce"
	MsgParticipants  MessageType = "participants"
	MsgQueueSnapshot MessageType = "queue_snapshot"
	MsgQueueAdd      MessageType = "queue_add"
	MsgPlaybackState MessageType = "playback_state"
	MsgControlsMode  MessageType = "controls_mode"

	// msgQueueLegacy is what older clients and backends call a snapshot.
	msgQueueLegacy MessageType = "queue"
)

var (
	ErrMalformed      = errors.New("malformed message")
	ErrUnknownType    = errors.New("unknown message type")
	ErrMissingSession = errors.New("missing session id")
)

// Message is one variant of the envelope tagged union.
type Message interface {
	Type() MessageType
	Session() string
}

// Announce joins a socket to a session.
type Announce struct {
	SessionID string
	UserID    string
	Name      string
	Role      string
}

// Participants is the roster push. Relay to client only.
type Participants struct {
	SessionID    string              `json:"sessionId"`
	Participants []model.Participant `json:"participants"`
}

// QueueSnapshot fully replaces the queue. Index, when set, moves the clock.
type QueueSnapshot struct {
	SessionID string            `json:"sessionId"`
	Tracks    []model.QueueItem `json:"tracks"`
	Index     *int              `json:"index,omitempty"`
	Version   int               `json:"version,omitempty"`
}

// QueueAdd appends items to the queue.
type QueueAdd struct {
	SessionID string            `json:"sessionId"`
	Items     []model.QueueItem `json:"items"`
	Version   int               `json:"version,omitempty"`
}

// PlaybackUpdate is an inbound partial clock update.
type PlaybackUpdate struct {
	SessionID string
	Patch     model.PlaybackPatch
}

// PlaybackState is the full clock as sent to clients.
type PlaybackState struct {
	SessionID string `json:"sessionId"`
	model.PlaybackState
}

// ControlsMode announces a change of the session's allow-controls flag.
type ControlsMode struct {
	SessionID     string `json:"sessionId"`
	AllowControls bool   `json:"allowControls"`
}

func (m Announce) Type() MessageType       { return MsgAnnounce }
func (m Participants) Type() MessageType   { return MsgParticipants }
func (m QueueSnapshot) Type() MessageType  { return MsgQueueSnapshot }
func (m QueueAdd) Type() MessageType       { return MsgQueueAdd }
func (m PlaybackUpdate) Type() MessageType { return MsgPlaybackState }
func (m PlaybackState) Type() MessageType  { return MsgPlaybackState }
func (m ControlsMode) Type() MessageType   { return MsgControlsMode }

func (m Announce) Session() string       { return m.SessionID }
func (m Participants) Session() string   { return m.SessionID }
func (m QueueSnapshot) Session() string  { return m.SessionID }
func (m QueueAdd) Session() string       { return m.SessionID }
func (m PlaybackUpdate) Session() string { return m.SessionID }
func (m PlaybackState) Session() string  { return m.SessionID }
func (m ControlsMode) Session() string   { return m.SessionID }

// Encode serializes an outbound message with its type tag.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(m.Type())
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: not an object", m.Type())
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

type envelope struct {
	Type      string     `json:"type"`
	SessionID flexString `json:"sessionId"`
	JamID     flexString `json:"jamId"`
}

// Parse decodes one inbound frame into its typed variant.
func Parse(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: type is required", ErrMalformed)
	}
	sessionID := strings.TrimSpace(string(env.SessionID))
	if sessionID == "" {
		sessionID = strings.TrimSpace(string(env.JamID))
	}
	if sessionID == "" {
		return nil, ErrMissingSession
	}

	switch MessageType(env.Type) {
	case MsgAnnounce:
		return parseAnnounce(sessionID, data)
	case MsgQueueSnapshot, msgQueueLegacy:
		return parseQueueSnapshot(sessionID, data)
	case MsgQueueAdd:
		return parseQueueAdd(sessionID, data)
	case MsgPlaybackState:
		return parsePlayback(sessionID, data)
	case MsgControlsMode:
		return parseControls(sessionID, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func parseAnnounce(sessionID string, data []byte) (Message, error) {
	var w struct {
		UserID flexString `json:"userId"`
		Name   string     `json:"name"`
		Role   string     `json:"role"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Announce{
		SessionID: sessionID,
		UserID:    strings.TrimSpace(string(w.UserID)),
		Name:      strings.TrimSpace(w.Name),
		Role:      strings.TrimSpace(w.Role),
	}, nil
}

func parseQueueSnapshot(sessionID string, data []byte) (Message, error) {
	var w struct {
		Tracks   []queueEntry `json:"tracks"`
		Queue    []queueEntry `json:"queue"`
		Index    *int         `json:"index"`
		Position *int         `json:"position"`
		Version  int          `json:"version"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	entries := w.Tracks
	if entries == nil {
		entries = w.Queue
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: tracks are required", ErrMalformed)
	}
	index := w.Index
	if index == nil {
		index = w.Position
	}
	return QueueSnapshot{
		SessionID: sessionID,
		Tracks:    toQueueItems(entries),
		Index:     index,
		Version:   w.Version,
	}, nil
}

func parseQueueAdd(sessionID string, data []byte) (Message, error) {
	var w struct {
		Items   []queueEntry `json:"items"`
		Version int          `json:"version"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(w.Items) == 0 {
		return nil, fmt.Errorf("%w: items are required", ErrMalformed)
	}
	return QueueAdd{
		SessionID: sessionID,
		Items:     toQueueItems(w.Items),
		Version:   w.Version,
	}, nil
}

func parsePlayback(sessionID string, data []byte) (Message, error) {
	var w struct {
		Index          *int        `json:"index"`
		Position       *int        `json:"position"`
		OffsetMs       *float64    `json:"offsetMs"`
		OffsetMsSnake  *float64    `json:"offset_ms"`
		IsPlaying      *bool       `json:"isPlaying"`
		IsPlayingSnake *bool       `json:"is_playing"`
		TrackID        *flexString `json:"trackId"`
		TrackIDSnake   *flexString `json:"track_id"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var patch model.PlaybackPatch
	patch.Index = w.Index
	if patch.Index == nil {
		patch.Index = w.Position
	}
	if offset := firstFloat(w.OffsetMs, w.OffsetMsSnake); offset != nil {
		ms := int64(*offset)
		patch.OffsetMs = &ms
	}
	patch.IsPlaying = w.IsPlaying
	if patch.IsPlaying == nil {
		patch.IsPlaying = w.IsPlayingSnake
	}
	track := w.TrackID
	if track == nil {
		track = w.TrackIDSnake
	}
	if track != nil {
		id := strings.TrimSpace(string(*track))
		patch.TrackID = &id
	}
	if patch.Empty() {
		return nil, fmt.Errorf("%w: playback update carries no fields", ErrMalformed)
	}
	return PlaybackUpdate{SessionID: sessionID, Patch: patch}, nil
}

func parseControls(sessionID string, data []byte) (Message, error) {
	var w struct {
		AllowControls      *bool `json:"allowControls"`
		AllowControlsSnake *bool `json:"allow_controls"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	allow := w.AllowControls
	if allow == nil {
		allow = w.AllowControlsSnake
	}
	if allow == nil {
		return nil, fmt.Errorf("%w: allowControls is required", ErrMalformed)
	}
	return ControlsMode{SessionID: sessionID, AllowControls: *allow}, nil
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// queueEntry accepts both {position, queueItemId, track:{...}} and a bare track.
type queueEntry struct {
	Position    *int
	QueueItemID string
	Track       model.Track
}

func (e *queueEntry) UnmarshalJSON(data []byte) error {
	var w struct {
		Position         *int       `json:"position"`
		QueueItemID      flexString `json:"queueItemId"`
		QueueItemIDSnake flexString `json:"queue_item_id"`
		Track            *wireTrack `json:"track"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var track wireTrack
	if w.Track != nil {
		track = *w.Track
	} else if err := json.Unmarshal(data, &track); err != nil {
		return err
	}
	if strings.TrimSpace(string(track.ID)) == "" {
		return errors.New("queue entry without track id")
	}
	e.Position = w.Position
	e.QueueItemID = string(w.QueueItemID)
	if e.QueueItemID == "" {
		e.QueueItemID = string(w.QueueItemIDSnake)
	}
	e.Track = track.toModel()
	return nil
}

func toQueueItems(entries []queueEntry) []model.QueueItem {
	items := make([]model.QueueItem, len(entries))
	for i, e := range entries {
		pos := i
		if e.Position != nil {
			pos = *e.Position
		}
		items[i] = model.QueueItem{
			QueueItemID: e.QueueItemID,
			Position:    pos,
			Track:       e.Track,
		}
	}
	return items
}

type wireTrack struct {
	ID              flexString `json:"id"`
	Name            string     `json:"name"`
	Artist          namedRef   `json:"artist"`
	ArtistID        flexString `json:"artistId"`
	ArtistIDSnake   flexString `json:"artist_id"`
	Album           namedRef   `json:"album"`
	AlbumID         flexString `json:"albumId"`
	AlbumIDSnake    flexString `json:"album_id"`
	AlbumCover      string     `json:"albumCover"`
	AlbumCoverSnake string     `json:"album_cover"`
	Duration        float64    `json:"duration"`
	Audio           string     `json:"audio"`
	AudioURL        string     `json:"audio_url"`
}

func (w wireTrack) toModel() model.Track {
	t := model.Track{
		ID:         string(w.ID),
		Name:       w.Name,
		Artist:     w.Artist.Name,
		ArtistID:   firstString(string(w.ArtistID), string(w.ArtistIDSnake), w.Artist.ID),
		Album:      w.Album.Name,
		AlbumID:    firstString(string(w.AlbumID), string(w.AlbumIDSnake), w.Album.ID),
		AlbumCover: firstString(w.AlbumCover, w.AlbumCoverSnake),
		Duration:   int(w.Duration),
		Audio:      firstString(w.Audio, w.AudioURL),
	}
	return t.Normalize()
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// namedRef is either a plain name or an object with id and name.
type namedRef struct {
	ID   string
	Name string
}

func (n *namedRef) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &n.Name)
	}
	var obj struct {
		ID   flexString `json:"id"`
		Name string     `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	n.ID = string(obj.ID)
	n.Name = obj.Name
	return nil
}

// flexString accepts JSON strings and numbers; user ids are numeric in some
// deployments of the surrounding product.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(string(n), 64); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
