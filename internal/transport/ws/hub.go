package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"jamsync/internal/model"
)

var log = logging.Logger("jam/ws")

const defaultGuestName = "Guest"

// Hydrator loads the durable queue and clock for a session.
type Hydrator interface {
	Snapshot(ctx context.Context, sessionID string) (*model.JamSnapshot, error)
}

// Hub fans messages out to the sockets of live rooms and applies updates
// coming from peers and from the durable side.
type Hub struct {
	rooms          *Registry
	hydrator       Hydrator
	hydrateTimeout time.Duration
	now            func() time.Time
}

func NewHub(rooms *Registry) *Hub {
	return &Hub{
		rooms:          rooms,
		hydrateTimeout: 2 * time.Second,
		now:            time.Now,
	}
}

// SetHydrator makes freshly created rooms load durable state before the
// first joiner gets its initial replay.
func (h *Hub) SetHydrator(hy Hydrator) {
	h.hydrator = hy
}

func (h *Hub) Rooms() *Registry { return h.rooms }

// Broadcast sends m to every socket in the session's room except exclude and
// returns how many sockets accepted the frame. Sockets that are closed or
// whose buffer is full are skipped.
func (h *Hub) Broadcast(sessionID string, m Message, exclude *Client) int {
	room := h.rooms.Get(sessionID)
	if room == nil {
		return 0
	}
	return room.broadcast(m, exclude)
}

// Join handles an announce: registers c in the session's room, tells the
// other sockets about the new roster and replays the room state to c.
// A socket announcing a different session first leaves its current room.
func (h *Hub) Join(ctx context.Context, c *Client, a Announce) model.Participant {
	if c.room != nil && c.room.id != a.SessionID {
		h.Leave(c)
	}

	p := model.Participant{
		JamID:    a.SessionID,
		UserID:   a.UserID,
		Name:     a.Name,
		Role:     model.ParseRole(a.Role),
		JoinedAt: h.now(),
	}
	if p.UserID == "" {
		p.UserID = uuid.NewString()
	}
	if p.Name == "" {
		p.Name = defaultGuestName
	}

	for {
		room, created := h.rooms.Ensure(a.SessionID)
		if created {
			h.hydrate(ctx, room)
		}
		joined, err := room.join(c, p)
		if errors.Is(err, errRoomClosed) {
			continue
		}
		c.room = room
		log.Infow("participant joined", "session", room.id, "user", joined.UserID, "role", joined.Role, "client", c.id)
		return joined
	}
}

// Leave deregisters c. The last socket out removes the room.
func (h *Hub) Leave(c *Client) {
	room := c.room
	if room == nil {
		return
	}
	c.room = nil

	remaining, ok := room.leave(c)
	if !ok {
		return
	}
	if remaining == 0 {
		if h.rooms.Remove(room) {
			log.Infow("room closed", "session", room.id)
		}
		return
	}
	log.Infow("participant left", "session", room.id, "client", c.id, "remaining", remaining)
}

// HandlePeer applies a mutation sent by a joined socket and relays it to the
// other sockets. Frames from sockets that have not announced, or that name
// another session, are ignored.
func (h *Hub) HandlePeer(c *Client, m Message) {
	room := c.room
	if room == nil || m.Session() != room.id {
		return
	}
	switch m.(type) {
	case QueueSnapshot, QueueAdd, PlaybackUpdate:
		if _, err := h.apply(room, m, c); err != nil {
			log.Debugw("peer update dropped", "session", room.id, "type", m.Type(), "err", err)
		}
	default:
		log.Debugw("peer message ignored", "session", room.id, "type", m.Type())
	}
}

// Deliver applies a canonical update from the durable side and sends it to
// every socket in the room. A session without live sockets is a no-op; the
// room is not recreated.
func (h *Hub) Deliver(m Message) (int, error) {
	switch m.(type) {
	case QueueSnapshot, QueueAdd, PlaybackUpdate, ControlsMode:
	default:
		return 0, fmt.Errorf("%w: %s is not accepted from the control plane", ErrUnknownType, m.Type())
	}
	room := h.rooms.Get(m.Session())
	if room == nil {
		log.Debugw("push to idle session", "session", m.Session(), "type", m.Type())
		return 0, nil
	}
	return h.apply(room, m, nil)
}

// Push builds the relay message for an update produced by the durable
// service and delivers it in-process.
func (h *Hub) Push(_ context.Context, sessionID, msgType string, payload interface{}) error {
	data, err := EncodeEnvelope(sessionID, msgType, payload)
	if err != nil {
		return err
	}
	m, err := Parse(data)
	if err != nil {
		return err
	}
	_, err = h.Deliver(m)
	return err
}

func (h *Hub) apply(room *Room, m Message, exclude *Client) (int, error) {
	switch m := m.(type) {
	case QueueSnapshot:
		n, ok := room.replaceQueue(m, h.now(), exclude)
		if !ok {
			log.Debugw("stale queue snapshot", "session", room.id, "version", m.Version)
		}
		return n, nil
	case QueueAdd:
		n, ok := room.appendQueue(m, exclude)
		if !ok {
			log.Debugw("stale queue add", "session", room.id, "version", m.Version)
		}
		return n, nil
	case PlaybackUpdate:
		return room.applyPlayback(m.Patch, h.now(), exclude), nil
	case ControlsMode:
		return room.broadcast(m, exclude), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownType, m.Type())
	}
}

func (h *Hub) hydrate(ctx context.Context, room *Room) {
	if h.hydrator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.hydrateTimeout)
	defer cancel()

	snap, err := h.hydrator.Snapshot(ctx, room.id)
	if err != nil {
		log.Warnw("room hydration failed", "session", room.id, "err", err)
		return
	}
	if snap == nil {
		return
	}
	if !room.seed(snap) {
		log.Debugw("hydration skipped, room already has a queue", "session", room.id)
	}
}

// EncodeEnvelope flattens payload into a {type, sessionId, ...} frame, the
// shape accepted by Parse and by POST /broadcast.
func EncodeEnvelope(sessionID, msgType string, payload interface{}) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
		}
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("%s payload is not an object: %w", msgType, err)
		}
	}
	fields["type"], _ = json.Marshal(msgType)
	fields["sessionId"], _ = json.Marshal(sessionID)
	return json.Marshal(fields)
}
