package ws

import (
	"errors"
	"sync"
	"time"

	"jamsync/internal/model"
)

var errRoomClosed = errors.New("room closed")

// Room is the live state of a session with at least one connected socket.
// All fields are guarded by mu; a room never holds durable truth.
type Room struct {
	id string

	mu      sync.Mutex
	closed  bool
	hostID  string
	order   []*Client
	members map[*Client]model.Participant

	queue        []model.QueueItem
	queueKnown   bool // false until a snapshot or hydration tells us the full queue
	queueVersion int
	playback     model.PlaybackState
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		members: make(map[*Client]model.Participant),
	}
}

func (r *Room) ID() string { return r.id }

// HostID returns the host-of-record, the first identity that claimed host.
func (r *Room) HostID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostID
}

// Len returns the number of connected sockets.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Roster returns participants in join order.
func (r *Room) Roster() []model.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked()
}

// Queue returns a copy of the queue and its version.
func (r *Room) Queue() ([]model.QueueItem, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.QueueItem(nil), r.queue...), r.queueVersion
}

// Playback returns the current clock.
func (r *Room) Playback() model.PlaybackState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playback
}

func (r *Room) rosterLocked() []model.Participant {
	roster := make([]model.Participant, 0, len(r.order))
	for _, c := range r.order {
		roster = append(roster, r.members[c])
	}
	return roster
}

func (r *Room) targetsLocked(exclude *Client) []*Client {
	targets := make([]*Client, 0, len(r.order))
	for _, c := range r.order {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	return targets
}

// snapshotLocked is the full queue as replayed to a joiner. Until the room
// has seen a full queue it only holds appended fragments, so the snapshot
// then carries neither a version nor an index and cannot win over a client's
// own versioned queue.
func (r *Room) snapshotLocked() QueueSnapshot {
	snap := QueueSnapshot{
		SessionID: r.id,
		Tracks:    append([]model.QueueItem{}, r.queue...),
	}
	if r.queueKnown {
		index := r.playback.Index
		snap.Index = &index
		snap.Version = r.queueVersion
	}
	return snap
}

func (r *Room) clockLocked() PlaybackState {
	return PlaybackState{SessionID: r.id, PlaybackState: r.playback}
}

// fanOutLocked queues msgs, in order, on every target and returns how many
// targets accepted the first one. Callers hold r.mu, so every socket sees
// the room's mutations in the order they were applied. enqueue never blocks.
func (r *Room) fanOutLocked(targets []*Client, msgs ...Message) int {
	delivered := 0
	for i, m := range msgs {
		data, err := Encode(m)
		if err != nil {
			log.Errorw("encode failed", "type", m.Type(), "session", r.id, "err", err)
			continue
		}
		for _, c := range targets {
			if c.enqueue(data) {
				if i == 0 {
					delivered++
				}
				continue
			}
			log.Debugw("frame dropped", "client", c.id, "type", m.Type(), "session", r.id)
		}
	}
	return delivered
}

// join registers c and, inside the same critical section, queues the roster,
// queue snapshot and clock for c alone and the new roster for everyone else.
// Anything broadcast to the room after this returns is therefore delivered
// to c after its initial state.
func (r *Room) join(c *Client, p model.Participant) (model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return p, errRoomClosed
	}

	if p.Role == model.RoleHost {
		if r.hostID == "" {
			r.hostID = p.UserID
		} else if r.hostID != p.UserID {
			p.Role = model.RoleGuest
		}
	}

	if _, ok := r.members[c]; !ok {
		r.order = append(r.order, c)
	}
	r.members[c] = p

	roster := Participants{SessionID: r.id, Participants: r.rosterLocked()}
	r.fanOutLocked([]*Client{c}, roster, r.snapshotLocked(), r.clockLocked())
	r.fanOutLocked(r.targetsLocked(c), roster)
	return p, nil
}

// leave removes c, sends the new roster to the remaining sockets and reports
// how many remain. The host-of-record is kept while the room stays non-empty.
func (r *Room) leave(c *Client) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[c]; !ok {
		return 0, false
	}
	delete(r.members, c)
	for i, m := range r.order {
		if m == c {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if len(r.order) > 0 {
		r.fanOutLocked(r.targetsLocked(nil), Participants{SessionID: r.id, Participants: r.rosterLocked()})
	}
	return len(r.order), true
}

// replaceQueue overwrites the queue and sends the snapshot followed by the
// clamped clock. Updates carrying a version at or below the room's version
// are stale and dropped.
func (r *Room) replaceQueue(m QueueSnapshot, now time.Time, exclude *Client) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.Version > 0 && m.Version <= r.queueVersion {
		return 0, false
	}
	if m.Version > 0 {
		r.queueVersion = m.Version
	}
	r.queue = model.Renumber(append([]model.QueueItem{}, m.Tracks...))
	r.queueKnown = true

	if m.Index != nil {
		r.playback.Index = *m.Index
		r.playback.OffsetMs = 0
		r.playback.UpdatedAt = now.UnixMilli()
	}
	r.playback.Clamp(r.queue)

	// Unversioned peer edits are echoed unversioned.
	snap := r.snapshotLocked()
	snap.Version = m.Version
	return r.fanOutLocked(r.targetsLocked(exclude), snap, r.clockLocked()), true
}

// appendQueue concatenates items after the existing queue, preserving the
// order and identity of what was already there.
func (r *Room) appendQueue(m QueueAdd, exclude *Client) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.Version > 0 && m.Version <= r.queueVersion {
		return 0, false
	}
	if m.Version > 0 {
		r.queueVersion = m.Version
	}

	added := make([]model.QueueItem, len(m.Items))
	for i, item := range m.Items {
		item.Position = len(r.queue) + i
		added[i] = item
	}
	r.queue = append(r.queue, added...)

	return r.fanOutLocked(r.targetsLocked(exclude), QueueAdd{SessionID: r.id, Items: added, Version: m.Version}), true
}

// applyPlayback merges a partial clock update and stamps it with now. The
// index is only clamped once the room knows the full queue.
func (r *Room) applyPlayback(patch model.PlaybackPatch, now time.Time, exclude *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.playback.Apply(patch, r.queue, now)
	if r.queueKnown {
		r.playback.Clamp(r.queue)
	}
	return r.fanOutLocked(r.targetsLocked(exclude), r.clockLocked())
}

// seed loads durable state into a room that has not yet seen a full queue.
// A live update that already arrived wins over the snapshot.
func (r *Room) seed(snap *model.JamSnapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.queueKnown || snap.QueueVersion < r.queueVersion {
		return false
	}
	r.queue = model.Renumber(append([]model.QueueItem{}, snap.Queue...))
	r.queueKnown = true
	r.queueVersion = snap.QueueVersion
	if r.playback.UpdatedAt < snap.Playback.UpdatedAt || r.playback.UpdatedAt == 0 {
		r.playback = snap.Playback
		r.playback.JamID = ""
	}
	r.playback.Clamp(r.queue)
	r.fanOutLocked(r.targetsLocked(nil), r.snapshotLocked(), r.clockLocked())
	return true
}

// broadcast sends m to every socket except exclude without touching state.
func (r *Room) broadcast(m Message, exclude *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fanOutLocked(r.targetsLocked(exclude), m)
}

// Registry is the process-scoped table of live rooms. Its lock guards only the
// map; room state is guarded per room.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Ensure returns the room for id, creating it if absent. It never replaces an
// existing room.
func (g *Registry) Ensure(id string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if room, ok := g.rooms[id]; ok {
		return room, false
	}
	room := newRoom(id)
	g.rooms[id] = room
	return room, true
}

func (g *Registry) Get(id string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rooms[id]
}

// Remove forgets room if it is still the registered instance for its id and
// has no sockets left. A removed room is closed so a racing join retries
// against a fresh one.
func (g *Registry) Remove(room *Room) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rooms[room.id] != room {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if len(room.order) > 0 {
		return false
	}
	room.closed = true
	delete(g.rooms, room.id)
	return true
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Close drops every room and closes its sockets' send buffers, which makes
// each write loop send a close frame.
func (g *Registry) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, room := range g.rooms {
		room.mu.Lock()
		room.closed = true
		clients := room.order
		room.order = nil
		room.members = make(map[*Client]model.Participant)
		room.mu.Unlock()
		for _, c := range clients {
			c.close()
		}
		delete(g.rooms, id)
	}
}
