// session/registry.go
package session

import (
	"sync"
)

// RoomSession is the volatile per-room entry: the set of live
// connections plus the timer handles driving that room. Invariant: at
// most one draw timer exists per room at a time.
type RoomSession struct {
	RoomCode string

	mu             sync.Mutex
	conns          map[string]*Session // sessionID -> session
	drawTimer      int64
	countdownTimer int64
}

func (rs *RoomSession) Attach(sess *Session) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.conns[sess.ID] = sess
}

// Detach removes a connection, reporting whether it was present.
func (rs *RoomSession) Detach(sessionID string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.conns[sessionID]; !ok {
		return false
	}
	delete(rs.conns, sessionID)
	return true
}

func (rs *RoomSession) Has(sessionID string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	_, ok := rs.conns[sessionID]
	return ok
}

// Sessions returns a copy of the live connections for fan-out.
func (rs *RoomSession) Sessions() []*Session {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]*Session, 0, len(rs.conns))
	for _, s := range rs.conns {
		out = append(out, s)
	}
	return out
}

func (rs *RoomSession) Empty() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.conns) == 0
}

// SetDrawTimer records the repeating draw timer handle. It reports false
// when a timer is already active, so callers cannot start a second loop
// for the same room.
func (rs *RoomSession) SetDrawTimer(id int64) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.drawTimer != 0 {
		return false
	}
	rs.drawTimer = id
	return true
}

// ClearDrawTimer clears and returns the draw timer handle; zero means no
// timer was active. Safe to call repeatedly.
func (rs *RoomSession) ClearDrawTimer() int64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	id := rs.drawTimer
	rs.drawTimer = 0
	return id
}

func (rs *RoomSession) DrawTimerActive() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.drawTimer != 0
}

func (rs *RoomSession) SetCountdownTimer(id int64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.countdownTimer = id
}

func (rs *RoomSession) ClearCountdownTimer() int64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	id := rs.countdownTimer
	rs.countdownTimer = 0
	return id
}

// Registry maps room codes to their live session entries. It is
// process-local by design: entries do not survive a restart and are
// never shared across instances.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*RoomSession
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*RoomSession),
	}
}

// Register attaches sess to the room's entry, creating the entry when
// the room has no connections yet.
func (r *Registry) Register(roomCode string, sess *Session) *RoomSession {
	r.mu.Lock()
	rs, ok := r.rooms[roomCode]
	if !ok {
		rs = &RoomSession{
			RoomCode: roomCode,
			conns:    make(map[string]*Session),
		}
		r.rooms[roomCode] = rs
	}
	r.mu.Unlock()

	rs.Attach(sess)
	return rs
}

func (r *Registry) Get(roomCode string) (*RoomSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.rooms[roomCode]
	return rs, ok
}

func (r *Registry) Remove(roomCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomCode)
}

// RoomsWithSession returns every entry that holds the given session,
// for disconnect cleanup.
func (r *Registry) RoomsWithSession(sessionID string) []*RoomSession {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*RoomSession
	for _, rs := range r.rooms {
		if rs.Has(sessionID) {
			out = append(out, rs)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
