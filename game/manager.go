// Package game holds the room lifecycle and the number-calling state
// machine. All mutating operations for one room serialize on a per-room
// lock; distinct rooms stay concurrent.
package game

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tambolahq/tambola-server/logger"
	"github.com/tambolahq/tambola-server/models"
	"github.com/tambolahq/tambola-server/monitor"
	"github.com/tambolahq/tambola-server/network"
	"github.com/tambolahq/tambola-server/scheduler"
	"github.com/tambolahq/tambola-server/session"
	"github.com/tambolahq/tambola-server/store"
	"github.com/tambolahq/tambola-server/ticket"
)

const (
	// maxCodeAttempts bounds the uniqueness-checking retry loop for
	// 4-digit room codes.
	maxCodeAttempts = 25

	defaultCountdown    = 3 * time.Second
	defaultCallInterval = 4 * time.Second
)

var botNames = []string{"Lucky Bot", "Clever Bot"}

// Options configures a Manager. Store, Registry, Scheduler and Metrics
// are required.
type Options struct {
	Store     store.Store
	Registry  *session.Registry
	Scheduler *scheduler.Scheduler
	Metrics   *monitor.Metrics

	// CountdownDelay is the fixed lobby-countdown-to-running delay.
	CountdownDelay time.Duration
	// CallInterval is the draw period assigned to new rooms.
	CallInterval time.Duration
}

// Manager orchestrates room creation, joining, the draw loop, cell
// marking, disconnect handling and state broadcast.
type Manager struct {
	store    store.Store
	registry *session.Registry
	sched    *scheduler.Scheduler
	metrics  *monitor.Metrics

	countdown    time.Duration
	callInterval time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex // roomCode -> per-room operation lock
}

func NewManager(opts Options) *Manager {
	if opts.CountdownDelay <= 0 {
		opts.CountdownDelay = defaultCountdown
	}
	if opts.CallInterval <= 0 {
		opts.CallInterval = defaultCallInterval
	}
	return &Manager{
		store:        opts.Store,
		registry:     opts.Registry,
		sched:        opts.Scheduler,
		metrics:      opts.Metrics,
		countdown:    opts.CountdownDelay,
		callInterval: opts.CallInterval,
		locks:        make(map[string]*sync.Mutex),
	}
}

// roomLock returns the operation lock for a room code, creating it on
// first use.
func (m *Manager) roomLock(roomCode string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[roomCode]
	if !ok {
		l = &sync.Mutex{}
		m.locks[roomCode] = l
	}
	return l
}

func (m *Manager) dropLock(roomCode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, roomCode)
}

// CreateRoom allocates a friends-mode room in lobby status, adds the
// host as a player with a fresh ticket and registers the connection.
func (m *Manager) CreateRoom(ctx context.Context, hostSessionID, hostName string, sess *session.Session) (string, error) {
	return m.createRoom(ctx, models.ModeFriends, hostSessionID, hostName, sess)
}

// CreateSoloRoom is CreateRoom in solo mode: two bot players with their
// own tickets and no live connection are added immediately.
func (m *Manager) CreateSoloRoom(ctx context.Context, hostSessionID, hostName string, sess *session.Session) (string, error) {
	return m.createRoom(ctx, models.ModeSolo, hostSessionID, hostName, sess)
}

func (m *Manager) createRoom(ctx context.Context, mode models.RoomMode, hostSessionID, hostName string, sess *session.Session) (string, error) {
	roomCode, err := m.allocateRoomCode(ctx)
	if err != nil {
		return "", err
	}

	room, err := m.store.CreateRoom(ctx, &models.Room{
		RoomCode:       roomCode,
		HostID:         hostSessionID,
		Status:         models.StatusLobby,
		Mode:           mode,
		CalledNumbers:  models.NumberList{},
		CallIntervalMs: int(m.callInterval / time.Millisecond),
	})
	if err != nil {
		return "", err
	}

	if _, err := m.store.AddPlayer(ctx, newPlayer(room.ID, hostSessionID, hostName, false, true)); err != nil {
		return "", err
	}

	if mode == models.ModeSolo {
		for _, botName := range botNames {
			bot := newPlayer(room.ID, fmt.Sprintf("bot-%s", uuid.NewString()), botName, true, false)
			if _, err := m.store.AddPlayer(ctx, bot); err != nil {
				return "", err
			}
		}
	}

	m.registry.Register(roomCode, sess)
	m.metrics.ActiveRooms.Inc()

	logger.Log.Infof("Room %s created (mode=%s) by session %s", roomCode, mode, hostSessionID)
	return roomCode, nil
}

// allocateRoomCode draws random 4-digit codes until one is free. The
// source this game descends from skipped the check; it is a retry loop
// here so a duplicate code can never clobber a live room.
func (m *Manager) allocateRoomCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := fmt.Sprintf("%04d", 1000+rand.Intn(9000))
		_, err := m.store.GetRoom(ctx, code)
		if err == store.ErrNotFound {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free room code after %d attempts", maxCodeAttempts)
}

func newPlayer(roomID, sessionID, name string, isBot, isHost bool) *models.Player {
	return &models.Player{
		RoomID:     roomID,
		SessionID:  sessionID,
		Name:       name,
		IsBot:      isBot,
		IsHost:     isHost,
		TicketData: ticket.Generate(),
		Avatar:     fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/svg?seed=%s", name),
	}
}

// JoinRoom adds a player to a lobby-status room and registers the
// connection. It returns false when the room does not exist or the game
// has already started; joining after start is disallowed.
func (m *Manager) JoinRoom(ctx context.Context, roomCode, sessionID, playerName string, sess *session.Session) (bool, error) {
	l := m.roomLock(roomCode)
	l.Lock()
	defer l.Unlock()

	room, err := m.store.GetRoom(ctx, roomCode)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if room.Status != models.StatusLobby {
		return false, nil
	}

	if _, err := m.store.AddPlayer(ctx, newPlayer(room.ID, sessionID, playerName, false, false)); err != nil {
		return false, err
	}

	m.registry.Register(roomCode, sess)

	m.broadcastLocked(ctx, roomCode)
	logger.Log.Infof("Session %s joined room %s", sessionID, roomCode)
	return true, nil
}

// StartGame moves a lobby room into countdown, then schedules the
// one-shot transition to running plus the repeating draw loop. A missing
// room, or a room already past the lobby, is a no-op.
func (m *Manager) StartGame(ctx context.Context, roomCode string) error {
	l := m.roomLock(roomCode)
	l.Lock()
	defer l.Unlock()

	room, err := m.store.GetRoom(ctx, roomCode)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if !canTransition(room.Status, models.StatusCountdown) {
		return nil
	}

	status := models.StatusCountdown
	if _, err := m.store.UpdateRoom(ctx, roomCode, store.RoomUpdate{Status: &status}); err != nil {
		return err
	}
	m.broadcastLocked(ctx, roomCode)

	if rs, ok := m.registry.Get(roomCode); ok {
		id := m.sched.Schedule(m.countdown, 0, func() {
			m.beginRunning(roomCode)
		})
		rs.SetCountdownTimer(id)
	}

	logger.Log.Infof("Room %s entering countdown (%v)", roomCode, m.countdown)
	return nil
}

// beginRunning is the delayed countdown-to-running transition.
func (m *Manager) beginRunning(roomCode string) {
	ctx := context.Background()

	l := m.roomLock(roomCode)
	l.Lock()
	defer l.Unlock()

	rs, ok := m.registry.Get(roomCode)
	if !ok {
		return
	}
	rs.ClearCountdownTimer()

	room, err := m.store.GetRoom(ctx, roomCode)
	if err != nil {
		if err != store.ErrNotFound {
			logger.Log.Errorf("Countdown transition failed for room %s: %v", roomCode, err)
		}
		return
	}
	if !canTransition(room.Status, models.StatusRunning) {
		return
	}

	status := models.StatusRunning
	if _, err := m.store.UpdateRoom(ctx, roomCode, store.RoomUpdate{Status: &status}); err != nil {
		logger.Log.Errorf("Countdown transition failed for room %s: %v", roomCode, err)
		return
	}
	m.broadcastLocked(ctx, roomCode)

	interval := time.Duration(room.CallIntervalMs) * time.Millisecond
	id := m.sched.Schedule(interval, interval, func() {
		m.drawTick(roomCode)
	})
	if !rs.SetDrawTimer(id) {
		// A loop is already running for this room; never start a second.
		m.sched.Cancel(id)
	}
}

// drawTick reveals one previously-undrawn number. When the undrawn set
// is exhausted the room ends and the loop stops. A tick that observes
// the room gone or no longer running cancels the loop defensively.
func (m *Manager) drawTick(roomCode string) {
	ctx := context.Background()

	l := m.roomLock(roomCode)
	l.Lock()
	defer l.Unlock()

	rs, ok := m.registry.Get(roomCode)
	if !ok {
		return
	}

	room, err := m.store.GetRoom(ctx, roomCode)
	if err != nil || room.Status != models.StatusRunning {
		m.stopDrawLoop(rs)
		return
	}

	var undrawn []int
	for n := 1; n <= models.DrawMax; n++ {
		if !room.CalledNumbers.Contains(n) {
			undrawn = append(undrawn, n)
		}
	}

	if len(undrawn) == 0 {
		status := models.StatusEnded
		if _, err := m.store.UpdateRoom(ctx, roomCode, store.RoomUpdate{Status: &status}); err != nil {
			logger.Log.Errorf("Failed to end game in room %s: %v", roomCode, err)
		}
		m.broadcastLocked(ctx, roomCode)
		m.stopDrawLoop(rs)
		logger.Log.Infof("All numbers called in room %s", roomCode)
		return
	}

	next := undrawn[rand.Intn(len(undrawn))]
	updated := append(models.NumberList{next}, room.CalledNumbers...)

	if _, err := m.store.UpdateRoom(ctx, roomCode, store.RoomUpdate{
		CurrentNumber: &next,
		CalledNumbers: updated,
	}); err != nil {
		logger.Log.Errorf("Failed to persist draw for room %s: %v", roomCode, err)
		return
	}

	m.metrics.NumbersDrawn.Inc()
	m.broadcastLocked(ctx, roomCode)
}

// stopDrawLoop cancels the room's draw timer. Calling it when no timer
// is active is a no-op.
func (m *Manager) stopDrawLoop(rs *session.RoomSession) {
	if id := rs.ClearDrawTimer(); id != 0 {
		m.sched.Cancel(id)
	}
}

// MarkCell toggles the marked flag of the addressed cell when it exists
// and is occupied; anything else is a silent no-op. The updated ticket
// is persisted and the room state rebroadcast either way. Marking never
// affects game status.
func (m *Manager) MarkCell(ctx context.Context, roomCode, playerID string, ticketIndex, rowIndex, colIndex int) error {
	l := m.roomLock(roomCode)
	l.Lock()
	defer l.Unlock()

	room, err := m.store.GetRoom(ctx, roomCode)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	players, err := m.store.ListPlayers(ctx, room.ID)
	if err != nil {
		return err
	}

	var player *models.Player
	for _, p := range players {
		if p.ID == playerID {
			player = p
			break
		}
	}
	if player == nil {
		return nil
	}

	if cell := player.TicketData.Cell(ticketIndex, rowIndex, colIndex); cell != nil {
		cell.Marked = !cell.Marked
	}

	if _, err := m.store.UpdatePlayer(ctx, playerID, store.PlayerUpdate{TicketData: player.TicketData}); err != nil {
		return err
	}

	m.broadcastLocked(ctx, roomCode)
	return nil
}

// BroadcastGameState pushes a fresh full-state snapshot to every live
// connection registered for the room.
func (m *Manager) BroadcastGameState(ctx context.Context, roomCode string) error {
	l := m.roomLock(roomCode)
	l.Lock()
	defer l.Unlock()

	m.broadcastLocked(ctx, roomCode)
	return nil
}

// broadcastLocked reads room and players fresh from the store and fans
// the snapshot out. Connections that are no longer open are skipped, not
// removed; removal happens only through disconnect handling. Callers
// hold the room lock.
func (m *Manager) broadcastLocked(ctx context.Context, roomCode string) {
	room, err := m.store.GetRoom(ctx, roomCode)
	if err != nil {
		return
	}

	players, err := m.store.ListPlayers(ctx, room.ID)
	if err != nil {
		return
	}

	rs, ok := m.registry.Get(roomCode)
	if !ok {
		return
	}

	data, err := json.Marshal(network.NewGameState(room, players))
	if err != nil {
		logger.Log.Errorf("Failed to marshal snapshot for room %s: %v", roomCode, err)
		return
	}

	for _, sess := range rs.Sessions() {
		if !sess.Conn.Open() {
			continue
		}
		if err := sess.Send(data); err != nil {
			logger.Log.Debugf("Broadcast send failed for session %s in room %s", sess.ID, roomCode)
		}
	}
}

// HandleDisconnect removes the session's player record and detaches the
// connection from any room that holds it. A room left with no
// connections is torn down: timers cancelled, registry entry dropped,
// room deleted from the store. Calling it again for the same session is
// a no-op.
func (m *Manager) HandleDisconnect(ctx context.Context, sessionID string) error {
	if err := m.store.RemovePlayerBySession(ctx, sessionID); err != nil {
		logger.Log.Errorf("Failed to remove player for session %s: %v", sessionID, err)
	}

	for _, rs := range m.registry.RoomsWithSession(sessionID) {
		roomCode := rs.RoomCode

		l := m.roomLock(roomCode)
		l.Lock()

		if !rs.Detach(sessionID) {
			l.Unlock()
			continue
		}

		m.broadcastLocked(ctx, roomCode)

		if rs.Empty() {
			m.stopDrawLoop(rs)
			if id := rs.ClearCountdownTimer(); id != 0 {
				m.sched.Cancel(id)
			}
			m.registry.Remove(roomCode)
			if err := m.store.DeleteRoom(ctx, roomCode); err != nil && err != store.ErrNotFound {
				logger.Log.Errorf("Failed to delete room %s: %v", roomCode, err)
			}
			m.metrics.ActiveRooms.Dec()
			logger.Log.Infof("Room %s is empty, tearing down", roomCode)

			l.Unlock()
			m.dropLock(roomCode)
			continue
		}

		l.Unlock()
	}

	return nil
}
