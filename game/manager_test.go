package game

import (
	"context"
	"encoding/json"
	"net"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tambolahq/tambola-server/models"
	"github.com/tambolahq/tambola-server/monitor"
	"github.com/tambolahq/tambola-server/network"
	"github.com/tambolahq/tambola-server/scheduler"
	"github.com/tambolahq/tambola-server/session"
	"github.com/tambolahq/tambola-server/store"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (m *MockConnection) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, data)
	return nil
}

func (m *MockConnection) ReadMessage() ([]byte, error) { return nil, nil }

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockConnection) RemoteAddr() net.Addr { return &net.TCPAddr{} }

func (m *MockConnection) Open() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// gameStates decodes every game_state frame the connection received.
func (m *MockConnection) gameStates(t *testing.T) []*network.GameState {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*network.GameState
	for _, frame := range m.frames {
		var probe struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(frame, &probe))
		if probe.Type != network.MsgGameState {
			continue
		}
		var gs network.GameState
		require.NoError(t, json.Unmarshal(frame, &gs))
		out = append(out, &gs)
	}
	return out
}

type testEnv struct {
	manager  *Manager
	store    *store.Memory
	registry *session.Registry
}

func newTestEnv(t *testing.T, countdown, interval time.Duration) *testEnv {
	t.Helper()

	sched := scheduler.New()
	t.Cleanup(sched.Stop)

	st := store.NewMemory()
	registry := session.NewRegistry()

	manager := NewManager(Options{
		Store:          st,
		Registry:       registry,
		Scheduler:      sched,
		Metrics:        monitor.NewMetrics("test"),
		CountdownDelay: countdown,
		CallInterval:   interval,
	})

	return &testEnv{manager: manager, store: st, registry: registry}
}

func newConnSession(id string) (*session.Session, *MockConnection) {
	conn := &MockConnection{}
	return session.NewSession(id, conn), conn
}

func TestCreateSoloRoom_AddsTwoBots(t *testing.T) {
	env := newTestEnv(t, time.Hour, time.Hour)
	ctx := context.Background()

	sess, _ := newConnSession("host")
	roomCode, err := env.manager.CreateSoloRoom(ctx, "host", "Alice", sess)
	require.NoError(t, err)

	room, err := env.store.GetRoom(ctx, roomCode)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLobby, room.Status)
	assert.Equal(t, models.ModeSolo, room.Mode)
	assert.Equal(t, "host", room.HostID)

	players, err := env.store.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, players, 3)

	bots := 0
	var host *models.Player
	for _, p := range players {
		require.NotEmpty(t, p.TicketData, "every player gets a ticket")
		if p.IsBot {
			bots++
		}
		if p.IsHost {
			host = p
		}
	}
	assert.Equal(t, 2, bots)
	require.NotNil(t, host)
	assert.Equal(t, "Alice", host.Name)
}

func TestCreateRoom_CodeIsFourDigits(t *testing.T) {
	env := newTestEnv(t, time.Hour, time.Hour)
	ctx := context.Background()

	codePattern := regexp.MustCompile(`^\d{4}$`)
	for i := 0; i < 10; i++ {
		sess, _ := newConnSession("host")
		code, err := env.manager.CreateRoom(ctx, "host", "Alice", sess)
		require.NoError(t, err)
		assert.Regexp(t, codePattern, code)

		room, err := env.store.GetRoom(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, models.ModeFriends, room.Mode)

		require.NoError(t, env.store.DeleteRoom(ctx, code))
		env.registry.Remove(code)
	}
}

func TestJoinRoom_Success(t *testing.T) {
	env := newTestEnv(t, time.Hour, time.Hour)
	ctx := context.Background()

	hostSess, hostConn := newConnSession("host")
	roomCode, err := env.manager.CreateRoom(ctx, "host", "Alice", hostSess)
	require.NoError(t, err)

	joinSess, _ := newConnSession("joiner")
	ok, err := env.manager.JoinRoom(ctx, roomCode, "joiner", "Bob", joinSess)
	require.NoError(t, err)
	assert.True(t, ok)

	room, err := env.store.GetRoom(ctx, roomCode)
	require.NoError(t, err)
	players, err := env.store.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, players, 2)

	// Everyone in the room got the updated snapshot.
	states := hostConn.gameStates(t)
	require.NotEmpty(t, states)
	assert.Len(t, states[len(states)-1].Players, 2)
}

func TestJoinRoom_GatedAfterLobby(t *testing.T) {
	env := newTestEnv(t, time.Hour, time.Hour)
	ctx := context.Background()

	hostSess, _ := newConnSession("host")
	roomCode, err := env.manager.CreateRoom(ctx, "host", "Alice", hostSess)
	require.NoError(t, err)

	for _, status := range []models.RoomStatus{
		models.StatusCountdown, models.StatusRunning, models.StatusEnded,
	} {
		st := status
		_, err := env.store.UpdateRoom(ctx, roomCode, store.RoomUpdate{Status: &st})
		require.NoError(t, err)

		joinSess, _ := newConnSession("late")
		ok, err := env.manager.JoinRoom(ctx, roomCode, "late", "Late", joinSess)
		require.NoError(t, err)
		assert.Falsef(t, ok, "join must fail in %s", status)
	}

	// No player was added by the failed joins.
	room, err := env.store.GetRoom(ctx, roomCode)
	require.NoError(t, err)
	players, err := env.store.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, players, 1)

	// A room that does not exist also reports failure, not an error.
	joinSess, _ := newConnSession("ghost")
	ok, err := env.manager.JoinRoom(ctx, "0000", "ghost", "Ghost", joinSess)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStartGame_CountdownThenRunning(t *testing.T) {
	env := newTestEnv(t, 30*time.Millisecond, 40*time.Millisecond)
	ctx := context.Background()

	sess, _ := newConnSession("host")
	roomCode, err := env.manager.CreateSoloRoom(ctx, "host", "Alice", sess)
	require.NoError(t, err)

	require.NoError(t, env.manager.StartGame(ctx, roomCode))

	room, err := env.store.GetRoom(ctx, roomCode)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCountdown, room.Status, "countdown begins immediately")

	require.Eventually(t, func() bool {
		room, err := env.store.GetRoom(ctx, roomCode)
		if err != nil {
			return false
		}
		return room.Status == models.StatusRunning && len(room.CalledNumbers) >= 1
	}, 2*time.Second, 10*time.Millisecond, "room should be running with a first draw")

	room, err = env.store.GetRoom(ctx, roomCode)
	require.NoError(t, err)
	require.NotNil(t, room.CurrentNumber)
	assert.Equal(t, *room.CurrentNumber, room.CalledNumbers[0], "newest draw is at the front")

	rs, ok := env.registry.Get(roomCode)
	require.True(t, ok)
	assert.True(t, rs.DrawTimerActive())
}

func TestStartGame_MissingRoomIsNoop(t *testing.T) {
	env := newTestEnv(t, time.Hour, time.Hour)
	assert.NoError(t, env.manager.StartGame(context.Background(), "0000"))
}

func TestStartGame_SecondStartIsNoop(t *testing.T) {
	env := newTestEnv(t, time.Hour, time.Hour)
	ctx := context.Background()

	sess, _ := newConnSession("host")
	roomCode, err := env.manager.CreateRoom(ctx, "host", "Alice", sess)
	require.NoError(t, err)

	require.NoError(t, env.manager.StartGame(ctx, roomCode))
	require.NoError(t, env.manager.StartGame(ctx, roomCode), "restart attempt must be a silent no-op")

	room, err := env.store.GetRoom(ctx, roomCode)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCountdown, room.Status)
}

func TestDrawTick_NoDuplicatesAndExhaustion(t *testing.T) {
	env := newTestEnv(t, time.Hour, time.Hour)
	ctx := context.Background()

	sess, _ := newConnSession("host")
	roomCode, err := env.manager.CreateSoloRoom(ctx, "host", "Alice", sess)
	require.NoError(t, err)

	running := models.StatusRunning
	_, err = env.store.UpdateRoom(ctx, roomCode, store.RoomUpdate{Status: &running})
	require.NoError(t, err)

	// Drive the loop synchronously past exhaustion.
	for i := 0; i < models.DrawMax+5; i++ {
		env.manager.drawTick(roomCode)
	}

	room, err := env.store.GetRoom(ctx, roomCode)
	require.NoError(t, err)

	assert.Equal(t, models.StatusEnded, room.Status)
	require.Len(t, room.CalledNumbers, models.DrawMax)

	seen := make(map[int]bool)
	for _, n := range room.CalledNumbers {
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, models.DrawMax)
		assert.Falsef(t, seen[n], "number %d drawn twice", n)
		seen[n] = true
	}

	rs, ok := env.registry.Get(roomCode)
	require.True(t, ok)
	assert.False(t, rs.DrawTimerActive(), "draw timer cancelled on exhaustion")
}

func TestDrawTick_StopsWhenRoomGone(t *testing.T) {
	env := newTestEnv(t, time.Hour, time.Hour)
	ctx := context.Background()

	sess, _ := newConnSession("host")
	roomCode, err := env.manager.CreateRoom(ctx, "host", "Alice", sess)
	require.NoError(t, err)

	require.NoError(t, env.store.DeleteRoom(ctx, roomCode))

	// A tick that finds no room must not panic and must leave no timer.
	env.manager.drawTick(roomCode)

	rs, ok := env.registry.Get(roomCode)
	require.True(t, ok)
	assert.False(t, rs.DrawTimerActive())
}

func TestMarkCell_TogglesOccupiedCell(t *testing.T) {
	env := newTestEnv(t, time.Hour, time.Hour)
	ctx := context.Background()

	sess, _ := newConnSession("host")
	roomCode, err := env.manager.CreateRoom(ctx, "host", "Alice", sess)
	require.NoError(t, err)

	room, err := env.store.GetRoom(ctx, roomCode)
	require.NoError(t, err)
	players, err := env.store.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	player := players[0]

	// Find an occupied cell.
	var row, col int
	found := false
	grid := player.TicketData[0]
	for r := range grid {
		for c := range grid[r] {
			if grid[r][c] != nil {
				row, col = r, c
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	require.True(t, found)

	require.NoError(t, env.manager.MarkCell(ctx, roomCode, player.ID, 0, row, col))

	players, err = env.store.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, players[0].TicketData[0][row][col].Marked)

	// Marking again toggles back.
	require.NoError(t, env.manager.MarkCell(ctx, roomCode, player.ID, 0, row, col))
	players, err = env.store.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, players[0].TicketData[0][row][col].Marked)
}

func TestMarkCell_EmptyAndOutOfRangeAreSilent(t *testing.T) {
	env := newTestEnv(t, time.Hour, time.Hour)
	ctx := context.Background()

	sess, conn := newConnSession("host")
	roomCode, err := env.manager.CreateRoom(ctx, "host", "Alice", sess)
	require.NoError(t, err)

	room, err := env.store.GetRoom(ctx, roomCode)
	require.NoError(t, err)
	players, err := env.store.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	player := players[0]

	// Find a blank grid position.
	var col int
	grid := player.TicketData[0]
	for c := range grid[0] {
		if grid[0][c] == nil {
			col = c
			break
		}
	}

	statesBefore := len(conn.gameStates(t))

	require.NoError(t, env.manager.MarkCell(ctx, roomCode, player.ID, 0, 0, col))
	require.NoError(t, env.manager.MarkCell(ctx, roomCode, player.ID, 5, 0, 0))
	require.NoError(t, env.manager.MarkCell(ctx, roomCode, player.ID, 0, 99, 99))

	// Ticket unchanged but the snapshots still went out.
	playersAfter, err := env.store.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, player.TicketData, playersAfter[0].TicketData)
	assert.Greater(t, len(conn.gameStates(t)), statesBefore)

	// Unknown room and unknown player are silent no-ops.
	require.NoError(t, env.manager.MarkCell(ctx, "0000", player.ID, 0, 0, 0))
	require.NoError(t, env.manager.MarkCell(ctx, roomCode, "ghost", 0, 0, 0))
}

func TestBroadcast_SkipsClosedConnections(t *testing.T) {
	env := newTestEnv(t, time.Hour, time.Hour)
	ctx := context.Background()

	hostSess, hostConn := newConnSession("host")
	roomCode, err := env.manager.CreateRoom(ctx, "host", "Alice", hostSess)
	require.NoError(t, err)

	joinSess, joinConn := newConnSession("joiner")
	ok, err := env.manager.JoinRoom(ctx, roomCode, "joiner", "Bob", joinSess)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, joinConn.Close())
	joinFrames := len(joinConn.frames)

	require.NoError(t, env.manager.BroadcastGameState(ctx, roomCode))

	assert.NotEmpty(t, hostConn.gameStates(t))
	assert.Equal(t, joinFrames, len(joinConn.frames), "closed connection is skipped")

	// The closed connection is skipped, not removed.
	rs, found := env.registry.Get(roomCode)
	require.True(t, found)
	assert.True(t, rs.Has("joiner"))
}

func TestHandleDisconnect_TearsDownEmptyRoom(t *testing.T) {
	env := newTestEnv(t, 20*time.Millisecond, 30*time.Millisecond)
	ctx := context.Background()

	sess, _ := newConnSession("host")
	roomCode, err := env.manager.CreateSoloRoom(ctx, "host", "Alice", sess)
	require.NoError(t, err)

	room, err := env.store.GetRoom(ctx, roomCode)
	require.NoError(t, err)
	roomID := room.ID

	require.NoError(t, env.manager.StartGame(ctx, roomCode))
	require.Eventually(t, func() bool {
		room, err := env.store.GetRoom(ctx, roomCode)
		return err == nil && room.Status == models.StatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, env.manager.HandleDisconnect(ctx, "host"))

	_, err = env.store.GetRoom(ctx, roomCode)
	assert.Equal(t, store.ErrNotFound, err, "room deleted from the store")
	assert.Equal(t, 0, env.registry.Count(), "registry entry removed")

	// Bots had no connection: their player rows went with the room.
	players, err := env.store.ListPlayers(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestHandleDisconnect_KeepsRoomWhileOthersConnected(t *testing.T) {
	env := newTestEnv(t, time.Hour, time.Hour)
	ctx := context.Background()

	hostSess, _ := newConnSession("host")
	roomCode, err := env.manager.CreateRoom(ctx, "host", "Alice", hostSess)
	require.NoError(t, err)

	joinSess, joinConn := newConnSession("joiner")
	ok, err := env.manager.JoinRoom(ctx, roomCode, "joiner", "Bob", joinSess)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, env.manager.HandleDisconnect(ctx, "host"))

	room, err := env.store.GetRoom(ctx, roomCode)
	require.NoError(t, err, "room survives while a connection remains")

	players, err := env.store.ListPlayers(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "Bob", players[0].Name)

	// The survivor was told about the departure.
	states := joinConn.gameStates(t)
	require.NotEmpty(t, states)
	assert.Len(t, states[len(states)-1].Players, 1)
}

func TestHandleDisconnect_Idempotent(t *testing.T) {
	env := newTestEnv(t, time.Hour, time.Hour)
	ctx := context.Background()

	sess, _ := newConnSession("host")
	_, err := env.manager.CreateRoom(ctx, "host", "Alice", sess)
	require.NoError(t, err)

	require.NoError(t, env.manager.HandleDisconnect(ctx, "host"))
	require.NoError(t, env.manager.HandleDisconnect(ctx, "host"))
	require.NoError(t, env.manager.HandleDisconnect(ctx, "never-connected"))
}
