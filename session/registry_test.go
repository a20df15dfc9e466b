package session

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	sess := NewSession("sess-1", &MockConnection{})
	rs := r.Register("1234", sess)
	require.NotNil(t, rs)
	assert.Equal(t, "1234", rs.RoomCode)

	got, ok := r.Get("1234")
	require.True(t, ok)
	assert.Same(t, rs, got)
	assert.True(t, got.Has("sess-1"))

	// A second register for the same room reuses the entry.
	sess2 := NewSession("sess-2", &MockConnection{})
	rs2 := r.Register("1234", sess2)
	assert.Same(t, rs, rs2)
	assert.Len(t, rs.Sessions(), 2)

	_, ok = r.Get("9999")
	assert.False(t, ok)
}

func TestRegistry_DetachAndEmpty(t *testing.T) {
	r := NewRegistry()
	rs := r.Register("1234", NewSession("sess-1", &MockConnection{}))

	assert.False(t, rs.Empty())
	assert.True(t, rs.Detach("sess-1"))
	assert.True(t, rs.Empty())

	// Detaching twice reports absence, not an error.
	assert.False(t, rs.Detach("sess-1"))
}

func TestRegistry_RoomsWithSession(t *testing.T) {
	r := NewRegistry()
	r.Register("1111", NewSession("a", &MockConnection{}))
	r.Register("2222", NewSession("a", &MockConnection{}))
	r.Register("3333", NewSession("b", &MockConnection{}))

	rooms := r.RoomsWithSession("a")
	assert.Len(t, rooms, 2)

	assert.Empty(t, r.RoomsWithSession("missing"))
	assert.Equal(t, 3, r.Count())

	r.Remove("1111")
	assert.Equal(t, 2, r.Count())
	r.Remove("1111") // idempotent
	assert.Equal(t, 2, r.Count())
}

func TestRoomSession_DrawTimerHandle(t *testing.T) {
	r := NewRegistry()
	rs := r.Register("1234", NewSession("a", &MockConnection{}))

	assert.False(t, rs.DrawTimerActive())
	assert.True(t, rs.SetDrawTimer(7))
	assert.True(t, rs.DrawTimerActive())

	// No second draw timer may exist for the same room.
	assert.False(t, rs.SetDrawTimer(8))

	assert.Equal(t, int64(7), rs.ClearDrawTimer())
	assert.Equal(t, int64(0), rs.ClearDrawTimer(), "clearing twice yields no handle")
	assert.False(t, rs.DrawTimerActive())
}

func TestRoomSession_CountdownTimerHandle(t *testing.T) {
	r := NewRegistry()
	rs := r.Register("1234", NewSession("a", &MockConnection{}))

	rs.SetCountdownTimer(3)
	assert.Equal(t, int64(3), rs.ClearCountdownTimer())
	assert.Equal(t, int64(0), rs.ClearCountdownTimer())
}

func TestSession_SendTracksActivity(t *testing.T) {
	conn := &MockConnection{}
	sess := NewSession("sess-1", conn)

	before := sess.LastActive
	require.NoError(t, sess.SendJSON(map[string]string{"type": "error"}))
	assert.False(t, sess.LastActive.Before(before))
	assert.Len(t, conn.frames, 1)
}
