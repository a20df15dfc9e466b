// store/memory.go
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tambolahq/tambola-server/models"
)

// Memory is an in-process Store used in tests and database-less
// development. Records are copied on the way in and out so callers never
// share memory with the store.
type Memory struct {
	mu      sync.RWMutex
	rooms   map[string]*models.Room   // roomCode -> room
	players map[string]*models.Player // playerID -> player
}

func NewMemory() *Memory {
	return &Memory{
		rooms:   make(map[string]*models.Room),
		players: make(map[string]*models.Player),
	}
}

func cloneRoom(r *models.Room) *models.Room {
	c := *r
	if r.CurrentNumber != nil {
		n := *r.CurrentNumber
		c.CurrentNumber = &n
	}
	c.CalledNumbers = append(models.NumberList{}, r.CalledNumbers...)
	return &c
}

func clonePlayer(p *models.Player) *models.Player {
	c := *p
	c.TicketData = cloneTicketData(p.TicketData)
	return &c
}

func cloneTicketData(data models.TicketData) models.TicketData {
	if data == nil {
		return nil
	}
	out := make(models.TicketData, len(data))
	for i, t := range data {
		grid := make(models.Ticket, len(t))
		for r, row := range t {
			grid[r] = make([]*models.Cell, len(row))
			for cIdx, cell := range row {
				if cell != nil {
					cc := *cell
					grid[r][cIdx] = &cc
				}
			}
		}
		out[i] = grid
	}
	return out
}

func (m *Memory) CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if room.CalledNumbers == nil {
		room.CalledNumbers = models.NumberList{}
	}
	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now

	m.rooms[room.RoomCode] = cloneRoom(room)
	return cloneRoom(room), nil
}

func (m *Memory) GetRoom(ctx context.Context, roomCode string) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomCode]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRoom(room), nil
}

func (m *Memory) UpdateRoom(ctx context.Context, roomCode string, update RoomUpdate) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomCode]
	if !ok {
		return nil, ErrNotFound
	}

	if update.Status != nil {
		room.Status = *update.Status
	}
	if update.CurrentNumber != nil {
		n := *update.CurrentNumber
		room.CurrentNumber = &n
	}
	if update.CalledNumbers != nil {
		room.CalledNumbers = append(models.NumberList{}, update.CalledNumbers...)
	}
	room.UpdatedAt = time.Now()

	return cloneRoom(room), nil
}

func (m *Memory) DeleteRoom(ctx context.Context, roomCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomCode]
	if !ok {
		return nil
	}
	delete(m.rooms, roomCode)

	// Cascade delete, as the SQL schema does with its foreign key.
	for id, p := range m.players {
		if p.RoomID == room.ID {
			delete(m.players, id)
		}
	}
	return nil
}

func (m *Memory) AddPlayer(ctx context.Context, player *models.Player) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if player.ID == "" {
		player.ID = uuid.NewString()
	}
	player.JoinedAt = time.Now()

	m.players[player.ID] = clonePlayer(player)
	return clonePlayer(player), nil
}

func (m *Memory) ListPlayers(ctx context.Context, roomID string) ([]*models.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var players []*models.Player
	for _, p := range m.players {
		if p.RoomID == roomID {
			players = append(players, clonePlayer(p))
		}
	}
	return players, nil
}

func (m *Memory) UpdatePlayer(ctx context.Context, playerID string, update PlayerUpdate) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	player, ok := m.players[playerID]
	if !ok {
		return nil, ErrNotFound
	}

	if update.Name != nil {
		player.Name = *update.Name
	}
	if update.TicketData != nil {
		player.TicketData = cloneTicketData(update.TicketData)
	}

	return clonePlayer(player), nil
}

func (m *Memory) RemovePlayer(ctx context.Context, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, playerID)
	return nil
}

func (m *Memory) RemovePlayerBySession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.players {
		if p.SessionID == sessionID {
			delete(m.players, id)
		}
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}
