// services/room_service.go
package services

import (
	"context"

	"github.com/tambolahq/tambola-server/models"
	"github.com/tambolahq/tambola-server/store"
)

// RoomService is the read side shared by the REST endpoint and the
// admin RPC surface. It never mutates state.
type RoomService struct {
	store store.Store
}

func NewRoomService(st store.Store) *RoomService {
	return &RoomService{store: st}
}

// GetRoomInfo returns the room and its players. store.ErrNotFound is
// passed through when the code is unknown.
func (s *RoomService) GetRoomInfo(ctx context.Context, roomCode string) (*models.Room, []*models.Player, error) {
	room, err := s.store.GetRoom(ctx, roomCode)
	if err != nil {
		return nil, nil, err
	}

	players, err := s.store.ListPlayers(ctx, room.ID)
	if err != nil {
		return nil, nil, err
	}

	return room, players, nil
}
