// store/interface.go
package store

import (
	"context"
	"fmt"

	"github.com/tambolahq/tambola-server/models"
)

// ErrNotFound is returned when a room or player record does not exist.
var ErrNotFound = fmt.Errorf("record not found")

// RoomUpdate is a partial room mutation. Nil fields are left untouched.
// The core never clears CurrentNumber once set, so a nil pointer always
// means "no change".
type RoomUpdate struct {
	Status        *models.RoomStatus
	CurrentNumber *int
	CalledNumbers models.NumberList
}

// PlayerUpdate is a partial player mutation. Nil fields are left
// untouched.
type PlayerUpdate struct {
	Name       *string
	TicketData models.TicketData
}

// Store 房间与玩家的持久化接口
//
// Each operation is atomic at the single-record level; callers get no
// multi-record transaction guarantee and must tolerate interleavings.
type Store interface {
	CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error)
	GetRoom(ctx context.Context, roomCode string) (*models.Room, error)
	UpdateRoom(ctx context.Context, roomCode string, update RoomUpdate) (*models.Room, error)
	DeleteRoom(ctx context.Context, roomCode string) error

	AddPlayer(ctx context.Context, player *models.Player) (*models.Player, error)
	ListPlayers(ctx context.Context, roomID string) ([]*models.Player, error)
	UpdatePlayer(ctx context.Context, playerID string, update PlayerUpdate) (*models.Player, error)
	RemovePlayer(ctx context.Context, playerID string) error
	RemovePlayerBySession(ctx context.Context, sessionID string) error

	Close() error
}
