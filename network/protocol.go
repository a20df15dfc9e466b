// network/protocol.go
package network

import (
	"encoding/json"
	"fmt"

	"github.com/tambolahq/tambola-server/models"
)

// Client -> server message types.
const (
	MsgCreateRoom     = "create_room"
	MsgCreateSoloRoom = "create_solo_room"
	MsgJoinRoom       = "join_room"
	MsgStartGame      = "start_game"
	MsgMarkCell       = "mark_cell"
)

// Server -> client message types.
const (
	MsgGameState   = "game_state"
	MsgRoomCreated = "room_created"
	MsgRoomJoined  = "room_joined"
	MsgError       = "error"
)

// ClientMessage is the inbound envelope, discriminated by Type. Index
// fields are pointers so a missing field is distinguishable from zero.
type ClientMessage struct {
	Type        string `json:"type"`
	PlayerName  string `json:"playerName,omitempty"`
	RoomCode    string `json:"roomCode,omitempty"`
	PlayerID    string `json:"playerId,omitempty"`
	TicketIndex *int   `json:"ticketIndex,omitempty"`
	RowIndex    *int   `json:"rowIndex,omitempty"`
	ColIndex    *int   `json:"colIndex,omitempty"`
}

// DecodeClientMessage parses and validates an inbound frame. A non-nil
// error means the message is malformed and the sender should get an
// error reply; the connection stays open either way.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}

	switch msg.Type {
	case MsgCreateRoom, MsgCreateSoloRoom:
		if msg.PlayerName == "" {
			return nil, fmt.Errorf("%s: playerName is required", msg.Type)
		}
	case MsgJoinRoom:
		if msg.RoomCode == "" || msg.PlayerName == "" {
			return nil, fmt.Errorf("join_room: roomCode and playerName are required")
		}
	case MsgStartGame:
		if msg.RoomCode == "" {
			return nil, fmt.Errorf("start_game: roomCode is required")
		}
	case MsgMarkCell:
		if msg.RoomCode == "" || msg.PlayerID == "" {
			return nil, fmt.Errorf("mark_cell: roomCode and playerId are required")
		}
		if msg.TicketIndex == nil || msg.RowIndex == nil || msg.ColIndex == nil {
			return nil, fmt.Errorf("mark_cell: ticketIndex, rowIndex and colIndex are required")
		}
	default:
		return nil, fmt.Errorf("unknown message type: %q", msg.Type)
	}

	return &msg, nil
}

// GameState is the full-state snapshot pushed on every state change.
type GameState struct {
	Type    string           `json:"type"`
	Room    *models.Room     `json:"room"`
	Players []*models.Player `json:"players"`
}

type RoomCreated struct {
	Type     string `json:"type"`
	RoomCode string `json:"roomCode"`
}

type RoomJoined struct {
	Type     string `json:"type"`
	RoomCode string `json:"roomCode"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewGameState builds a game_state snapshot envelope.
func NewGameState(room *models.Room, players []*models.Player) *GameState {
	return &GameState{Type: MsgGameState, Room: room, Players: players}
}

func NewRoomCreated(roomCode string) *RoomCreated {
	return &RoomCreated{Type: MsgRoomCreated, RoomCode: roomCode}
}

func NewRoomJoined(roomCode string) *RoomJoined {
	return &RoomJoined{Type: MsgRoomJoined, RoomCode: roomCode}
}

func NewError(message string) *ErrorMessage {
	return &ErrorMessage{Type: MsgError, Message: message}
}
