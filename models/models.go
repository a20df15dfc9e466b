// models/models.go
package models

import (
	"time"
)

// RoomStatus is the lifecycle state of a game room.
type RoomStatus string

const (
	StatusLobby     RoomStatus = "lobby"
	StatusCountdown RoomStatus = "countdown"
	StatusRunning   RoomStatus = "running"
	StatusEnded     RoomStatus = "ended"
)

// RoomMode distinguishes rooms shared with friends from solo rooms that
// get filled with bot players at creation.
type RoomMode string

const (
	ModeSolo    RoomMode = "solo"
	ModeFriends RoomMode = "friends"
)

// DrawMax is the highest callable number. Tambola draws from 1..90.
const DrawMax = 90

// NumberList holds drawn numbers most-recent-first. Stored whole as a
// JSONB blob, never queried by sub-field.
type NumberList []int

// Contains reports whether n has already been drawn.
func (l NumberList) Contains(n int) bool {
	for _, v := range l {
		if v == n {
			return true
		}
	}
	return false
}

// Room 游戏房间记录
type Room struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	RoomCode       string     `json:"roomCode" gorm:"size:4;uniqueIndex;not null"`
	HostID         string     `json:"hostId" gorm:"not null"`
	Status         RoomStatus `json:"status" gorm:"not null;default:lobby"`
	Mode           RoomMode   `json:"mode" gorm:"not null;default:friends"`
	CurrentNumber  *int       `json:"currentNumber"`
	CalledNumbers  NumberList `json:"calledNumbers" gorm:"type:jsonb;serializer:json;not null"`
	CallIntervalMs int        `json:"callIntervalMs" gorm:"not null;default:4000"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Player 玩家记录
type Player struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	RoomID     string     `json:"roomId" gorm:"index;not null"`
	SessionID  string     `json:"sessionId" gorm:"index;not null"`
	Name       string     `json:"name" gorm:"not null"`
	Avatar     string     `json:"avatar"`
	IsBot      bool       `json:"isBot" gorm:"not null;default:false"`
	IsHost     bool       `json:"isHost" gorm:"not null;default:false"`
	TicketData TicketData `json:"ticketData" gorm:"type:jsonb;serializer:json;not null"`
	JoinedAt   time.Time  `json:"joinedAt"`
}

// Cell is one occupied position of a ticket grid.
type Cell struct {
	Number int    `json:"number"`
	Marked bool   `json:"marked"`
	ID     string `json:"id"`
}

// Ticket is a 3x9 grid; nil entries are the blank cells.
type Ticket [][]*Cell

// TicketData is the set of tickets owned by one player, stored whole as
// a JSONB blob.
type TicketData []Ticket

// Cell returns the addressed cell, or nil when the indices are out of
// range or the position is blank.
func (d TicketData) Cell(ticketIndex, rowIndex, colIndex int) *Cell {
	if ticketIndex < 0 || ticketIndex >= len(d) {
		return nil
	}
	t := d[ticketIndex]
	if rowIndex < 0 || rowIndex >= len(t) {
		return nil
	}
	row := t[rowIndex]
	if colIndex < 0 || colIndex >= len(row) {
		return nil
	}
	return row[colIndex]
}
