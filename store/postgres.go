// store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/tambolahq/tambola-server/models"
)

// PostgreSQL is the plain database/sql implementation of Store.
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL opens a PostgreSQL connection and prepares the schema.
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS game_rooms (
            id VARCHAR(36) PRIMARY KEY,
            room_code VARCHAR(4) UNIQUE NOT NULL,
            host_id VARCHAR(64) NOT NULL,
            status VARCHAR(16) NOT NULL DEFAULT 'lobby',
            mode VARCHAR(16) NOT NULL DEFAULT 'friends',
            current_number INTEGER,
            called_numbers JSONB NOT NULL DEFAULT '[]',
            call_interval_ms INTEGER NOT NULL DEFAULT 4000,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`)
	if err != nil {
		return err
	}

	// Players cascade with their room.
	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS game_players (
            id VARCHAR(36) PRIMARY KEY,
            room_id VARCHAR(36) NOT NULL REFERENCES game_rooms(id) ON DELETE CASCADE,
            session_id VARCHAR(64) NOT NULL,
            name VARCHAR(64) NOT NULL,
            avatar VARCHAR(255),
            is_bot BOOLEAN NOT NULL DEFAULT FALSE,
            is_host BOOLEAN NOT NULL DEFAULT FALSE,
            ticket_data JSONB NOT NULL,
            joined_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_game_players_session ON game_players(session_id)`)
	return err
}

func (p *PostgreSQL) CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if room.CalledNumbers == nil {
		room.CalledNumbers = models.NumberList{}
	}
	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now

	called, err := json.Marshal(room.CalledNumbers)
	if err != nil {
		return nil, err
	}

	_, err = p.db.ExecContext(ctx, `
        INSERT INTO game_rooms
            (id, room_code, host_id, status, mode, current_number, called_numbers, call_interval_ms, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		room.ID, room.RoomCode, room.HostID, room.Status, room.Mode,
		room.CurrentNumber, called, room.CallIntervalMs, room.CreatedAt, room.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (p *PostgreSQL) GetRoom(ctx context.Context, roomCode string) (*models.Room, error) {
	row := p.db.QueryRowContext(ctx, `
        SELECT id, room_code, host_id, status, mode, current_number, called_numbers, call_interval_ms, created_at, updated_at
        FROM game_rooms WHERE room_code = $1`, roomCode)
	return scanRoom(row)
}

func scanRoom(row *sql.Row) (*models.Room, error) {
	var room models.Room
	var called []byte
	err := row.Scan(&room.ID, &room.RoomCode, &room.HostID, &room.Status, &room.Mode,
		&room.CurrentNumber, &called, &room.CallIntervalMs, &room.CreatedAt, &room.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(called, &room.CalledNumbers); err != nil {
		return nil, err
	}
	return &room, nil
}

func (p *PostgreSQL) UpdateRoom(ctx context.Context, roomCode string, update RoomUpdate) (*models.Room, error) {
	room, err := p.GetRoom(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	if update.Status != nil {
		room.Status = *update.Status
	}
	if update.CurrentNumber != nil {
		room.CurrentNumber = update.CurrentNumber
	}
	if update.CalledNumbers != nil {
		room.CalledNumbers = update.CalledNumbers
	}
	room.UpdatedAt = time.Now()

	called, err := json.Marshal(room.CalledNumbers)
	if err != nil {
		return nil, err
	}

	_, err = p.db.ExecContext(ctx, `
        UPDATE game_rooms
        SET status = $1, current_number = $2, called_numbers = $3, updated_at = $4
        WHERE room_code = $5`,
		room.Status, room.CurrentNumber, called, room.UpdatedAt, roomCode)
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (p *PostgreSQL) DeleteRoom(ctx context.Context, roomCode string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM game_rooms WHERE room_code = $1`, roomCode)
	return err
}

func (p *PostgreSQL) AddPlayer(ctx context.Context, player *models.Player) (*models.Player, error) {
	if player.ID == "" {
		player.ID = uuid.NewString()
	}
	player.JoinedAt = time.Now()

	tickets, err := json.Marshal(player.TicketData)
	if err != nil {
		return nil, err
	}

	_, err = p.db.ExecContext(ctx, `
        INSERT INTO game_players
            (id, room_id, session_id, name, avatar, is_bot, is_host, ticket_data, joined_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		player.ID, player.RoomID, player.SessionID, player.Name, player.Avatar,
		player.IsBot, player.IsHost, tickets, player.JoinedAt)
	if err != nil {
		return nil, err
	}
	return player, nil
}

func (p *PostgreSQL) ListPlayers(ctx context.Context, roomID string) ([]*models.Player, error) {
	rows, err := p.db.QueryContext(ctx, `
        SELECT id, room_id, session_id, name, avatar, is_bot, is_host, ticket_data, joined_at
        FROM game_players WHERE room_id = $1 ORDER BY joined_at`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []*models.Player
	for rows.Next() {
		var player models.Player
		var avatar sql.NullString
		var tickets []byte
		if err := rows.Scan(&player.ID, &player.RoomID, &player.SessionID, &player.Name,
			&avatar, &player.IsBot, &player.IsHost, &tickets, &player.JoinedAt); err != nil {
			return nil, err
		}
		player.Avatar = avatar.String
		if err := json.Unmarshal(tickets, &player.TicketData); err != nil {
			return nil, err
		}
		players = append(players, &player)
	}
	return players, rows.Err()
}

func (p *PostgreSQL) UpdatePlayer(ctx context.Context, playerID string, update PlayerUpdate) (*models.Player, error) {
	row := p.db.QueryRowContext(ctx, `
        SELECT id, room_id, session_id, name, avatar, is_bot, is_host, ticket_data, joined_at
        FROM game_players WHERE id = $1`, playerID)

	var player models.Player
	var avatar sql.NullString
	var tickets []byte
	err := row.Scan(&player.ID, &player.RoomID, &player.SessionID, &player.Name,
		&avatar, &player.IsBot, &player.IsHost, &tickets, &player.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	player.Avatar = avatar.String
	if err := json.Unmarshal(tickets, &player.TicketData); err != nil {
		return nil, err
	}

	if update.Name != nil {
		player.Name = *update.Name
	}
	if update.TicketData != nil {
		player.TicketData = update.TicketData
	}

	tickets, err = json.Marshal(player.TicketData)
	if err != nil {
		return nil, err
	}

	_, err = p.db.ExecContext(ctx, `
        UPDATE game_players SET name = $1, ticket_data = $2 WHERE id = $3`,
		player.Name, tickets, playerID)
	if err != nil {
		return nil, err
	}
	return &player, nil
}

func (p *PostgreSQL) RemovePlayer(ctx context.Context, playerID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM game_players WHERE id = $1`, playerID)
	return err
}

func (p *PostgreSQL) RemovePlayerBySession(ctx context.Context, sessionID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM game_players WHERE session_id = $1`, sessionID)
	return err
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
