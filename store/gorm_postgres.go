// store/gorm_postgres.go
package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tambolahq/tambola-server/models"
)

// GormPostgreSQL is the GORM-backed implementation of Store.
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL opens a GORM PostgreSQL connection and migrates the
// room and player tables.
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.Room{}, &models.Player{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func (g *GormPostgreSQL) CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if room.CalledNumbers == nil {
		room.CalledNumbers = models.NumberList{}
	}
	if err := g.db.WithContext(ctx).Create(room).Error; err != nil {
		return nil, err
	}
	return room, nil
}

func (g *GormPostgreSQL) GetRoom(ctx context.Context, roomCode string) (*models.Room, error) {
	var room models.Room
	err := g.db.WithContext(ctx).Where("room_code = ?", roomCode).First(&room).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (g *GormPostgreSQL) UpdateRoom(ctx context.Context, roomCode string, update RoomUpdate) (*models.Room, error) {
	var room models.Room
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_code = ?", roomCode).First(&room).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return err
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

		return tx.Save(&room).Error
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (g *GormPostgreSQL) DeleteRoom(ctx context.Context, roomCode string) error {
	// AutoMigrate does not install the FK cascade, so players are
	// removed explicitly in the same transaction.
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := tx.Where("room_code = ?", roomCode).First(&room).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		if err := tx.Where("room_id = ?", room.ID).Delete(&models.Player{}).Error; err != nil {
			return err
		}
		return tx.Delete(&room).Error
	})
}

func (g *GormPostgreSQL) AddPlayer(ctx context.Context, player *models.Player) (*models.Player, error) {
	if player.ID == "" {
		player.ID = uuid.NewString()
	}
	if err := g.db.WithContext(ctx).Create(player).Error; err != nil {
		return nil, err
	}
	return player, nil
}

func (g *GormPostgreSQL) ListPlayers(ctx context.Context, roomID string) ([]*models.Player, error) {
	var players []*models.Player
	err := g.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at").
		Find(&players).Error
	if err != nil {
		return nil, err
	}
	return players, nil
}

func (g *GormPostgreSQL) UpdatePlayer(ctx context.Context, playerID string, update PlayerUpdate) (*models.Player, error) {
	var player models.Player
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", playerID).First(&player).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return err
		}

		if update.Name != nil {
			player.Name = *update.Name
		}
		if update.TicketData != nil {
			player.TicketData = update.TicketData
		}

		return tx.Save(&player).Error
	})
	if err != nil {
		return nil, err
	}
	return &player, nil
}

func (g *GormPostgreSQL) RemovePlayer(ctx context.Context, playerID string) error {
	return g.db.WithContext(ctx).Where("id = ?", playerID).Delete(&models.Player{}).Error
}

func (g *GormPostgreSQL) RemovePlayerBySession(ctx context.Context, sessionID string) error {
	return g.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.Player{}).Error
}

func (g *GormPostgreSQL) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
