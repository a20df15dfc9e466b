package main

import (
	"github.com/joho/godotenv"

	"github.com/tambolahq/tambola-server/config"
	"github.com/tambolahq/tambola-server/logger"
	"github.com/tambolahq/tambola-server/server"
	"github.com/tambolahq/tambola-server/store"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load .env, then configuration
	if err := godotenv.Load(); err != nil {
		logger.Log.Info("No .env file found, reading environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize room store
	st, err := openStore(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to open room store: %v", err)
	}
	logger.Log.Infof("Room store ready (driver=%s)", cfg.Database.Driver)

	// Initialize game server
	gameServer := server.NewGameServer(cfg, st)

	// Start server
	logger.Log.Infof("Starting tambola server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	pg := cfg.Database.Postgres
	switch cfg.Database.Driver {
	case "postgres":
		return store.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "gorm":
		return store.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	default:
		return store.NewMemory(), nil
	}
}
