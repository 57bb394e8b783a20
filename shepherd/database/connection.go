package database

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// Swapped out by tests that need to observe fatal exits.
var LogFatal = log.Fatal

// GetDbConnection opens the roster database and applies the pool limits
// from LoadConfig. Connection failures at startup exit the process.
func GetDbConnection() *sql.DB {
	cfg, err := LoadConfig()
	if err != nil {
		LogFatal(err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		LogFatal(err)
	}
	if err := db.Ping(); err != nil {
		LogFatal(err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMin) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)

	return db
}
