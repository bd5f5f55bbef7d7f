package storage

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"supportchat/backend/internal/config"
)

// OpenBackend returns the backend selected by cfg.StoreBackend.
func OpenBackend(cfg config.Config) (Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b, err := NewGormBackend(db)
		if err != nil {
			return nil, fmt.Errorf("storage: migrate: %w", err)
		}
		log.Println("INFO: [storage] using postgres backend")
		return b, nil
	case config.BackendFile, "":
		b, err := NewFileBackend(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		log.Printf("INFO: [storage] using file backend in %s", cfg.DataDir)
		return b, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.StoreBackend)
	}
}

// OpenPostgres connects gorm through the lib/pq database/sql driver. dsn may be
// a postgres:// URL or a key=value connection string.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DATABASE_URL: %w", err)
	}
	sqlDB := sql.OpenDB(connector)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}
	return db, nil
}
