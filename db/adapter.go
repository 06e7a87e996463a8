package db

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kasuganosora/battlerecorder/config"
	dbmysql "github.com/kasuganosora/battlerecorder/db/mysql"
	dbsqlite "github.com/kasuganosora/battlerecorder/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
	// ModeMemory is a private in-memory SQLite database, mostly for tests.
	ModeMemory = "memory"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MySQLMaxOpen, cfg.MySQLMaxIdle, cfg.MySQLMaxLife)
	case ModeMemory:
		// A unique name keeps parallel tests from sharing one database.
		return dbsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
