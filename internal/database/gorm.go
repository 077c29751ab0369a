package database

import (
	"errors"
	"fmt"
	"listing-tracker/internal/config"
	"listing-tracker/internal/models"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a listing id is unknown
	ErrNotFound = errors.New("listing not found")
	// ErrUnknownField is returned when a field flip names a non-flippable field
	ErrUnknownField = errors.New("field cannot be updated")
)

// GormDB is the listing store. Writes are serialised through writeMu so the
// history append and the current-state upsert of one listing are never
// interleaved with another writer.
type GormDB struct {
	db      *gorm.DB
	writeMu sync.Mutex
	now     func() time.Time
}

// Open connects to the database selected by cfg.Type
func Open(cfg config.DatabaseConfig) (*GormDB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if cfg.LogQueries {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	if cfg.Type == "" || cfg.Type == "sqlite" {
		// one connection keeps sqlite writers from tripping over each other
		sqlDB.SetMaxOpenConns(1)
	}

	return NewGormDBFromDB(db), nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Type {
	case "", "sqlite":
		return sqliteDialector(cfg.SQLite)
	case "mysql":
		return mysqlDialector(cfg.MySQL), nil
	case "postgres":
		return postgresDialector(cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

// NewGormDBFromDB creates a GormDB wrapper from an existing gorm.DB instance
func NewGormDBFromDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db, now: time.Now}
}

// DB returns the underlying gorm.DB instance
func (gdb *GormDB) DB() *gorm.DB {
	return gdb.db
}

// SetClock replaces the clock used to stamp saves
func (gdb *GormDB) SetClock(now func() time.Time) {
	gdb.now = now
}

// Now returns the store's current time
func (gdb *GormDB) Now() time.Time {
	return gdb.now()
}

func (gdb *GormDB) Close() error {
	sqlDB, err := gdb.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (gdb *GormDB) InitSchema() error {
	return gdb.db.AutoMigrate(
		&models.Listing{},
		&models.HistoryEntry{},
		&models.PriceChange{},
		&models.DeleteLog{},
		&models.CycleState{},
	)
}
