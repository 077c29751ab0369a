package database

import (
	"database/sql"
	"fmt"
	"listing-tracker/internal/config"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func sqliteDialector(cfg config.SQLiteConfig) (gorm.Dialector, error) {
	path := cfg.Path
	if path == "" {
		path = "data/tracker.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return sqlite.Open(path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"), nil
}

func mysqlDialector(cfg config.MySQLConfig) gorm.Dialector {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	return mysql.Open(dsn)
}

// postgresDialector opens the connection through lib/pq and hands it to gorm
func postgresDialector(cfg config.PostgresConfig) (gorm.Dialector, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	return postgres.New(postgres.Config{Conn: conn}), nil
}
