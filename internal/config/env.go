package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given .env files (default ".env").
// Missing files are ignored; variables already set in the process win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv fills settings from the environment. Values set in the config
// file take precedence over the environment.
func ApplyEnv(c *Config) {
	c.Database.Type = getEnvOrConfig(c.Database.Type, "DB_TYPE", "sqlite")
	c.Database.SQLite.Path = getEnvOrConfig(c.Database.SQLite.Path, "DB_PATH", "data/tracker.db")

	switch c.Database.Type {
	case "mysql":
		c.Database.MySQL.Host = getEnvOrConfig(c.Database.MySQL.Host, "DB_HOST", "mysql")
		c.Database.MySQL.Port = getEnvIntOrConfig(c.Database.MySQL.Port, "DB_PORT", 3306)
		c.Database.MySQL.User = getEnvOrConfig(c.Database.MySQL.User, "DB_USER", "tracker")
		c.Database.MySQL.Password = getEnvOrConfig(c.Database.MySQL.Password, "DB_PASSWORD", "")
		c.Database.MySQL.Database = getEnvOrConfig(c.Database.MySQL.Database, "DB_NAME", "tracker")
	case "postgres":
		c.Database.Postgres.Host = getEnvOrConfig(c.Database.Postgres.Host, "DB_HOST", "db")
		c.Database.Postgres.Port = getEnvIntOrConfig(c.Database.Postgres.Port, "DB_PORT", 5432)
		c.Database.Postgres.User = getEnvOrConfig(c.Database.Postgres.User, "DB_USER", "tracker")
		c.Database.Postgres.Password = getEnvOrConfig(c.Database.Postgres.Password, "DB_PASSWORD", "")
		c.Database.Postgres.Database = getEnvOrConfig(c.Database.Postgres.Database, "DB_NAME", "tracker")
	}

	c.Search.Meilisearch.Host = getEnvOrConfig(c.Search.Meilisearch.Host, "MEILISEARCH_HOST", "")
	c.Search.Meilisearch.APIKey = getEnvOrConfig(c.Search.Meilisearch.APIKey, "MEILISEARCH_KEY", "")

	c.Scraper.SearchURL = getEnvOrConfig(c.Scraper.SearchURL, "TRACKER_SEARCH_URL", "")
	c.Export.S3.Bucket = getEnvOrConfig(c.Export.S3.Bucket, "TRACKER_EXPORT_BUCKET", "")
	c.Server.Port = getEnvOrConfig(c.Server.Port, "PORT", "8084")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrConfig returns config value if set, otherwise falls back to environment variable, then default
func getEnvOrConfig(configValue, envKey, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	return getEnv(envKey, defaultValue)
}

func getEnvIntOrConfig(configValue int, envKey string, defaultValue int) int {
	if configValue > 0 {
		return configValue
	}
	if n, err := strconv.Atoi(os.Getenv(envKey)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}
