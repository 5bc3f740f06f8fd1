package localdb

import (
	"database/sql"
	"fmt"

	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var DBClient *sql.DB

// Token is an OAuth token row; persistence lives here so every package
// can reach it through the shared connection.
type Token struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresAt    int64
}

func SetupDB(dbPath string) (*sql.DB, error) {
	if DBClient != nil {
		return DBClient, nil
	}

	// WAL and a busy timeout guard against writer contention from the
	// chat and web surfaces mutating concurrently.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLite has a single writer, keep the pool at one connection.
	db.SetMaxOpenConns(1)

	DBClient = db

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS tokens (
		id INTEGER PRIMARY KEY,
		access_token TEXT,
		refresh_token TEXT,
		scope TEXT,
		expires_at INTEGER
	)`)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS song_requests (
		song_request_id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		request_text TEXT NOT NULL,
		request_time TIMESTAMP NOT NULL,
		vip_request_time TIMESTAMP,
		super_vip_request_time TIMESTAMP,
		played BOOLEAN NOT NULL DEFAULT false,
		in_library BOOLEAN NOT NULL DEFAULT false
	)`)
	if err != nil {
		logger.Error("Failed to create song_requests table", zap.Error(err))
		return nil, fmt.Errorf("failed to create song_requests table: %w", err)
	}

	if err := SetupUsersTable(db); err != nil {
		return nil, err
	}

	return db, nil
}

// GetDB returns the shared database connection.
func GetDB() *sql.DB {
	return DBClient
}
