package localdb

import (
	"database/sql"
	"fmt"
)

// SaveToken persists a refreshed OAuth token.
func SaveToken(t Token) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := db.Exec(`INSERT INTO tokens (access_token, refresh_token, scope, expires_at)
		VALUES (?, ?, ?, ?)`,
		t.AccessToken, t.RefreshToken, t.Scope, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// GetLatestToken returns the most recently saved token, or nil when none
// has been stored yet.
func GetLatestToken() (*Token, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var t Token
	err := db.QueryRow(`SELECT access_token, refresh_token, scope, expires_at
		FROM tokens ORDER BY id DESC LIMIT 1`).
		Scan(&t.AccessToken, &t.RefreshToken, &t.Scope, &t.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest token: %w", err)
	}
	return &t, nil
}
