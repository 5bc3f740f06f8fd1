package localdb

import (
	"database/sql"
	"fmt"

	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"go.uber.org/zap"
)

// GetSetting returns the stored value for a key, or "" when unset.
func GetSetting(key string) (string, error) {
	db := GetDB()
	if db == nil {
		return "", fmt.Errorf("database not initialized")
	}

	var value string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores or replaces a setting.
func SetSetting(key, value string) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := db.Exec(`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		logger.Error("Failed to set setting", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}
