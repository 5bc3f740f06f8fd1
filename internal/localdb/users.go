package localdb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"go.uber.org/zap"
)

// User is one token account. Income buckets only ever grow (except by
// operator correction); consumption is tracked in the used counters so
// the remaining balance stays derivable.
type User struct {
	Username       string     `json:"username"`
	DonationOrBits int        `json:"donation_or_bits"`
	Follow         int        `json:"follow"`
	ModGiven       int        `json:"mod_given"`
	Sub            int        `json:"sub"`
	Bytes          int        `json:"bytes"`
	ReceivedGift   int        `json:"received_gift"`
	SentGift       int        `json:"sent_gift"`
	UsedVip        int        `json:"used_vip"`
	UsedSuperVip   int        `json:"used_super_vip"`
	LastInChat     *time.Time `json:"last_in_chat,omitempty"`
}

// remainingExpr computes the net balance in SQL so consumption can
// re-check affordability and commit in one statement. Takes the super
// VIP cost as its single parameter.
const remainingExpr = `(donation_or_bits + follow + mod_given + sub + bytes + received_gift
	- used_super_vip * ? - used_vip - sent_gift)`

func SetupUsersTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		donation_or_bits INTEGER NOT NULL DEFAULT 0,
		follow INTEGER NOT NULL DEFAULT 0,
		mod_given INTEGER NOT NULL DEFAULT 0,
		sub INTEGER NOT NULL DEFAULT 0,
		bytes INTEGER NOT NULL DEFAULT 0,
		received_gift INTEGER NOT NULL DEFAULT 0,
		sent_gift INTEGER NOT NULL DEFAULT 0,
		used_vip INTEGER NOT NULL DEFAULT 0,
		used_super_vip INTEGER NOT NULL DEFAULT 0,
		last_in_chat TIMESTAMP
	)`)
	if err != nil {
		logger.Error("Failed to create users table", zap.Error(err))
		return fmt.Errorf("failed to create users table: %w", err)
	}
	return nil
}

// NormalizeUsername lower-cases a user identifier; every users-table
// access goes through it.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// EnsureUser creates the account on first reference.
func EnsureUser(username string) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := db.Exec(`INSERT OR IGNORE INTO users (username) VALUES (?)`, NormalizeUsername(username))
	if err != nil {
		logger.Error("Failed to ensure user", zap.Error(err), zap.String("username", username))
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// GetUser returns an account, or nil when it does not exist yet.
func GetUser(username string) (*User, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var u User
	var lastInChat sql.NullTime
	err := db.QueryRow(`SELECT username, donation_or_bits, follow, mod_given, sub, bytes,
		received_gift, sent_gift, used_vip, used_super_vip, last_in_chat
		FROM users WHERE username = ?`, NormalizeUsername(username)).
		Scan(&u.Username, &u.DonationOrBits, &u.Follow, &u.ModGiven, &u.Sub, &u.Bytes,
			&u.ReceivedGift, &u.SentGift, &u.UsedVip, &u.UsedSuperVip, &lastInChat)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.Error("Failed to get user", zap.Error(err), zap.String("username", username))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if lastInChat.Valid {
		t := lastInChat.Time
		u.LastInChat = &t
	}
	return &u, nil
}

// TouchLastInChat records chat activity for presence tracking.
func TouchLastInChat(username string, at time.Time) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := EnsureUser(username); err != nil {
		return err
	}
	_, err := db.Exec(`UPDATE users SET last_in_chat = ? WHERE username = ?`,
		at, NormalizeUsername(username))
	if err != nil {
		logger.Error("Failed to touch last_in_chat", zap.Error(err), zap.String("username", username))
		return fmt.Errorf("failed to touch last_in_chat: %w", err)
	}
	return nil
}

// creditColumns whitelists the income buckets AddCredit may touch.
var creditColumns = map[string]bool{
	"donation_or_bits": true,
	"follow":           true,
	"mod_given":        true,
	"sub":              true,
	"bytes":            true,
}

// AddCredit grants tokens into one income bucket.
func AddCredit(username, column string, amount int) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	if !creditColumns[column] {
		return fmt.Errorf("unknown credit column %q", column)
	}
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	if err := EnsureUser(username); err != nil {
		return err
	}
	_, err := db.Exec(`UPDATE users SET `+column+` = `+column+` + ? WHERE username = ?`,
		amount, NormalizeUsername(username))
	if err != nil {
		logger.Error("Failed to add credit", zap.Error(err),
			zap.String("username", username), zap.String("column", column))
		return fmt.Errorf("failed to add credit: %w", err)
	}
	return nil
}

// ConsumeVip increments used_vip only while the remaining balance is
// still positive; the guard and the increment commit atomically, which
// closes the race between an affordability check and its use.
func ConsumeVip(username string, superVipCost int) (bool, error) {
	db := GetDB()
	if db == nil {
		return false, fmt.Errorf("database not initialized")
	}

	res, err := db.Exec(`UPDATE users SET used_vip = used_vip + 1
		WHERE username = ? AND `+remainingExpr+` > 0`,
		NormalizeUsername(username), superVipCost)
	if err != nil {
		logger.Error("Failed to consume vip", zap.Error(err), zap.String("username", username))
		return false, fmt.Errorf("failed to consume vip: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to consume vip: %w", err)
	}
	return n == 1, nil
}

// ConsumeSuperVip increments used_super_vip while remaining still
// exceeds the super VIP cost. Same atomic guard as ConsumeVip.
func ConsumeSuperVip(username string, superVipCost int) (bool, error) {
	db := GetDB()
	if db == nil {
		return false, fmt.Errorf("database not initialized")
	}

	res, err := db.Exec(`UPDATE users SET used_super_vip = used_super_vip + 1
		WHERE username = ? AND `+remainingExpr+` > ?`,
		NormalizeUsername(username), superVipCost, superVipCost)
	if err != nil {
		logger.Error("Failed to consume super vip", zap.Error(err), zap.String("username", username))
		return false, fmt.Errorf("failed to consume super vip: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to consume super vip: %w", err)
	}
	return n == 1, nil
}

// RecordGift moves one token from donor to receiver. The donor's
// eligibility is re-checked inside the transaction.
func RecordGift(donor, receiver string, superVipCost int) (bool, error) {
	db := GetDB()
	if db == nil {
		return false, fmt.Errorf("database not initialized")
	}

	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin gift transaction: %w", err)
	}

	res, err := tx.Exec(`UPDATE users SET sent_gift = sent_gift + 1
		WHERE username = ? AND `+remainingExpr+` > 0`,
		NormalizeUsername(donor), superVipCost)
	if err != nil {
		tx.Rollback()
		return false, fmt.Errorf("failed to debit gift donor: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		tx.Rollback()
		return false, nil
	}

	if _, err := tx.Exec(`UPDATE users SET received_gift = received_gift + 1 WHERE username = ?`,
		NormalizeUsername(receiver)); err != nil {
		tx.Rollback()
		return false, fmt.Errorf("failed to credit gift receiver: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit gift transaction: %w", err)
	}
	return true, nil
}
