package localdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"go.uber.org/zap"
)

// SongRequest is one queued or archived request.
type SongRequest struct {
	ID           int64      `json:"song_request_id"`
	Username     string     `json:"username"`
	Text         string     `json:"request_text"`
	RequestTime  time.Time  `json:"request_time"`
	VipTime      *time.Time `json:"vip_request_time,omitempty"`
	SuperVipTime *time.Time `json:"super_vip_request_time,omitempty"`
	Played       bool       `json:"played"`
	InLibrary    bool       `json:"in_library"`
}

const songRequestColumns = `song_request_id, username, request_text, request_time,
	vip_request_time, super_vip_request_time, played, in_library`

func scanSongRequest(scan func(dest ...any) error) (SongRequest, error) {
	var sr SongRequest
	var vipTime, superVipTime sql.NullTime
	err := scan(&sr.ID, &sr.Username, &sr.Text, &sr.RequestTime,
		&vipTime, &superVipTime, &sr.Played, &sr.InLibrary)
	if err != nil {
		return SongRequest{}, err
	}
	if vipTime.Valid {
		t := vipTime.Time
		sr.VipTime = &t
	}
	if superVipTime.Valid {
		t := superVipTime.Time
		sr.SuperVipTime = &t
	}
	return sr, nil
}

// InsertSongRequest stores a new request and returns its id.
func InsertSongRequest(sr SongRequest) (int64, error) {
	db := GetDB()
	if db == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var vipTime, superVipTime any
	if sr.VipTime != nil {
		vipTime = *sr.VipTime
	}
	if sr.SuperVipTime != nil {
		superVipTime = *sr.SuperVipTime
	}

	res, err := db.Exec(`INSERT INTO song_requests
		(username, request_text, request_time, vip_request_time, super_vip_request_time, played, in_library)
		VALUES (?, ?, ?, ?, ?, false, false)`,
		sr.Username, sr.Text, sr.RequestTime, vipTime, superVipTime)
	if err != nil {
		logger.Error("Failed to insert song request", zap.Error(err), zap.String("username", sr.Username))
		return 0, fmt.Errorf("failed to insert song request: %w", err)
	}

	return res.LastInsertId()
}

// GetSongRequest returns one request by id.
func GetSongRequest(id int64) (*SongRequest, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	row := db.QueryRow(`SELECT `+songRequestColumns+` FROM song_requests WHERE song_request_id = ?`, id)
	sr, err := scanSongRequest(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.Error("Failed to get song request", zap.Error(err), zap.Int64("id", id))
		return nil, fmt.Errorf("failed to get song request: %w", err)
	}
	return &sr, nil
}

// ListUnplayed returns every non-archived request in insertion order.
func ListUnplayed() ([]SongRequest, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := db.Query(`SELECT ` + songRequestColumns +
		` FROM song_requests WHERE played = false ORDER BY song_request_id ASC`)
	if err != nil {
		logger.Error("Failed to list unplayed requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list unplayed requests: %w", err)
	}
	defer rows.Close()

	requests := []SongRequest{}
	for rows.Next() {
		sr, err := scanSongRequest(rows.Scan)
		if err != nil {
			logger.Error("Failed to scan song request", zap.Error(err))
			continue
		}
		requests = append(requests, sr)
	}

	return requests, rows.Err()
}

// CountActiveRegular counts a user's unplayed regular-tier requests,
// used to enforce the per-user submission cap.
func CountActiveRegular(username string) (int, error) {
	db := GetDB()
	if db == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM song_requests
		WHERE played = false AND vip_request_time IS NULL AND username = ?`, username).Scan(&n)
	if err != nil {
		logger.Error("Failed to count regular requests", zap.Error(err), zap.String("username", username))
		return 0, fmt.Errorf("failed to count regular requests: %w", err)
	}
	return n, nil
}

// HasUnplayedSuperVip reports whether a super VIP request is queued.
func HasUnplayedSuperVip() (bool, error) {
	db := GetDB()
	if db == nil {
		return false, fmt.Errorf("database not initialized")
	}

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM song_requests
		WHERE played = false AND super_vip_request_time IS NOT NULL`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check for super vip request: %w", err)
	}
	return n > 0, nil
}

// UpdateSongRequestText replaces the request text and clears the
// in-library flag, since edited text invalidates prepared material.
func UpdateSongRequestText(id int64, text string) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := db.Exec(`UPDATE song_requests
		SET request_text = ?, in_library = false WHERE song_request_id = ?`, text, id)
	if err != nil {
		logger.Error("Failed to update song request text", zap.Error(err), zap.Int64("id", id))
		return fmt.Errorf("failed to update song request text: %w", err)
	}
	return nil
}

// SetVipTime elevates a request to the VIP tier.
func SetVipTime(id int64, at time.Time) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := db.Exec(`UPDATE song_requests SET vip_request_time = ? WHERE song_request_id = ?`, at, id)
	if err != nil {
		logger.Error("Failed to set vip time", zap.Error(err), zap.Int64("id", id))
		return fmt.Errorf("failed to set vip time: %w", err)
	}
	return nil
}

// MarkPlayed archives a request.
func MarkPlayed(id int64) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := db.Exec(`UPDATE song_requests SET played = true WHERE song_request_id = ?`, id)
	if err != nil {
		logger.Error("Failed to mark request played", zap.Error(err), zap.Int64("id", id))
		return fmt.Errorf("failed to mark request played: %w", err)
	}
	return nil
}

// DeleteSongRequest removes a request outright (user-initiated removal,
// as opposed to archival).
func DeleteSongRequest(id int64) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := db.Exec(`DELETE FROM song_requests WHERE song_request_id = ?`, id)
	if err != nil {
		logger.Error("Failed to delete song request", zap.Error(err), zap.Int64("id", id))
		return fmt.Errorf("failed to delete song request: %w", err)
	}
	return nil
}

// SetInLibrary flags a request as having prepared material.
func SetInLibrary(id int64, inLibrary bool) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := db.Exec(`UPDATE song_requests SET in_library = ? WHERE song_request_id = ?`, inLibrary, id)
	if err != nil {
		logger.Error("Failed to set in_library", zap.Error(err), zap.Int64("id", id))
		return fmt.Errorf("failed to set in_library: %w", err)
	}
	return nil
}

// ClearUnplayedWithRefunds archives every unplayed request and credits
// the batched refunds in the same transaction, so a tier-wide clear is
// one durable write.
func ClearUnplayedWithRefunds(refunds map[string]int) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin clear transaction: %w", err)
	}

	for username, amount := range refunds {
		if amount <= 0 {
			continue
		}
		if _, err := tx.Exec(`UPDATE users SET mod_given = mod_given + ? WHERE username = ?`,
			amount, username); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to credit refund for %s: %w", username, err)
		}
	}

	if _, err := tx.Exec(`UPDATE song_requests SET played = true WHERE played = false`); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to archive queue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear transaction: %w", err)
	}

	logger.Info("Cleared request queue", zap.Int("refunded_users", len(refunds)))
	return nil
}
