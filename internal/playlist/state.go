package playlist

import (
	"github.com/codedghost/twitch-songbot/internal/localdb"
	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"go.uber.org/zap"
)

const playlistStatusKey = "PlaylistStatus"

// GetState reads the persisted playlist status. An absent or mangled
// setting reads as VeryClosed so nothing is accepted until an operator
// opens the session.
func GetState() State {
	raw, err := localdb.GetSetting(playlistStatusKey)
	if err != nil {
		logger.Warn("Failed to read playlist status, treating as very closed", zap.Error(err))
		return StateVeryClosed
	}
	switch State(raw) {
	case StateOpen, StateClosed, StateVeryClosed:
		return State(raw)
	}
	return StateVeryClosed
}

func setState(s State) error {
	if err := localdb.SetSetting(playlistStatusKey, string(s)); err != nil {
		return persistenceErr(err)
	}
	logger.Info("Playlist state changed", zap.String("state", string(s)))
	return nil
}
