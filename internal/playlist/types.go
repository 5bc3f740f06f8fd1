package playlist

import (
	"errors"
	"fmt"

	"github.com/codedghost/twitch-songbot/internal/localdb"
)

// State gates which request tiers are currently accepted.
type State string

const (
	StateOpen       State = "Open"
	StateClosed     State = "Closed"
	StateVeryClosed State = "VeryClosed"
)

var (
	ErrPlaylistClosed     = errors.New("playlist is closed")
	ErrPlaylistVeryClosed = errors.New("playlist is very closed")
	ErrDuplicateRequest   = errors.New("user already has an active request")
	ErrOnlyOneSuper       = errors.New("a super vip request is already queued")
	ErrNotFound           = errors.New("request not found")
	ErrNoRequestEntered   = errors.New("no request text entered")
	ErrNoRequestInList    = errors.New("user has no request in the list")
	ErrNoRequestProvided  = errors.New("no replacement text provided")
	ErrArgument           = errors.New("could not resolve request from arguments")
	ErrPersistence        = errors.New("persistence failure")
)

// persistenceErr converts a store failure into ErrPersistence so callers
// can report it without crashing the rotation loop.
func persistenceErr(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

// Snapshot is the full queue view pushed to every subscriber after each
// committed mutation. The current item never appears in the tier lists.
type Snapshot struct {
	Revision string                `json:"revision"`
	State    State                 `json:"state"`
	Current  *localdb.SongRequest  `json:"current"`
	Regular  []localdb.SongRequest `json:"regular"`
	Vip      []localdb.SongRequest `json:"vip"`
}

// Tier membership is a pure function of the vip timestamps.

func isSuperVip(sr localdb.SongRequest) bool {
	return sr.SuperVipTime != nil
}

func isVip(sr localdb.SongRequest) bool {
	return sr.VipTime != nil
}

func isRegular(sr localdb.SongRequest) bool {
	return sr.VipTime == nil
}
