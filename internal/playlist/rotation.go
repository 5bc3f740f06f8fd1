package playlist

import (
	"math/rand"

	"github.com/codedghost/twitch-songbot/internal/localdb"
)

// rotation owns the single current-item reference and the vip streak
// counter. All access is serialized by the Service mutex.
type rotation struct {
	rng       *rand.Rand
	current   *localdb.SongRequest
	vipStreak int
}

func newRotation(rng *rand.Rand) *rotation {
	return &rotation{rng: rng}
}

// ensureCurrent lazily makes a request current when none is. Vip head
// wins, otherwise a random regular request. Used after adds, where the
// freshly accepted request should start playing immediately if the
// session is idle.
func (r *rotation) ensureCurrent(regular, vip []localdb.SongRequest) {
	if r.current != nil {
		return
	}
	if len(vip) > 0 {
		head := vip[0]
		r.current = &head
		return
	}
	if len(regular) > 0 {
		pick := regular[r.rng.Intn(len(regular))]
		r.current = &pick
	}
}

// advance picks the next current item after the previous one finished.
// The lists passed in no longer contain the finished item. The streak
// counter caps consecutive vip selections at slots so present regular
// requesters eventually get a turn; a queued super vip request always
// wins outright.
func (r *rotation) advance(regular, vip []localdb.SongRequest, present func(localdb.SongRequest) bool, slots int) {
	prevWasVip := r.current != nil && isVip(*r.current)

	inChat := []localdb.SongRequest{}
	for _, sr := range regular {
		if present(sr) {
			inChat = append(inChat, sr)
		}
	}

	if len(inChat) == 0 && len(vip) == 0 {
		r.current = nil
		return
	}

	var pickSuper, pickVip, pickRegular bool
	if prevWasVip {
		r.vipStreak++
		switch {
		case hasSuperVip(vip):
			pickSuper = true
		case r.vipStreak < slots && len(vip) > 0:
			pickVip = true
		case len(inChat) > 0:
			r.vipStreak = 0
			pickRegular = true
		case len(vip) > 0:
			pickVip = true
		}
	} else {
		switch {
		case hasSuperVip(vip):
			pickSuper = true
		case len(vip) > 0:
			pickVip = true
		case len(inChat) > 0:
			pickRegular = true
		}
	}

	switch {
	case pickSuper:
		for _, sr := range vip {
			if isSuperVip(sr) {
				item := sr
				r.current = &item
				return
			}
		}
		r.current = nil
	case pickVip:
		head := vip[0]
		r.current = &head
	case pickRegular:
		pick := inChat[r.rng.Intn(len(inChat))]
		r.current = &pick
	default:
		r.current = nil
	}
}

func hasSuperVip(vip []localdb.SongRequest) bool {
	for _, sr := range vip {
		if isSuperVip(sr) {
			return true
		}
	}
	return false
}
