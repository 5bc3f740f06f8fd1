package playlist

import (
	"math/rand"
	"testing"
	"time"

	"github.com/codedghost/twitch-songbot/internal/localdb"
)

func allPresent(localdb.SongRequest) bool  { return true }
func nonePresent(localdb.SongRequest) bool { return false }

func TestAdvanceEmptyQueueClearsCurrent(t *testing.T) {
	r := newRotation(rand.New(rand.NewSource(1)))
	cur := reqAt(1, "alice", time.Now())
	r.current = &cur

	r.advance(nil, nil, allPresent, 2)
	if r.current != nil {
		t.Fatalf("expected no current item, got id=%d", r.current.ID)
	}
}

func TestAdvanceSuperVipPreemptsEverything(t *testing.T) {
	base := time.Now()
	r := newRotation(rand.New(rand.NewSource(1)))
	cur := vipAt(1, "alice", base, base)
	r.current = &cur

	regular := []localdb.SongRequest{reqAt(2, "bob", base)}
	vips := OrderVip([]localdb.SongRequest{
		vipAt(3, "carol", base, base),
		superAt(4, "dave", base, base.Add(time.Minute)),
	})

	r.advance(regular, vips, allPresent, 2)
	if r.current == nil || r.current.ID != 4 {
		t.Fatalf("super vip should preempt: got=%v", r.current)
	}
}

func TestAdvanceVipStreakCapForcesRegular(t *testing.T) {
	base := time.Now()
	r := newRotation(rand.New(rand.NewSource(1)))

	regular := []localdb.SongRequest{reqAt(10, "reg", base)}
	vips := []localdb.SongRequest{
		vipAt(1, "v1", base, base),
		vipAt(2, "v2", base, base.Add(time.Second)),
		vipAt(3, "v3", base, base.Add(2*time.Second)),
	}

	// First selection from a regular (non-vip) previous item: vip wins.
	r.advance(regular, vips, allPresent, 2)
	if r.current == nil || r.current.ID != 1 {
		t.Fatalf("first advance should pick vip head: got=%v", r.current)
	}

	// Second consecutive evaluation stays on vip (streak 1 < cap 2).
	r.advance(regular, vips[1:], allPresent, 2)
	if r.current == nil || r.current.ID != 2 {
		t.Fatalf("second advance should stay on vip: got=%v", r.current)
	}

	// Third consecutive evaluation hits the cap and switches to the
	// present regular request.
	r.advance(regular, vips[2:], allPresent, 2)
	if r.current == nil || r.current.ID != 10 {
		t.Fatalf("third advance should switch to regular: got=%v", r.current)
	}
	if r.vipStreak != 0 {
		t.Fatalf("streak not reset after regular pick: got=%d", r.vipStreak)
	}
}

func TestAdvanceStaysOnVipWhenNoRegularPresent(t *testing.T) {
	base := time.Now()
	r := newRotation(rand.New(rand.NewSource(1)))
	cur := vipAt(1, "v1", base, base)
	r.current = &cur
	r.vipStreak = 5 // well past the cap

	regular := []localdb.SongRequest{reqAt(10, "reg", base)}
	vips := []localdb.SongRequest{vipAt(2, "v2", base, base)}

	r.advance(regular, vips, nonePresent, 2)
	if r.current == nil || r.current.ID != 2 {
		t.Fatalf("should stay on vip with no regular alternative: got=%v", r.current)
	}
}

func TestAdvancePicksRandomPresentRegular(t *testing.T) {
	base := time.Now()
	regular := []localdb.SongRequest{
		reqAt(1, "a", base),
		reqAt(2, "b", base.Add(time.Second)),
		reqAt(3, "c", base.Add(2*time.Second)),
	}

	// Only id 2's owner is present, so the random pick has one option.
	onlyB := func(sr localdb.SongRequest) bool { return sr.ID == 2 }

	r := newRotation(rand.New(rand.NewSource(42)))
	r.advance(regular, nil, onlyB, 2)
	if r.current == nil || r.current.ID != 2 {
		t.Fatalf("expected the only present regular: got=%v", r.current)
	}

	// Same seed, same candidates, same pick.
	first := newRotation(rand.New(rand.NewSource(7)))
	first.advance(regular, nil, allPresent, 2)
	second := newRotation(rand.New(rand.NewSource(7)))
	second.advance(regular, nil, allPresent, 2)
	if first.current.ID != second.current.ID {
		t.Fatalf("selection not deterministic for a fixed seed: %d vs %d",
			first.current.ID, second.current.ID)
	}
}

func TestEnsureCurrentPrefersVipHead(t *testing.T) {
	base := time.Now()
	r := newRotation(rand.New(rand.NewSource(1)))

	regular := []localdb.SongRequest{reqAt(1, "a", base)}
	vips := []localdb.SongRequest{vipAt(2, "b", base, base)}

	r.ensureCurrent(regular, vips)
	if r.current == nil || r.current.ID != 2 {
		t.Fatalf("expected vip head as current: got=%v", r.current)
	}

	// Already current, a second call must not switch.
	r.ensureCurrent(regular, nil)
	if r.current.ID != 2 {
		t.Fatalf("ensureCurrent replaced an existing current item")
	}
}
