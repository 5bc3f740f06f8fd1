package twitcheventsub

import (
	"path/filepath"
	"testing"

	"github.com/codedghost/twitch-songbot/internal/env"
	"github.com/codedghost/twitch-songbot/internal/localdb"
	"github.com/codedghost/twitch-songbot/internal/vip"
)

func setupHandlers(t *testing.T) *vip.Ledger {
	t.Helper()

	if localdb.DBClient != nil {
		_ = localdb.DBClient.Close()
		localdb.DBClient = nil
	}

	dbPath := filepath.Join(t.TempDir(), "local.db")
	db, err := localdb.SetupDB(dbPath)
	if err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		localdb.DBClient = nil
	})

	env.Value.SuperVipCost = 5
	l := vip.NewLedger()
	SetLedger(l)
	return l
}

func TestCreditSubGrantsTokens(t *testing.T) {
	ledger := setupHandlers(t)

	creditSub("gifter", 5)

	remaining, err := ledger.Remaining("gifter")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("unexpected remaining: got=%d want=5", remaining)
	}
}

func TestCreditSubIgnoresEmptyAndZero(t *testing.T) {
	ledger := setupHandlers(t)

	creditSub("", 3)
	creditSub("someone", 0)

	remaining, err := ledger.Remaining("someone")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("unexpected remaining: got=%d want=0", remaining)
	}
}

func TestCreditFollowIsOnceOnly(t *testing.T) {
	ledger := setupHandlers(t)

	creditFollow("viewer")
	creditFollow("viewer")
	creditFollow("viewer")

	remaining, err := ledger.Remaining("viewer")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("follow credited more than once: got=%d want=1", remaining)
	}
}
