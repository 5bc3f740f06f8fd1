package vip

import (
	"path/filepath"
	"testing"

	"github.com/codedghost/twitch-songbot/internal/env"
	"github.com/codedghost/twitch-songbot/internal/localdb"
)

func setupLedger(t *testing.T) *Ledger {
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
	return NewLedger()
}

func TestRemainingFormula(t *testing.T) {
	ledger := setupLedger(t)

	if err := ledger.Grant("alice", SourceDonationOrBits, 3); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := ledger.Grant("alice", SourceFollow, 1); err != nil {
		t.Fatalf("Grant follow failed: %v", err)
	}
	if err := ledger.Grant("alice", SourceSub, 4); err != nil {
		t.Fatalf("Grant sub failed: %v", err)
	}

	remaining, err := ledger.Remaining("alice")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 8 {
		t.Fatalf("unexpected remaining: got=%d want=8", remaining)
	}

	if err := ledger.UseVip("alice"); err != nil {
		t.Fatalf("UseVip failed: %v", err)
	}
	remaining, err = ledger.Remaining("alice")
	if err != nil {
		t.Fatalf("Remaining after use failed: %v", err)
	}
	if remaining != 7 {
		t.Fatalf("unexpected remaining after vip use: got=%d want=7", remaining)
	}

	if err := ledger.UseSuperVip("alice"); err != nil {
		t.Fatalf("UseSuperVip failed: %v", err)
	}
	remaining, err = ledger.Remaining("alice")
	if err != nil {
		t.Fatalf("Remaining after super use failed: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("unexpected remaining after super vip use: got=%d want=2", remaining)
	}

	// Unknown users have a zero balance, not an error.
	remaining, err = ledger.Remaining("nobody")
	if err != nil {
		t.Fatalf("Remaining for unknown user failed: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("unexpected remaining for unknown user: got=%d want=0", remaining)
	}
}

func TestHasVipAndHasSuperVipThresholds(t *testing.T) {
	ledger := setupLedger(t)

	if err := ledger.Grant("alice", SourceSub, 5); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}

	hasVip, err := ledger.HasVip("alice")
	if err != nil {
		t.Fatalf("HasVip failed: %v", err)
	}
	if !hasVip {
		t.Fatalf("expected HasVip with positive balance")
	}

	// Exactly the super VIP cost is not enough.
	hasSuper, err := ledger.HasSuperVip("alice")
	if err != nil {
		t.Fatalf("HasSuperVip failed: %v", err)
	}
	if hasSuper {
		t.Fatalf("HasSuperVip should require balance above the cost")
	}

	if err := ledger.Grant("alice", SourceBytes, 1); err != nil {
		t.Fatalf("Grant bytes failed: %v", err)
	}
	hasSuper, err = ledger.HasSuperVip("alice")
	if err != nil {
		t.Fatalf("HasSuperVip second failed: %v", err)
	}
	if !hasSuper {
		t.Fatalf("expected HasSuperVip above the cost")
	}
}

func TestUseVipInsufficientBalance(t *testing.T) {
	ledger := setupLedger(t)

	if err := ledger.UseVip("alice"); err != ErrInsufficientBalance {
		t.Fatalf("unexpected error: got=%v want=%v", err, ErrInsufficientBalance)
	}
	if err := ledger.UseSuperVip("alice"); err != ErrInsufficientBalance {
		t.Fatalf("unexpected super error: got=%v want=%v", err, ErrInsufficientBalance)
	}
}

func TestRefundCreditsModGiven(t *testing.T) {
	ledger := setupLedger(t)

	if err := ledger.Grant("alice", SourceSub, 1); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := ledger.UseVip("alice"); err != nil {
		t.Fatalf("UseVip failed: %v", err)
	}
	if err := ledger.RefundVip("alice", false); err != nil {
		t.Fatalf("RefundVip failed: %v", err)
	}

	u, err := localdb.GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	// The used counter stays put; the refund lands as mod-given credit.
	if u.UsedVip != 1 {
		t.Fatalf("refund must not decrement used_vip: got=%d", u.UsedVip)
	}
	if u.ModGiven != 1 {
		t.Fatalf("unexpected mod_given after refund: got=%d want=1", u.ModGiven)
	}

	if err := ledger.RefundSuperVip("alice", false); err != nil {
		t.Fatalf("RefundSuperVip failed: %v", err)
	}
	u, err = localdb.GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser second failed: %v", err)
	}
	if u.ModGiven != 6 {
		t.Fatalf("unexpected mod_given after super refund: got=%d want=6", u.ModGiven)
	}
}

func TestDeferredRefundsBatch(t *testing.T) {
	ledger := setupLedger(t)

	if err := ledger.RefundVip("Alice", true); err != nil {
		t.Fatalf("RefundVip failed: %v", err)
	}
	if err := ledger.RefundVip("alice", true); err != nil {
		t.Fatalf("RefundVip second failed: %v", err)
	}
	if err := ledger.RefundSuperVip("bob", true); err != nil {
		t.Fatalf("RefundSuperVip failed: %v", err)
	}

	batch := ledger.TakePendingRefunds()
	if batch["alice"] != 2 {
		t.Fatalf("unexpected alice batch: got=%d want=2", batch["alice"])
	}
	if batch["bob"] != 5 {
		t.Fatalf("unexpected bob batch: got=%d want=5", batch["bob"])
	}

	// Drained after taking.
	if again := ledger.TakePendingRefunds(); len(again) != 0 {
		t.Fatalf("batch not drained: got=%d entries", len(again))
	}
}

func TestRestorePendingRefundsMergesBack(t *testing.T) {
	ledger := setupLedger(t)

	if err := ledger.RefundVip("alice", true); err != nil {
		t.Fatalf("RefundVip failed: %v", err)
	}
	batch := ledger.TakePendingRefunds()

	// A refund deferred while the batch was out merges with it.
	if err := ledger.RefundVip("alice", true); err != nil {
		t.Fatalf("RefundVip while drained failed: %v", err)
	}
	ledger.RestorePendingRefunds(batch)

	restored := ledger.TakePendingRefunds()
	if restored["alice"] != 2 {
		t.Fatalf("unexpected restored batch: got=%d want=2", restored["alice"])
	}
}

func TestGiftVip(t *testing.T) {
	ledger := setupLedger(t)

	if err := ledger.GiftVip("alice", "bob"); err != ErrInsufficientBalance {
		t.Fatalf("unexpected error for broke donor: got=%v", err)
	}

	if err := ledger.Grant("alice", SourceSub, 1); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := ledger.GiftVip("alice", "bob"); err != nil {
		t.Fatalf("GiftVip failed: %v", err)
	}

	remaining, err := ledger.Remaining("bob")
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("unexpected receiver balance: got=%d want=1", remaining)
	}
	remaining, err = ledger.Remaining("alice")
	if err != nil {
		t.Fatalf("Remaining donor failed: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("unexpected donor balance: got=%d want=0", remaining)
	}
}

func TestGrantRejectsUnknownSource(t *testing.T) {
	ledger := setupLedger(t)

	if err := ledger.Grant("alice", "lottery", 1); err != ErrUnknownSource {
		t.Fatalf("unexpected error: got=%v want=%v", err, ErrUnknownSource)
	}
}
