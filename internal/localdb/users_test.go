package localdb

import (
	"testing"
	"time"
)

func TestEnsureUserNormalizesAndIsIdempotent(t *testing.T) {
	setupTestDB(t)

	if err := EnsureUser("  Alice "); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	if err := EnsureUser("ALICE"); err != nil {
		t.Fatalf("EnsureUser second failed: %v", err)
	}

	u, err := GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if u == nil {
		t.Fatalf("expected user, got nil")
	}
	if u.Username != "alice" {
		t.Fatalf("username not normalized: got=%q want=%q", u.Username, "alice")
	}

	missing, err := GetUser("nobody")
	if err != nil {
		t.Fatalf("GetUser for missing user failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing user")
	}
}

func TestAddCreditWhitelist(t *testing.T) {
	setupTestDB(t)

	if err := AddCredit("alice", "sub", 3); err != nil {
		t.Fatalf("AddCredit failed: %v", err)
	}
	if err := AddCredit("alice", "bytes", 2); err != nil {
		t.Fatalf("AddCredit bytes failed: %v", err)
	}

	u, err := GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if u.Sub != 3 || u.Bytes != 2 {
		t.Fatalf("unexpected balances: sub=%d bytes=%d", u.Sub, u.Bytes)
	}

	if err := AddCredit("alice", "used_vip", 1); err == nil {
		t.Fatalf("expected error for non-income column")
	}
	if err := AddCredit("alice", "sub; DROP TABLE users", 1); err == nil {
		t.Fatalf("expected error for malformed column")
	}
	if err := AddCredit("alice", "sub", 0); err == nil {
		t.Fatalf("expected error for non-positive amount")
	}
}

func TestConsumeVipGuardsBalance(t *testing.T) {
	setupTestDB(t)

	const superVipCost = 5

	if err := AddCredit("alice", "follow", 2); err != nil {
		t.Fatalf("AddCredit failed: %v", err)
	}

	ok, err := ConsumeVip("alice", superVipCost)
	if err != nil {
		t.Fatalf("ConsumeVip failed: %v", err)
	}
	if !ok {
		t.Fatalf("first consume should succeed")
	}
	ok, err = ConsumeVip("alice", superVipCost)
	if err != nil {
		t.Fatalf("ConsumeVip second failed: %v", err)
	}
	if !ok {
		t.Fatalf("second consume should succeed")
	}

	// Balance now zero, third attempt must not go negative.
	ok, err = ConsumeVip("alice", superVipCost)
	if err != nil {
		t.Fatalf("ConsumeVip third failed: %v", err)
	}
	if ok {
		t.Fatalf("consume at zero balance should fail")
	}

	u, err := GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if u.UsedVip != 2 {
		t.Fatalf("unexpected used_vip: got=%d want=2", u.UsedVip)
	}
}

func TestConsumeSuperVipRequiresStrictlyMoreThanCost(t *testing.T) {
	setupTestDB(t)

	const superVipCost = 5

	if err := AddCredit("alice", "donation_or_bits", superVipCost); err != nil {
		t.Fatalf("AddCredit failed: %v", err)
	}

	// Exactly the cost is not enough.
	ok, err := ConsumeSuperVip("alice", superVipCost)
	if err != nil {
		t.Fatalf("ConsumeSuperVip failed: %v", err)
	}
	if ok {
		t.Fatalf("consume at exactly the cost should fail")
	}

	if err := AddCredit("alice", "follow", 1); err != nil {
		t.Fatalf("AddCredit follow failed: %v", err)
	}
	ok, err = ConsumeSuperVip("alice", superVipCost)
	if err != nil {
		t.Fatalf("ConsumeSuperVip second failed: %v", err)
	}
	if !ok {
		t.Fatalf("consume above the cost should succeed")
	}

	u, err := GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if u.UsedSuperVip != 1 {
		t.Fatalf("unexpected used_super_vip: got=%d want=1", u.UsedSuperVip)
	}
}

func TestRecordGift(t *testing.T) {
	setupTestDB(t)

	const superVipCost = 5

	if err := EnsureUser("bob"); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}

	// Donor with no balance cannot gift.
	ok, err := RecordGift("alice", "bob", superVipCost)
	if err != nil {
		t.Fatalf("RecordGift failed: %v", err)
	}
	if ok {
		t.Fatalf("gift with no balance should fail")
	}

	if err := AddCredit("alice", "sub", 1); err != nil {
		t.Fatalf("AddCredit failed: %v", err)
	}
	ok, err = RecordGift("alice", "bob", superVipCost)
	if err != nil {
		t.Fatalf("RecordGift second failed: %v", err)
	}
	if !ok {
		t.Fatalf("gift with balance should succeed")
	}

	alice, err := GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser alice failed: %v", err)
	}
	if alice.SentGift != 1 {
		t.Fatalf("unexpected sent_gift: got=%d want=1", alice.SentGift)
	}
	bob, err := GetUser("bob")
	if err != nil {
		t.Fatalf("GetUser bob failed: %v", err)
	}
	if bob.ReceivedGift != 1 {
		t.Fatalf("unexpected received_gift: got=%d want=1", bob.ReceivedGift)
	}
}

func TestTouchLastInChat(t *testing.T) {
	setupTestDB(t)

	at := time.Now().Truncate(time.Second)
	if err := TouchLastInChat("Alice", at); err != nil {
		t.Fatalf("TouchLastInChat failed: %v", err)
	}

	u, err := GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if u == nil || u.LastInChat == nil {
		t.Fatalf("expected last_in_chat to be set")
	}
	if !u.LastInChat.Equal(at) {
		t.Fatalf("unexpected last_in_chat: got=%v want=%v", u.LastInChat, at)
	}
}
