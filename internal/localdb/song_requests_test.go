package localdb

import (
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) {
	t.Helper()

	if DBClient != nil {
		_ = DBClient.Close()
		DBClient = nil
	}

	dbPath := filepath.Join(t.TempDir(), "local.db")
	db, err := SetupDB(dbPath)
	if err != nil {
		t.Fatalf("SetupDB failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		DBClient = nil
	})
}

func TestSongRequestCRUD(t *testing.T) {
	setupTestDB(t)

	now := time.Now().Truncate(time.Second)
	id, err := InsertSongRequest(SongRequest{
		Username:    "alice",
		Text:        "Some Band - Some Song",
		RequestTime: now,
	})
	if err != nil {
		t.Fatalf("InsertSongRequest failed: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected non-zero id")
	}

	sr, err := GetSongRequest(id)
	if err != nil {
		t.Fatalf("GetSongRequest failed: %v", err)
	}
	if sr == nil {
		t.Fatalf("expected request, got nil")
	}
	if sr.Username != "alice" {
		t.Fatalf("unexpected username: got=%q want=%q", sr.Username, "alice")
	}
	if sr.VipTime != nil || sr.SuperVipTime != nil {
		t.Fatalf("fresh request should have no vip timestamps")
	}
	if sr.Played || sr.InLibrary {
		t.Fatalf("fresh request should not be played or in library")
	}

	if err := UpdateSongRequestText(id, "Other Band - Other Song"); err != nil {
		t.Fatalf("UpdateSongRequestText failed: %v", err)
	}
	if err := SetInLibrary(id, true); err != nil {
		t.Fatalf("SetInLibrary failed: %v", err)
	}
	if err := UpdateSongRequestText(id, "Third Band - Third Song"); err != nil {
		t.Fatalf("UpdateSongRequestText second failed: %v", err)
	}
	sr, err = GetSongRequest(id)
	if err != nil {
		t.Fatalf("GetSongRequest after edit failed: %v", err)
	}
	if sr.Text != "Third Band - Third Song" {
		t.Fatalf("unexpected text after edit: got=%q", sr.Text)
	}
	if sr.InLibrary {
		t.Fatalf("edit should clear in_library")
	}

	vipAt := now.Add(time.Minute)
	if err := SetVipTime(id, vipAt); err != nil {
		t.Fatalf("SetVipTime failed: %v", err)
	}
	sr, err = GetSongRequest(id)
	if err != nil {
		t.Fatalf("GetSongRequest after promote failed: %v", err)
	}
	if sr.VipTime == nil {
		t.Fatalf("expected vip timestamp after promote")
	}

	if err := MarkPlayed(id); err != nil {
		t.Fatalf("MarkPlayed failed: %v", err)
	}
	unplayed, err := ListUnplayed()
	if err != nil {
		t.Fatalf("ListUnplayed failed: %v", err)
	}
	if len(unplayed) != 0 {
		t.Fatalf("unexpected unplayed count after archive: got=%d want=0", len(unplayed))
	}

	missing, err := GetSongRequest(99999)
	if err != nil {
		t.Fatalf("GetSongRequest for missing id failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing id")
	}
}

func TestListUnplayedOrderAndCounts(t *testing.T) {
	setupTestDB(t)

	now := time.Now().Truncate(time.Second)
	for i, username := range []string{"alice", "bob", "alice"} {
		sr := SongRequest{
			Username:    username,
			Text:        "song",
			RequestTime: now.Add(time.Duration(i) * time.Second),
		}
		if username == "bob" {
			vipAt := now
			sr.VipTime = &vipAt
		}
		if _, err := InsertSongRequest(sr); err != nil {
			t.Fatalf("InsertSongRequest %d failed: %v", i, err)
		}
	}

	unplayed, err := ListUnplayed()
	if err != nil {
		t.Fatalf("ListUnplayed failed: %v", err)
	}
	if len(unplayed) != 3 {
		t.Fatalf("unexpected unplayed count: got=%d want=3", len(unplayed))
	}
	for i := 1; i < len(unplayed); i++ {
		if unplayed[i].ID <= unplayed[i-1].ID {
			t.Fatalf("unplayed list not in insertion order")
		}
	}

	count, err := CountActiveRegular("alice")
	if err != nil {
		t.Fatalf("CountActiveRegular failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("unexpected regular count for alice: got=%d want=2", count)
	}

	count, err = CountActiveRegular("bob")
	if err != nil {
		t.Fatalf("CountActiveRegular for bob failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("vip request should not count as regular: got=%d want=0", count)
	}
}

func TestHasUnplayedSuperVip(t *testing.T) {
	setupTestDB(t)

	has, err := HasUnplayedSuperVip()
	if err != nil {
		t.Fatalf("HasUnplayedSuperVip failed: %v", err)
	}
	if has {
		t.Fatalf("empty queue should have no super vip request")
	}

	now := time.Now()
	id, err := InsertSongRequest(SongRequest{
		Username:     "carol",
		Text:         "song",
		RequestTime:  now,
		VipTime:      &now,
		SuperVipTime: &now,
	})
	if err != nil {
		t.Fatalf("InsertSongRequest failed: %v", err)
	}

	has, err = HasUnplayedSuperVip()
	if err != nil {
		t.Fatalf("HasUnplayedSuperVip after insert failed: %v", err)
	}
	if !has {
		t.Fatalf("expected super vip request to be detected")
	}

	if err := MarkPlayed(id); err != nil {
		t.Fatalf("MarkPlayed failed: %v", err)
	}
	has, err = HasUnplayedSuperVip()
	if err != nil {
		t.Fatalf("HasUnplayedSuperVip after archive failed: %v", err)
	}
	if has {
		t.Fatalf("archived super vip request should not be detected")
	}
}

func TestClearUnplayedWithRefunds(t *testing.T) {
	setupTestDB(t)

	now := time.Now()
	for _, username := range []string{"alice", "bob"} {
		if _, err := InsertSongRequest(SongRequest{
			Username:    username,
			Text:        "song",
			RequestTime: now,
		}); err != nil {
			t.Fatalf("InsertSongRequest failed: %v", err)
		}
		if err := EnsureUser(username); err != nil {
			t.Fatalf("EnsureUser failed: %v", err)
		}
	}

	if err := ClearUnplayedWithRefunds(map[string]int{"alice": 1, "bob": 2}); err != nil {
		t.Fatalf("ClearUnplayedWithRefunds failed: %v", err)
	}

	unplayed, err := ListUnplayed()
	if err != nil {
		t.Fatalf("ListUnplayed failed: %v", err)
	}
	if len(unplayed) != 0 {
		t.Fatalf("queue not cleared: got=%d requests", len(unplayed))
	}

	alice, err := GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser alice failed: %v", err)
	}
	if alice.ModGiven != 1 {
		t.Fatalf("unexpected alice refund: got=%d want=1", alice.ModGiven)
	}
	bob, err := GetUser("bob")
	if err != nil {
		t.Fatalf("GetUser bob failed: %v", err)
	}
	if bob.ModGiven != 2 {
		t.Fatalf("unexpected bob refund: got=%d want=2", bob.ModGiven)
	}
}
