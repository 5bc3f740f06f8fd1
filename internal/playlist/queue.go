package playlist

import (
	"sort"

	"github.com/codedghost/twitch-songbot/internal/localdb"
)

// OrderRegular filters the regular tier and sorts it by submission time,
// ties broken by id so the ordering is stable across reloads.
func OrderRegular(items []localdb.SongRequest) []localdb.SongRequest {
	regular := []localdb.SongRequest{}
	for _, sr := range items {
		if isRegular(sr) {
			regular = append(regular, sr)
		}
	}
	sort.SliceStable(regular, func(i, j int) bool {
		if !regular[i].RequestTime.Equal(regular[j].RequestTime) {
			return regular[i].RequestTime.Before(regular[j].RequestTime)
		}
		return regular[i].ID < regular[j].ID
	})
	return regular
}

// OrderVip filters the vip tier and sorts it by elevation time. A super
// vip request sorts ahead of every plain vip request regardless of
// timestamp; ties break by id.
func OrderVip(items []localdb.SongRequest) []localdb.SongRequest {
	vips := []localdb.SongRequest{}
	for _, sr := range items {
		if isVip(sr) {
			vips = append(vips, sr)
		}
	}
	sort.SliceStable(vips, func(i, j int) bool {
		if isSuperVip(vips[i]) != isSuperVip(vips[j]) {
			return isSuperVip(vips[i])
		}
		ti, tj := vips[i].VipTime, vips[j].VipTime
		if ti != nil && tj != nil && !ti.Equal(*tj) {
			return ti.Before(*tj)
		}
		return vips[i].ID < vips[j].ID
	})
	return vips
}

// tierPosition returns the 1-based position of a request within its
// ordered tier, or 0 when absent.
func tierPosition(ordered []localdb.SongRequest, id int64) int {
	for i, sr := range ordered {
		if sr.ID == id {
			return i + 1
		}
	}
	return 0
}

// excludeID drops one request from a list, used to keep the current item
// out of the broadcast tier listings.
func excludeID(items []localdb.SongRequest, id int64) []localdb.SongRequest {
	out := []localdb.SongRequest{}
	for _, sr := range items {
		if sr.ID != id {
			out = append(out, sr)
		}
	}
	return out
}

func ownedBy(items []localdb.SongRequest, username string) []localdb.SongRequest {
	owned := []localdb.SongRequest{}
	for _, sr := range items {
		if sr.Username == username {
			owned = append(owned, sr)
		}
	}
	return owned
}
