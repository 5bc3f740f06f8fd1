package webserver

import (
	"net/http"

	"github.com/codedghost/twitch-songbot/internal/vip"
)

var vipLedger *vip.Ledger

func handleVipBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	remaining, err := vipLedger.Remaining(username)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	hasVip, err := vipLedger.HasVip(username)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	hasSuperVip, err := vipLedger.HasSuperVip(username)
	if err != nil {
		writeQueueError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username":      username,
		"remaining":     remaining,
		"has_vip":       hasVip,
		"has_super_vip": hasSuperVip,
	})
}

func handleGiftVip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Donor    string `json:"donor"`
		Receiver string `json:"receiver"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Donor == "" || req.Receiver == "" {
		http.Error(w, "donor and receiver are required", http.StatusBadRequest)
		return
	}

	if err := vipLedger.GiftVip(req.Donor, req.Receiver); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleModGiveVip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Amount   int    `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Amount == 0 {
		req.Amount = 1
	}

	if err := vipLedger.ModGiveVip(req.Username, req.Amount); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RegisterVipRoutes wires the token economy API.
func RegisterVipRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/vip/balance", corsMiddleware(handleVipBalance))
	mux.HandleFunc("/api/vip/gift", corsMiddleware(handleGiftVip))
	mux.HandleFunc("/api/vip/mod-give", corsMiddleware(handleModGiveVip))
}
