package webserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/codedghost/twitch-songbot/internal/playlist"
	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"github.com/codedghost/twitch-songbot/internal/vip"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeQueueError maps queue and ledger outcomes onto HTTP statuses. The
// body always carries the human-readable reason so the WebUI can show it
// verbatim.
func writeQueueError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, playlist.ErrNoRequestEntered),
		errors.Is(err, playlist.ErrNoRequestProvided),
		errors.Is(err, playlist.ErrNoRequestInList),
		errors.Is(err, playlist.ErrArgument):
		status = http.StatusBadRequest
	case errors.Is(err, playlist.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, playlist.ErrPlaylistClosed),
		errors.Is(err, playlist.ErrPlaylistVeryClosed),
		errors.Is(err, playlist.ErrDuplicateRequest),
		errors.Is(err, playlist.ErrOnlyOneSuper),
		errors.Is(err, vip.ErrInsufficientBalance):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := playlistService.Snapshot()
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func handleAddRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Text     string `json:"text"`
		Vip      bool   `json:"vip"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	position, err := playlistService.AddRequest(req.Username, req.Text, req.Vip)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"position": position})
}

func handleAddSuperVipRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Text     string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := playlistService.AddSuperVipRequest(req.Username, req.Text); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handlePromoteRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		ID       int64  `json:"id"`
		IsMod    bool   `json:"is_mod"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	var position int
	var err error
	if req.ID != 0 {
		position, err = playlistService.PromoteRequestByID(req.ID, req.Username, req.IsMod)
	} else {
		position, err = playlistService.PromoteRequest(req.Username)
	}
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"position": position})
}

func handleEditRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Command  string `json:"command"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := playlistService.EditRequest(req.Username, req.Command); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleEditSuperVipRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Text     string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := playlistService.EditSuperVipRequest(req.Username, req.Text); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleRemoveRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Command  string `json:"command"`
		IsMod    bool   `json:"is_mod"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := playlistService.RemoveRequest(req.Username, req.Command, req.IsMod); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleRemoveSuperVipRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := playlistService.RemoveSuperRequest(req.Username); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleArchiveCurrent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int64 `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := playlistService.ArchiveCurrent(req.ID); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleArchiveRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int64 `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := playlistService.ArchiveRequestByID(req.ID); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleClearPlaylist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := playlistService.ClearQueue(); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handlePlaylistState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"state": string(playlistService.State())})

	case http.MethodPost:
		var req struct {
			State string `json:"state"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		var err error
		switch playlist.State(req.State) {
		case playlist.StateOpen:
			err = playlistService.OpenPlaylist()
		case playlist.StateClosed:
			err = playlistService.ClosePlaylist()
		case playlist.StateVeryClosed:
			err = playlistService.VeryClosePlaylist()
		default:
			http.Error(w, "Unknown playlist state", http.StatusBadRequest)
			return
		}
		if err != nil {
			writeQueueError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"state": req.State})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func handleUserRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	requests, err := playlistService.UserRequests(username)
	if err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

func handleMarkInLibrary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int64 `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := playlistService.MarkInLibrary(req.ID); err != nil {
		writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RegisterPlaylistRoutes wires the queue API.
func RegisterPlaylistRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/playlist", corsMiddleware(handleGetPlaylist))
	mux.HandleFunc("/api/playlist/request", corsMiddleware(handleAddRequest))
	mux.HandleFunc("/api/playlist/supervip", corsMiddleware(handleAddSuperVipRequest))
	mux.HandleFunc("/api/playlist/supervip/edit", corsMiddleware(handleEditSuperVipRequest))
	mux.HandleFunc("/api/playlist/supervip/remove", corsMiddleware(handleRemoveSuperVipRequest))
	mux.HandleFunc("/api/playlist/promote", corsMiddleware(handlePromoteRequest))
	mux.HandleFunc("/api/playlist/edit", corsMiddleware(handleEditRequest))
	mux.HandleFunc("/api/playlist/remove", corsMiddleware(handleRemoveRequest))
	mux.HandleFunc("/api/playlist/archive", corsMiddleware(handleArchiveCurrent))
	mux.HandleFunc("/api/playlist/archive/request", corsMiddleware(handleArchiveRequest))
	mux.HandleFunc("/api/playlist/clear", corsMiddleware(handleClearPlaylist))
	mux.HandleFunc("/api/playlist/state", corsMiddleware(handlePlaylistState))
	mux.HandleFunc("/api/playlist/user", corsMiddleware(handleUserRequests))
	mux.HandleFunc("/api/playlist/library", corsMiddleware(handleMarkInLibrary))
}
