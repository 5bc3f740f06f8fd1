package webserver

import (
	"net/http"

	"github.com/codedghost/twitch-songbot/internal/env"
	"github.com/codedghost/twitch-songbot/internal/localdb"
	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"go.uber.org/zap"
)

// settingKeys are the keys exposed through the settings API. Writes to
// anything else are rejected so the settings table stays predictable.
var settingKeys = []string{
	"CLIENT_ID",
	"CLIENT_SECRET",
	"TWITCH_USER_ID",
	"STREAMER_CHANNEL",
	"SUPER_VIP_COST",
	"CONCURRENT_VIP_SLOTS",
	"MAX_USER_REQUESTS",
	"PRESENCE_WINDOW",
	"REQUEST_GRACE_WINDOW",
	"VIP_GRACE_WINDOW",
	"DEBUG_MODE",
}

func isKnownSettingKey(key string) bool {
	for _, k := range settingKeys {
		if k == key {
			return true
		}
	}
	return false
}

func handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	settings := make(map[string]string, len(settingKeys))
	for _, key := range settingKeys {
		value, err := localdb.GetSetting(key)
		if err != nil {
			writeQueueError(w, err)
			return
		}
		// Never hand secrets back to the browser.
		if key == "CLIENT_SECRET" && value != "" {
			value = "********"
		}
		settings[key] = value
	}
	writeJSON(w, http.StatusOK, settings)
}

func handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if !decodeBody(w, r, &req) {
		return
	}

	for key := range req {
		if !isKnownSettingKey(key) {
			http.Error(w, "Unknown setting key: "+key, http.StatusBadRequest)
			return
		}
	}

	for key, value := range req {
		if err := localdb.SetSetting(key, value); err != nil {
			writeQueueError(w, err)
			return
		}
	}

	// Apply immediately so the next request sees the new values.
	env.ReloadFromDatabase()
	logger.Info("Settings updated", zap.Int("count", len(req)))

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		handleGetSettings(w, r)
	case http.MethodPost:
		handleUpdateSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// RegisterSettingsRoutes wires the runtime settings API.
func RegisterSettingsRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/settings", corsMiddleware(handleSettings))
}
