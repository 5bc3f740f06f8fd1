package webserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"github.com/codedghost/twitch-songbot/internal/status"
	"github.com/codedghost/twitch-songbot/internal/twitchapi"
	"github.com/codedghost/twitch-songbot/internal/twitchtoken"
	"go.uber.org/zap"
)

func handleAuth(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, twitchtoken.GetAuthURL(), http.StatusFound)
}

func handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		errMsg := r.URL.Query().Get("error_description")
		if errMsg == "" {
			errMsg = "authorization code missing"
		}
		http.Error(w, "Authentication failed: "+errMsg, http.StatusBadRequest)
		return
	}

	result, err := twitchtoken.GetTwitchToken(code)
	if err != nil {
		logger.Error("Failed to exchange authorization code", zap.Error(err))
		http.Error(w, "Failed to exchange authorization code", http.StatusInternalServerError)
		return
	}

	accessToken, _ := result["access_token"].(string)
	refreshToken, _ := result["refresh_token"].(string)
	expiresIn, _ := result["expires_in"].(float64)
	scope, _ := result["scope"].(string)

	token := twitchtoken.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Scope:        scope,
		ExpiresAt:    time.Now().Unix() + int64(expiresIn),
	}

	if err := token.SaveToken(); err != nil {
		logger.Error("Failed to save token", zap.Error(err))
		http.Error(w, "Failed to save token", http.StatusInternalServerError)
		return
	}

	logger.Info("Twitch authentication complete")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Authentication Complete</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>Authentication complete</h1>
<p>You can close this window and return to the app.</p>
</body>
</html>`)
}

func handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := map[string]interface{}{
		"authUrl": twitchtoken.GetAuthURL(),
	}

	token, isValid, err := twitchtoken.GetOrRefreshToken()
	if err != nil {
		resp["authenticated"] = false
		if !strings.Contains(err.Error(), "no token stored") {
			resp["error"] = err.Error()
		}
	} else {
		resp["authenticated"] = isValid
		if isValid {
			resp["expiresAt"] = token.ExpiresAt
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token, _, err := twitchtoken.GetLatestToken()
	if err != nil {
		http.Error(w, "No token to refresh", http.StatusNotFound)
		return
	}
	if token.RefreshToken == "" {
		http.Error(w, "No refresh token stored", http.StatusConflict)
		return
	}

	if err := token.RefreshTwitchToken(); err != nil {
		logger.Error("Manual token refresh failed", zap.Error(err))
		http.Error(w, "Token refresh failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"expiresAt": token.ExpiresAt,
	})
}

func handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	streamStatus := status.GetStreamStatus()

	// Refresh the viewer count while we are here. Best effort only.
	if streamStatus.IsLive {
		if info, err := twitchapi.GetStreamInfo(); err == nil && info != nil {
			status.UpdateViewerCount(info.ViewerCount)
			streamStatus = status.GetStreamStatus()
		}
	}

	writeJSON(w, http.StatusOK, streamStatus)
}

// RegisterTwitchRoutes wires the OAuth flow and stream status API.
func RegisterTwitchRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/auth", handleAuth)
	mux.HandleFunc("/callback", handleAuthCallback)
	mux.HandleFunc("/api/auth/status", corsMiddleware(handleAuthStatus))
	mux.HandleFunc("/api/twitch/refresh-token", corsMiddleware(handleRefreshToken))
	mux.HandleFunc("/api/stream/status", corsMiddleware(handleStreamStatus))
}
