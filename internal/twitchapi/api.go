package twitchapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codedghost/twitch-songbot/internal/env"
	"github.com/codedghost/twitch-songbot/internal/twitchtoken"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

func makeAuthenticatedRequest(method, url string, body []byte) ([]byte, error) {
	token, isValid, err := twitchtoken.GetOrRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	if !isValid {
		return nil, fmt.Errorf("no valid token available, re-authentication required")
	}

	clientID := ""
	if env.Value.ClientID != nil {
		clientID = *env.Value.ClientID
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Client-Id", clientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("twitch API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// StreamInfo is the subset of the Helix streams payload the status API
// exposes.
type StreamInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	GameName    string    `json:"game_name"`
	Title       string    `json:"title"`
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at"`
}

// GetStreamInfo returns the live stream for the configured channel, or
// nil when the channel is offline.
func GetStreamInfo() (*StreamInfo, error) {
	if env.Value.TwitchUserID == nil {
		return nil, fmt.Errorf("TWITCH_USER_ID is not configured")
	}

	url := fmt.Sprintf("https://api.twitch.tv/helix/streams?user_id=%s", *env.Value.TwitchUserID)
	body, err := makeAuthenticatedRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []StreamInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse stream info: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, nil
	}
	return &result.Data[0], nil
}
