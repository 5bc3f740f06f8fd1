package twitchtoken

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codedghost/twitch-songbot/internal/env"
	"github.com/codedghost/twitch-songbot/internal/localdb"
)

var scopes = []string{
	"user:read:chat",
	"user:write:chat",
	"channel:read:subscriptions",
	"bits:read",
	"chat:read",
	"chat:edit",
	"moderator:read:followers",
}

// Token is the OAuth token pair used for Helix and EventSub access.
type Token struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresAt    int64
}

// SaveToken persists the token so a restart does not force
// re-authentication.
func (t *Token) SaveToken() error {
	return localdb.SaveToken(localdb.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Scope:        t.Scope,
		ExpiresAt:    t.ExpiresAt,
	})
}

// GetLatestToken returns the most recent stored token and whether it is
// still valid.
func GetLatestToken() (Token, bool, error) {
	stored, err := localdb.GetLatestToken()
	if err != nil {
		return Token{}, false, err
	}
	if stored == nil {
		return Token{}, false, errors.New("no token stored")
	}

	token := Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		Scope:        stored.Scope,
		ExpiresAt:    stored.ExpiresAt,
	}
	// Treat tokens expiring within a minute as already stale.
	isValid := token.ExpiresAt > time.Now().Unix()+60
	return token, isValid, nil
}

func GetTwitchToken(code string) (map[string]interface{}, error) {
	clientID := ""
	if env.Value.ClientID != nil {
		clientID = *env.Value.ClientID
	}
	clientSecret := ""
	if env.Value.ClientSecret != nil {
		clientSecret = *env.Value.ClientSecret
	}

	redirectURI := getCallbackURL()

	resp, err := http.PostForm("https://id.twitch.tv/oauth2/token", url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {redirectURI},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w, body: %s", err, string(body))
	}

	if errorMsg, ok := result["error"]; ok {
		return nil, fmt.Errorf("twitch API error: %v, description: %v", errorMsg, result["error_description"])
	}

	if _, ok := result["access_token"]; !ok {
		return nil, fmt.Errorf("access_token not found in response, got: %v", result)
	}
	result["scope"] = strings.Join(scopes, " ")
	return result, nil
}

// GetOrRefreshToken returns a valid token, refreshing a stale one when a
// refresh token is available. Returns (token, isValid, error).
func GetOrRefreshToken() (Token, bool, error) {
	token, isValid, err := GetLatestToken()
	if err != nil {
		return Token{}, false, err
	}

	if isValid {
		return token, true, nil
	}

	if token.RefreshToken == "" {
		return token, false, nil
	}

	if err := token.RefreshTwitchToken(); err != nil {
		return token, false, err
	}

	return GetLatestToken()
}

func (t *Token) RefreshTwitchToken() error {
	clientID := ""
	if env.Value.ClientID != nil {
		clientID = *env.Value.ClientID
	}
	clientSecret := ""
	if env.Value.ClientSecret != nil {
		clientSecret = *env.Value.ClientSecret
	}

	resp, err := http.PostForm("https://id.twitch.tv/oauth2/token", url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"refresh_token": {t.RefreshToken},
		"grant_type":    {"refresh_token"},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}

	accessToken, ok := result["access_token"].(string)
	if !ok {
		return errors.New("access_token not found in response")
	}
	refreshToken, ok := result["refresh_token"].(string)
	if !ok {
		return errors.New("refresh_token not found in response")
	}
	rawScopes, ok := result["scope"].([]interface{})
	if !ok {
		return errors.New("scope not found in response")
	}
	scopeList := make([]string, 0, len(rawScopes))
	for _, s := range rawScopes {
		if str, ok := s.(string); ok {
			scopeList = append(scopeList, str)
		}
	}
	expiresIn, ok := result["expires_in"].(float64)
	if !ok {
		return errors.New("expires_in not found in response")
	}

	t.AccessToken = accessToken
	t.RefreshToken = refreshToken
	t.Scope = strings.Join(scopeList, " ")
	t.ExpiresAt = time.Now().Unix() + int64(expiresIn)
	return t.SaveToken()
}

func getCallbackURL() string {
	port := 8080
	if env.Value.ServerPort != 0 {
		port = env.Value.ServerPort
	}
	return fmt.Sprintf("http://localhost:%d/callback", port)
}

func GetAuthURL() string {
	clientID := ""
	if env.Value.ClientID != nil {
		clientID = *env.Value.ClientID
	}
	redirectURI := getCallbackURL()
	return fmt.Sprintf(
		"https://id.twitch.tv/oauth2/authorize?response_type=code&client_id=%s&redirect_uri=%s&scope=%s",
		url.QueryEscape(clientID),
		url.QueryEscape(redirectURI),
		url.QueryEscape(strings.Join(scopes, " ")),
	)
}
