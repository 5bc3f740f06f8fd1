package main

import (
	"time"

	"github.com/codedghost/twitch-songbot/internal/env"
	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"github.com/codedghost/twitch-songbot/internal/twitcheventsub"
	"github.com/codedghost/twitch-songbot/internal/twitchtoken"
	"go.uber.org/zap"
)

// refreshMargin is how long before expiry a token gets refreshed, so
// EventSub is never mid-session on a dying token.
const refreshMargin = 30 * time.Minute

func startTwitchBackground(tokenRefreshDone <-chan struct{}) {
	if env.Value.ClientID == nil || *env.Value.ClientID == "" ||
		env.Value.ClientSecret == nil || *env.Value.ClientSecret == "" {
		logger.Warn("Twitch credentials not configured, chat and EventSub stay offline")
		return
	}

	token, isValid, err := twitchtoken.GetOrRefreshToken()
	if err != nil || !isValid || token.AccessToken == "" {
		logger.Info("No usable Twitch token yet, visit /auth to authenticate")
		return
	}

	go func() {
		if err := twitcheventsub.Start(); err != nil {
			logger.Error("Failed to start EventSub", zap.Error(err))
		}
	}()

	go tokenRefreshLoop(tokenRefreshDone)
}

// tokenRefreshLoop keeps the stored token inside the refresh margin and
// bounces EventSub whenever the token actually rotates.
func tokenRefreshLoop(done <-chan struct{}) {
	logger.Info("Token refresh loop started")

	for {
		token, _, err := twitchtoken.GetLatestToken()
		if err != nil {
			if !sleepOrDone(done, time.Minute) {
				return
			}
			continue
		}

		if wait := refreshWait(token.ExpiresAt, time.Now().Unix()); wait > 0 {
			logger.Debug("Token refresh scheduled", zap.Duration("in", wait))
			if !sleepOrDone(done, wait) {
				return
			}
			continue
		}

		if err := token.RefreshTwitchToken(); err != nil {
			logger.Error("Token refresh failed, retrying later", zap.Error(err))
			if !sleepOrDone(done, 5*time.Minute) {
				return
			}
			continue
		}

		logger.Info("Token refreshed", zap.Int64("expires_at", token.ExpiresAt))
		restartEventSub()

		if !sleepOrDone(done, time.Minute) {
			return
		}
	}
}

// refreshWait returns how long to sleep before the token needs
// refreshing, capped at an hour so a clock jump is noticed, or zero
// when the token is already inside the margin.
func refreshWait(expiresAt, now int64) time.Duration {
	untilMargin := expiresAt - now - int64(refreshMargin/time.Second)
	if untilMargin <= 0 {
		return 0
	}
	wait := time.Duration(untilMargin) * time.Second
	if wait > time.Hour {
		wait = time.Hour
	}
	return wait
}

func sleepOrDone(done <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return false
	case <-timer.C:
		return true
	}
}

func restartEventSub() {
	twitcheventsub.Stop()
	time.Sleep(time.Second)

	if err := twitcheventsub.Start(); err != nil {
		logger.Error("Failed to restart EventSub after token refresh", zap.Error(err))
	}
}
