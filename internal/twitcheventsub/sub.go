package twitcheventsub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/codedghost/twitch-songbot/internal/env"
	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"github.com/codedghost/twitch-songbot/internal/status"
	"github.com/codedghost/twitch-songbot/internal/twitchapi"
	"github.com/codedghost/twitch-songbot/internal/twitchtoken"
	"github.com/joeyak/go-twitch-eventsub/v3"
	"go.uber.org/zap"
)

var (
	client      *twitch.Client
	isRunning   bool
	isConnected bool
	lastError   error
)

// Start connects the EventSub client. It refreshes a stale token first
// so subscriptions do not fail minutes after startup.
func Start() error {
	if isRunning {
		return nil
	}

	token, valid, err := twitchtoken.GetLatestToken()
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("no access token available")
	}

	if !valid {
		logger.Info("Token expired or about to expire, refreshing...")
		if err := token.RefreshTwitchToken(); err != nil {
			return fmt.Errorf("failed to refresh token: %w", err)
		}
		token, _, err = twitchtoken.GetLatestToken()
		if err != nil {
			return fmt.Errorf("failed to get refreshed token: %w", err)
		}
	} else if token.ExpiresAt-time.Now().Unix() <= 30*60 {
		// Less than 30 minutes left, refresh proactively.
		if err := token.RefreshTwitchToken(); err != nil {
			logger.Warn("Failed to refresh token proactively", zap.Error(err))
		} else if refreshed, _, err := twitchtoken.GetLatestToken(); err == nil {
			token = refreshed
		}
	}

	setupEventSub(&token)

	if client != nil {
		go func() {
			logger.Info("Connecting to EventSub...")
			if err := client.Connect(); err != nil {
				logger.Error("Failed to connect EventSub", zap.Error(err))
				lastError = err
				isConnected = false
			}
		}()
		isRunning = true
	}

	return nil
}

// Stop closes the EventSub client.
func Stop() {
	if client != nil && isRunning {
		client.Close()
		isRunning = false
		isConnected = false
	}
}

// IsConnected reports whether the EventSub session is up.
func IsConnected() bool {
	return isConnected
}

// GetLastError returns the last EventSub error.
func GetLastError() error {
	return lastError
}

func setupEventSub(token *twitchtoken.Token) {
	client = twitch.NewClient()

	client.OnError(func(err error) {
		logger.Error("EventSub error", zap.Error(err))
		lastError = err
		isConnected = false
	})
	client.OnWelcome(func(message twitch.WelcomeMessage) {
		logger.Info("EventSub connected successfully")
		isConnected = true
		lastError = nil

		// EventSub does not replay an already-live stream as a
		// stream.online event, so query Helix once on connect.
		go checkStreamStatusOnConnect()

		events := []twitch.EventSubscription{
			twitch.SubChannelChatMessage,
			twitch.SubChannelCheer,
			twitch.SubChannelFollow,
			twitch.SubChannelSubscribe,
			twitch.SubChannelSubscriptionGift,
			twitch.SubChannelSubscriptionMessage,
			twitch.SubStreamOffline,
			twitch.SubStreamOnline,
		}

		for _, event := range events {
			_, err := twitch.SubscribeEvent(twitch.SubscribeRequest{
				SessionID:   message.Payload.Session.ID,
				ClientID:    *env.Value.ClientID,
				AccessToken: token.AccessToken,
				Event:       event,
				Condition: map[string]string{
					"broadcaster_user_id": *env.Value.TwitchUserID,
					"moderator_user_id":   *env.Value.TwitchUserID,
					"user_id":             *env.Value.TwitchUserID,
				},
			})
			if err != nil {
				logger.Error("Failed to subscribe to event",
					zap.String("event", string(event)),
					zap.Error(err))
				continue
			}
			logger.Info("Subscribed to EventSub event", zap.String("event", string(event)))
		}
	})
	client.OnNotification(func(message twitch.NotificationMessage) {
		logger.Debug("Received EventSub notification",
			zap.String("type", string(message.Payload.Subscription.Type)))

		switch message.Payload.Subscription.Type {

		case twitch.SubChannelChatMessage:
			var evt twitch.EventChannelChatMessage
			if err := json.Unmarshal(*message.Payload.Event, &evt); err != nil {
				logger.Error("Failed to parse channel chat message event", zap.Error(err))
			} else {
				HandleChannelChatMessage(evt)
			}

		case twitch.SubChannelCheer:
			var evt twitch.EventChannelCheer
			if err := json.Unmarshal(*message.Payload.Event, &evt); err != nil {
				logger.Error("Failed to parse cheer event", zap.Error(err))
			} else {
				HandleChannelCheer(evt)
			}

		case twitch.SubChannelFollow:
			var evt twitch.EventChannelFollow
			if err := json.Unmarshal(*message.Payload.Event, &evt); err != nil {
				logger.Error("Failed to parse follow event", zap.Error(err))
			} else {
				HandleChannelFollow(evt)
			}

		case twitch.SubChannelSubscribe:
			var evt twitch.EventChannelSubscribe
			if err := json.Unmarshal(*message.Payload.Event, &evt); err != nil {
				logger.Error("Failed to parse subscribe event", zap.Error(err))
			} else {
				HandleChannelSubscribe(evt)
			}

		case twitch.SubChannelSubscriptionGift:
			var evt twitch.EventChannelSubscriptionGift
			if err := json.Unmarshal(*message.Payload.Event, &evt); err != nil {
				logger.Error("Failed to parse subscription gift event", zap.Error(err))
			} else {
				HandleChannelSubscriptionGift(evt)
			}

		case twitch.SubChannelSubscriptionMessage:
			var evt twitch.EventChannelSubscriptionMessage
			if err := json.Unmarshal(*message.Payload.Event, &evt); err != nil {
				logger.Error("Failed to parse subscription message event", zap.Error(err))
			} else {
				HandleChannelSubscriptionMessage(evt)
			}

		case twitch.SubStreamOffline:
			var evt twitch.EventStreamOffline
			if err := json.Unmarshal(*message.Payload.Event, &evt); err != nil {
				logger.Error("Failed to parse stream offline event", zap.Error(err))
			} else {
				HandleStreamOffline(evt)
			}

		case twitch.SubStreamOnline:
			var evt twitch.EventStreamOnline
			if err := json.Unmarshal(*message.Payload.Event, &evt); err != nil {
				logger.Error("Failed to parse stream online event", zap.Error(err))
			} else {
				HandleStreamOnline(evt)
			}

		default:
			logger.Debug("Unhandled EventSub notification",
				zap.String("type", string(message.Payload.Subscription.Type)))
		}
	})
	client.OnKeepAlive(func(message twitch.KeepAliveMessage) {
		isConnected = true
	})
	client.OnRevoke(func(message twitch.RevokeMessage) {
		logger.Warn("EventSub subscription revoked",
			zap.String("type", string(message.Payload.Subscription.Type)),
			zap.String("status", message.Payload.Subscription.Status))
	})
}

func checkStreamStatusOnConnect() {
	if env.Value.TwitchUserID == nil || *env.Value.TwitchUserID == "" {
		logger.Warn("Cannot check stream status: Twitch user ID not configured")
		return
	}

	// Let the subscription requests go out first.
	time.Sleep(1 * time.Second)

	info, err := twitchapi.GetStreamInfo()
	if err != nil {
		logger.Error("Failed to get stream status on EventSub connect", zap.Error(err))
		return
	}

	if info != nil {
		logger.Info("Stream is currently live",
			zap.Int("viewer_count", info.ViewerCount))
		status.SetStreamLive(info.StartedAt)
		status.UpdateViewerCount(info.ViewerCount)
	} else if status.GetStreamStatus().IsLive {
		status.SetStreamOffline()
	}
}
