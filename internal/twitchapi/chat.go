package twitchapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/codedghost/twitch-songbot/internal/env"
	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"go.uber.org/zap"
)

// SendChatMessage posts a message into the configured channel's chat
// as the authenticated user.
func SendChatMessage(message string) error {
	if env.Value.TwitchUserID == nil {
		return fmt.Errorf("TWITCH_USER_ID is not configured")
	}
	userID := *env.Value.TwitchUserID

	payload, err := json.Marshal(map[string]string{
		"broadcaster_id": userID,
		"sender_id":      userID,
		"message":        message,
	})
	if err != nil {
		return err
	}

	_, err = makeAuthenticatedRequest(http.MethodPost, "https://api.twitch.tv/helix/chat/messages", payload)
	return err
}

// ChatAnnouncer sends queue announcements to chat without blocking the
// caller. Failures are logged, not surfaced, so a Helix outage never
// breaks queue mutations.
type ChatAnnouncer struct{}

func (ChatAnnouncer) Send(text string) {
	go func() {
		if err := SendChatMessage(text); err != nil {
			logger.Warn("Failed to send chat message",
				zap.String("message", text),
				zap.Error(err))
		}
	}()
}
