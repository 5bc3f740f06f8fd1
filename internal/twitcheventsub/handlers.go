package twitcheventsub

import (
	"time"

	"github.com/codedghost/twitch-songbot/internal/localdb"
	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"github.com/codedghost/twitch-songbot/internal/status"
	"github.com/codedghost/twitch-songbot/internal/vip"
	"github.com/joeyak/go-twitch-eventsub/v3"
	"go.uber.org/zap"
)

// bitsPerVip is how many bits earn one request token.
const bitsPerVip = 300

var ledger *vip.Ledger

// SetLedger wires the token economy into the event handlers. Must be
// called before Start.
func SetLedger(l *vip.Ledger) {
	ledger = l
}

// HandleChannelChatMessage records chat activity so the rotation can
// tell who is still around.
func HandleChannelChatMessage(message twitch.EventChannelChatMessage) {
	username := message.Chatter.ChatterUserName
	if username == "" {
		return
	}
	if err := localdb.TouchLastInChat(username, time.Now()); err != nil {
		logger.Warn("Failed to record chat presence",
			zap.String("user", username),
			zap.Error(err))
	}
}

// HandleChannelCheer converts cheered bits into request tokens.
func HandleChannelCheer(message twitch.EventChannelCheer) {
	if message.IsAnonymous {
		return
	}
	username := message.User.UserName
	tokens := message.Bits / bitsPerVip
	if username == "" || tokens <= 0 {
		return
	}
	if err := ledger.Grant(username, vip.SourceDonationOrBits, tokens); err != nil {
		logger.Error("Failed to credit cheer",
			zap.String("user", username),
			zap.Int("bits", message.Bits),
			zap.Error(err))
		return
	}
	logger.Info("Credited cheer",
		zap.String("user", username),
		zap.Int("bits", message.Bits),
		zap.Int("tokens", tokens))
}

// HandleChannelFollow credits the one-time follow token.
func HandleChannelFollow(message twitch.EventChannelFollow) {
	creditFollow(message.User.UserName)
}

func creditFollow(username string) {
	if username == "" {
		return
	}

	// The follow token is granted at most once, even when someone
	// unfollows and follows again.
	user, err := localdb.GetUser(username)
	if err != nil {
		logger.Error("Failed to look up follower", zap.String("user", username), zap.Error(err))
		return
	}
	if user != nil && user.Follow > 0 {
		return
	}

	if err := ledger.Grant(username, vip.SourceFollow, 1); err != nil {
		logger.Error("Failed to credit follow", zap.String("user", username), zap.Error(err))
		return
	}
	logger.Info("Credited follow", zap.String("user", username))
}

// HandleChannelSubscribe credits a fresh (non-gift) subscription.
// Gifted subs are credited to the recipient via the gift event.
func HandleChannelSubscribe(message twitch.EventChannelSubscribe) {
	if message.IsGift {
		return
	}
	creditSub(message.User.UserName, 1)
}

// HandleChannelSubscriptionGift credits the gifter one token per sub
// given away.
func HandleChannelSubscriptionGift(message twitch.EventChannelSubscriptionGift) {
	if message.IsAnonymous {
		return
	}
	creditSub(message.User.UserName, message.Total)
}

// HandleChannelSubscriptionMessage credits a resub.
func HandleChannelSubscriptionMessage(message twitch.EventChannelSubscriptionMessage) {
	creditSub(message.User.UserName, 1)
}

func creditSub(username string, amount int) {
	if username == "" || amount <= 0 {
		return
	}
	if err := ledger.Grant(username, vip.SourceSub, amount); err != nil {
		logger.Error("Failed to credit subscription",
			zap.String("user", username),
			zap.Int("amount", amount),
			zap.Error(err))
		return
	}
	logger.Info("Credited subscription",
		zap.String("user", username),
		zap.Int("amount", amount))
}

// HandleStreamOnline flips the stream status to live.
func HandleStreamOnline(message twitch.EventStreamOnline) {
	status.SetStreamLive(message.StartedAt)
}

// HandleStreamOffline flips the stream status to offline.
func HandleStreamOffline(message twitch.EventStreamOffline) {
	status.SetStreamOffline()
}
