package env

import (
	"os"
	"strconv"
	"time"

	"github.com/codedghost/twitch-songbot/internal/localdb"
	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Values holds every runtime configuration knob. Entries come from the
// .env file / process environment first and can be overridden by rows in
// the settings table, so the WebUI can change them without a restart.
type Values struct {
	ClientID        *string
	ClientSecret    *string
	TwitchUserID    *string
	StreamerChannel string

	ServerPort int
	DebugMode  bool

	// Token economy.
	SuperVipCost       int
	ConcurrentVipSlots int
	MaxUserRequests    int

	// Presence windows for regular-tier rotation eligibility.
	PresenceWindow     time.Duration
	RequestGraceWindow time.Duration
	VipGraceWindow     time.Duration
}

var Value Values

// LoadEnv populates Value. Must run after localdb.SetupDB because
// settings-table overrides are applied on top of the environment.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using process environment")
	}

	clientID := lookup("CLIENT_ID")
	clientSecret := lookup("CLIENT_SECRET")
	twitchUserID := lookup("TWITCH_USER_ID")

	Value = Values{
		ClientID:           &clientID,
		ClientSecret:       &clientSecret,
		TwitchUserID:       &twitchUserID,
		StreamerChannel:    lookup("STREAMER_CHANNEL"),
		ServerPort:         lookupInt("SERVER_PORT", 8080),
		DebugMode:          lookup("DEBUG_MODE") == "true",
		SuperVipCost:       lookupInt("SUPER_VIP_COST", 5),
		ConcurrentVipSlots: lookupInt("CONCURRENT_VIP_SLOTS", 2),
		MaxUserRequests:    lookupInt("MAX_USER_REQUESTS", 1),
		PresenceWindow:     lookupDuration("PRESENCE_WINDOW", 2*time.Minute),
		RequestGraceWindow: lookupDuration("REQUEST_GRACE_WINDOW", 5*time.Minute),
		VipGraceWindow:     lookupDuration("VIP_GRACE_WINDOW", 5*time.Minute),
	}
}

// ReloadFromDatabase re-applies settings-table overrides. Called after a
// setting is changed through the API.
func ReloadFromDatabase() {
	LoadEnv()
}

// lookup prefers a settings-table row over the environment.
func lookup(key string) string {
	if localdb.GetDB() != nil {
		if v, err := localdb.GetSetting(key); err == nil && v != "" {
			return v
		}
	}
	return os.Getenv(key)
}

func lookupInt(key string, fallback int) int {
	raw := lookup(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("Invalid integer setting, using fallback",
			zap.String("key", key), zap.String("value", raw), zap.Int("fallback", fallback))
		return fallback
	}
	return n
}

func lookupDuration(key string, fallback time.Duration) time.Duration {
	raw := lookup(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn("Invalid duration setting, using fallback",
			zap.String("key", key), zap.String("value", raw), zap.Duration("fallback", fallback))
		return fallback
	}
	return d
}
