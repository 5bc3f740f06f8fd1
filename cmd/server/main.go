package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codedghost/twitch-songbot/internal/env"
	"github.com/codedghost/twitch-songbot/internal/localdb"
	"github.com/codedghost/twitch-songbot/internal/playlist"
	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"github.com/codedghost/twitch-songbot/internal/twitchapi"
	"github.com/codedghost/twitch-songbot/internal/twitcheventsub"
	"github.com/codedghost/twitch-songbot/internal/vip"
	"github.com/codedghost/twitch-songbot/internal/webserver"
	"go.uber.org/zap"
)

func main() {
	logger.Init(false)
	defer logger.Sync()

	logger.Info("Starting twitch-songbot server")

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "songbot.db"
	}
	if _, err := localdb.SetupDB(dbPath); err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}

	// env.LoadEnv must run after DB initialization so stored settings
	// override the process environment.
	env.LoadEnv()
	if env.Value.DebugMode {
		logger.Init(true)
		logger.Info("Debug mode enabled")
	}

	ledger := vip.NewLedger()
	service := playlist.NewService(ledger, webserver.SnapshotBroadcaster{}, nil)
	service.SetChatSink(twitchapi.ChatAnnouncer{})
	twitcheventsub.SetLedger(ledger)

	port := 8080
	if env.Value.ServerPort != 0 {
		port = env.Value.ServerPort
	}

	if err := webserver.StartWebServer(port, service, ledger); err != nil {
		logger.Fatal("Failed to start web server", zap.Error(err))
	}

	tokenRefreshDone := make(chan struct{})
	startTwitchBackground(tokenRefreshDone)

	logger.Info("Server started",
		zap.Int("port", port),
		zap.String("webui", fmt.Sprintf("http://localhost:%d/", port)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	close(tokenRefreshDone)
	twitcheventsub.Stop()
	webserver.Shutdown()

	logger.Info("Shutdown complete")
}
