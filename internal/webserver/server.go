package webserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/codedghost/twitch-songbot/internal/playlist"
	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"github.com/codedghost/twitch-songbot/internal/status"
	"github.com/codedghost/twitch-songbot/internal/vip"
	"go.uber.org/zap"
)

var (
	httpServer      *http.Server
	playlistService *playlist.Service
)

// SnapshotBroadcaster pushes playlist snapshots over the websocket hub.
type SnapshotBroadcaster struct{}

func (SnapshotBroadcaster) Publish(snapshot playlist.Snapshot) {
	BroadcastWSMessage("playlist", snapshot)
}

// corsMiddleware adds CORS headers to HTTP handlers
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}

func StartWebServer(port int, svc *playlist.Service, ledger *vip.Ledger) error {
	playlistService = svc
	vipLedger = ledger

	// Push stream status changes to connected overlay pages.
	status.RegisterStatusChangeCallback(func(streamStatus status.StreamStatus) {
		BroadcastWSMessage("stream_status_changed", streamStatus)
	})

	mux := http.NewServeMux()

	RegisterPlaylistRoutes(mux)
	RegisterVipRoutes(mux)
	RegisterSettingsRoutes(mux)
	RegisterTwitchRoutes(mux)

	RegisterWebSocketRoute(mux)

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting web server", zap.String("address", addr))

	httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine and wait briefly to check for immediate errors
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("Failed to start web server", zap.Error(err))
			return fmt.Errorf("failed to start web server on port %d: %w", port, err)
		}
	case <-time.After(100 * time.Millisecond):
		// Server started successfully
	}

	return nil
}

// Shutdown gracefully shuts down the web server
func Shutdown() {
	if httpServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown web server gracefully", zap.Error(err))
	} else {
		logger.Info("Web server shutdown complete")
	}
}
