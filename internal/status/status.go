package status

import (
	"sync"
	"time"

	"github.com/codedghost/twitch-songbot/internal/shared/logger"
	"go.uber.org/zap"
)

// StreamStatus is the last known live state of the channel.
type StreamStatus struct {
	IsLive      bool       `json:"is_live"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	LastChecked time.Time  `json:"last_checked"`
	ViewerCount int        `json:"viewer_count"`
}

var (
	mu        sync.RWMutex
	current   StreamStatus
	callbacks []func(StreamStatus)
)

// GetStreamStatus returns a copy of the current stream status.
func GetStreamStatus() StreamStatus {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetStreamLive marks the stream as online and notifies listeners.
func SetStreamLive(startedAt time.Time) {
	mu.Lock()
	wasLive := current.IsLive
	current.IsLive = true
	current.StartedAt = &startedAt
	current.LastChecked = time.Now()
	snapshot := current
	cbs := make([]func(StreamStatus), len(callbacks))
	copy(cbs, callbacks)
	mu.Unlock()

	if !wasLive {
		logger.Info("Stream went live", zap.Time("started_at", startedAt))
	}
	for _, cb := range cbs {
		cb(snapshot)
	}
}

// SetStreamOffline marks the stream as offline and notifies listeners.
func SetStreamOffline() {
	mu.Lock()
	wasLive := current.IsLive
	current.IsLive = false
	current.StartedAt = nil
	current.ViewerCount = 0
	current.LastChecked = time.Now()
	snapshot := current
	cbs := make([]func(StreamStatus), len(callbacks))
	copy(cbs, callbacks)
	mu.Unlock()

	if wasLive {
		logger.Info("Stream went offline")
	}
	for _, cb := range cbs {
		cb(snapshot)
	}
}

// UpdateViewerCount records the latest viewer count without firing
// change callbacks.
func UpdateViewerCount(count int) {
	mu.Lock()
	current.ViewerCount = count
	current.LastChecked = time.Now()
	mu.Unlock()
}

// RegisterStatusChangeCallback registers a listener invoked on every
// live/offline transition.
func RegisterStatusChangeCallback(cb func(StreamStatus)) {
	mu.Lock()
	callbacks = append(callbacks, cb)
	mu.Unlock()
}
