// Package idle implements the lifecycle idle timer: it fires a shutdown
// once the connected-client count has held at zero continuously for the
// configured duration, and pauses the countdown whenever a client is
// connected.
package idle

import (
	"context"
	"sync"
	"time"

	"consultd/internal/logging"
)

const pollInterval = 5 * time.Second

// Hub reports how many clients currently hold an event-stream connection.
type Hub interface {
	ClientCount() int
}

// Timer tracks how long the connected-client count has held at zero.
type Timer struct {
	hub      Hub
	duration time.Duration
	logger   *logging.Logger

	mu        sync.RWMutex
	zeroSince time.Time
}

// New arms a timer for duration, starting the countdown immediately since
// no client has connected yet.
func New(hub Hub, duration time.Duration, logger *logging.Logger) *Timer {
	return &Timer{
		hub:       hub,
		duration:  duration,
		logger:    logger,
		zeroSince: time.Now().UTC(),
	}
}

// RemainingMs reports milliseconds left before the timer fires. It reports
// the full duration whenever a client is currently connected.
func (t *Timer) RemainingMs() int64 {
	if t.hub.ClientCount() > 0 {
		return t.duration.Milliseconds()
	}
	t.mu.RLock()
	zeroSince := t.zeroSince
	t.mu.RUnlock()
	if zeroSince.IsZero() {
		return t.duration.Milliseconds()
	}
	remaining := t.duration - time.Since(zeroSince)
	if remaining < 0 {
		return 0
	}
	return remaining.Milliseconds()
}

// Run polls the client count every pollInterval and calls onFire exactly
// once the count has held at zero continuously for duration. It returns
// without firing if ctx is cancelled first.
func (t *Timer) Run(ctx context.Context, onFire func()) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.tick() {
				t.logger.Info("idle timeout reached after %s with no clients connected", t.duration)
				onFire()
				return
			}
		}
	}
}

func (t *Timer) tick() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hub.ClientCount() > 0 {
		t.zeroSince = time.Time{}
		return false
	}
	if t.zeroSince.IsZero() {
		t.zeroSince = time.Now().UTC()
		return false
	}
	return time.Since(t.zeroSince) >= t.duration
}
