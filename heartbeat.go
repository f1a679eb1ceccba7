package ringchat

import (
	"context"
	"time"
)

// heartbeat tracks how recently the leader's liveness token passed through
// this node. Owned by the coordinator goroutine; no locking of its own.
type heartbeat struct {
	lastSeen time.Time
	timeout  time.Duration
}

// newHeartbeat starts the recency clock at now so a freshly booted node does
// not instantly suspect a leader it has not heard from yet.
func newHeartbeat(timeout time.Duration) *heartbeat {
	return &heartbeat{
		lastSeen: time.Now(),
		timeout:  timeout,
	}
}

// observe resets the recency clock.
func (h *heartbeat) observe() {
	h.lastSeen = time.Now()
}

// expired reports whether the leader has been quiet past the timeout.
func (h *heartbeat) expired(now time.Time) bool {
	return now.Sub(h.lastSeen) > h.timeout
}

// heartbeatLoop wakes the coordinator on the leader's emission cadence. The
// coordinator decides whether this node currently emits.
func (c *coordinator) heartbeatLoop(ctx context.Context) error {
	var ticker = time.NewTicker(c.options.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		select {
		case c.events <- event{kind: evHeartbeatTick}:
		case <-ctx.Done():
			return nil
		}
	}
}

// watchdogLoop wakes the coordinator to check heartbeat recency. It is the
// sole failure detector: no probing, purely recency based.
func (c *coordinator) watchdogLoop(ctx context.Context) error {
	var ticker = time.NewTicker(c.options.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		select {
		case c.events <- event{kind: evTimeoutCheck}:
		case <-ctx.Done():
			return nil
		}
	}
}
