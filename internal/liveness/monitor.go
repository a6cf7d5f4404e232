package liveness

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

type Registry interface {
	Expired(now time.Time) []string
	RemoveIfExpired(agentID string, now time.Time) bool
}

type StreamStopper interface {
	Stop(agentID string) bool
}

type SessionSweeper interface {
	Sweep(now time.Time) int
}

// Monitor removes agents that stopped reporting, tearing down their streams
// first. It is the only path that deletes agents.
type Monitor struct {
	registry Registry
	streams  StreamStopper
	sessions SessionSweeper
}

func NewMonitor(registry Registry, streams StreamStopper, sessions SessionSweeper) *Monitor {
	return &Monitor{
		registry: registry,
		streams:  streams,
		sessions: sessions,
	}
}

// Sweep removes every agent expired at now and returns their ids. An agent
// that reports again while its stream is being stopped is kept.
func (m *Monitor) Sweep(now time.Time) []string {
	var removed []string
	for _, agentID := range m.registry.Expired(now) {
		if m.streams != nil && m.streams.Stop(agentID) {
			slog.Info("Stopped stream for expired agent", "agent_id", agentID)
		}
		if m.registry.RemoveIfExpired(agentID, now) {
			removed = append(removed, agentID)
			slog.Info("Removed inactive agent", "agent_id", agentID)
		}
	}

	if m.sessions != nil {
		if n := m.sessions.Sweep(now); n > 0 {
			slog.Debug("Removed expired sessions", "count", n)
		}
	}
	return removed
}

// Middleware sweeps before every request.
func (m *Monitor) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.Sweep(time.Now())
		c.Next()
	}
}

// Start sweeps every interval until ctx is done.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Liveness monitor started", "interval", interval)
	for {
		select {
		case <-ticker.C:
			m.Sweep(time.Now())
		case <-ctx.Done():
			slog.Info("Liveness monitor stopped")
			return
		}
	}
}
