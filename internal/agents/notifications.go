package agents

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/mo"
)

func (r *Registry) PostNotification(agentID, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}
	agent, ok := r.lookup(agentID)
	if !ok {
		return "", ErrAgentNotFound
	}

	n := &Notification{
		ID:        ulid.Make().String(),
		Message:   message,
		Timestamp: r.now(),
	}

	agent.mu.Lock()
	agent.notifications = append(agent.notifications, n)
	queued := len(agent.notifications)
	agent.mu.Unlock()

	slog.Info("Notification queued", "agent_id", agentID, "notification_id", n.ID, "queued", queued)
	return n.ID, nil
}

// ConsumeNotifications returns every queued notification newer than since
// (all of them when since is absent) and removes exactly those from the
// mailbox. Removal is by id, so an undelivered notification with the same
// text and timestamp is never dropped by accident.
func (r *Registry) ConsumeNotifications(agentID string, since mo.Option[time.Time]) ([]Notification, error) {
	agent, ok := r.lookup(agentID)
	if !ok {
		return nil, ErrAgentNotFound
	}

	agent.mu.Lock()
	defer agent.mu.Unlock()

	delivered := make([]Notification, 0)
	kept := agent.notifications[:0]
	for _, n := range agent.notifications {
		if cutoff, ok := since.Get(); ok && !n.Timestamp.After(cutoff) {
			kept = append(kept, n)
			continue
		}
		delivered = append(delivered, *n)
	}
	for i := len(kept); i < len(agent.notifications); i++ {
		agent.notifications[i] = nil
	}
	agent.notifications = kept

	// Stable keeps insertion order for equal timestamps.
	sort.SliceStable(delivered, func(i, j int) bool {
		return delivered[i].Timestamp.Before(delivered[j].Timestamp)
	})
	return delivered, nil
}
