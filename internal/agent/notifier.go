package agent

import (
	"log/slog"

	"github.com/EternisAI/silo-control/internal/agents"
)

// Notifier shows controller messages to the person at this host.
type Notifier interface {
	Notify(n agents.Notification)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct{}

func (LogNotifier) Notify(n agents.Notification) {
	slog.Info("Message from controller", "notification_id", n.ID, "message", n.Message)
}
