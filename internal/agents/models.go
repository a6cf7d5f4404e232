package agents

import (
	"sync"
	"time"
)

type CommandStatus string

const (
	CommandStatusPending   CommandStatus = "pending"
	CommandStatusCompleted CommandStatus = "completed"
)

// Command types understood by the agent. Anything else runs through the shell.
const (
	CommandTypeShell        = "shell"
	CommandTypeGetProcesses = "get_processes"
	CommandTypeKillProcess  = "kill_process"
)

type Agent struct {
	ID           string
	Token        string
	RegisteredAt time.Time

	mu            sync.Mutex
	lastSeen      time.Time
	commands      []*Command
	notifications []*Notification
	stream        *StreamInfo
	systemInfo    map[string]interface{}
	screenInfo    map[string]interface{}
}

type Command struct {
	ID          string        `json:"id"`
	Text        string        `json:"command"`
	Type        string        `json:"type,omitempty"`
	Status      CommandStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	Stdout      string        `json:"stdout,omitempty"`
	Stderr      string        `json:"stderr,omitempty"`
	ExitCode    *int          `json:"exit_code,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type StreamInfo struct {
	Type         string    `json:"type"`
	URL          string    `json:"url"`
	RegisteredAt time.Time `json:"registered_at"`
	ProxyURL     string    `json:"proxy_url,omitempty"`
}

// Snapshot is a point-in-time copy of an agent safe to hand to callers.
type Snapshot struct {
	ID              string
	RegisteredAt    time.Time
	LastSeen        time.Time
	Stream          *StreamInfo
	SystemInfo      map[string]interface{}
	ScreenInfo      map[string]interface{}
	PendingCommands int
	TotalCommands   int
	QueuedNotices   int
}

func (a *Agent) LastSeen() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSeen
}

func (a *Agent) touch(now time.Time) {
	a.mu.Lock()
	if now.After(a.lastSeen) {
		a.lastSeen = now
	}
	a.mu.Unlock()
}

func (a *Agent) snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		ID:            a.ID,
		RegisteredAt:  a.RegisteredAt,
		LastSeen:      a.lastSeen,
		SystemInfo:    copyMap(a.systemInfo),
		ScreenInfo:    copyMap(a.screenInfo),
		TotalCommands: len(a.commands),
		QueuedNotices: len(a.notifications),
	}
	if a.stream != nil {
		stream := *a.stream
		s.Stream = &stream
	}
	for _, cmd := range a.commands {
		if cmd.Status == CommandStatusPending {
			s.PendingCommands++
		}
	}
	return s
}

func (c *Command) clone() Command {
	out := *c
	if c.ExitCode != nil {
		code := *c.ExitCode
		out.ExitCode = &code
	}
	if c.CompletedAt != nil {
		at := *c.CompletedAt
		out.CompletedAt = &at
	}
	return out
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
