package agents

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Enqueue appends a pending command to the agent's queue and returns its id.
func (r *Registry) Enqueue(agentID, text, commandType string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCommand
	}
	agent, ok := r.lookup(agentID)
	if !ok {
		return "", fmt.Errorf("enqueue command: %w", ErrAgentNotFound)
	}
	if commandType == "" {
		commandType = CommandTypeShell
	}

	cmd := &Command{
		ID:        uuid.New().String(),
		Text:      text,
		Type:      commandType,
		Status:    CommandStatusPending,
		CreatedAt: r.now(),
	}

	agent.mu.Lock()
	agent.commands = append(agent.commands, cmd)
	queued := len(agent.commands)
	agent.mu.Unlock()

	slog.Info("Command enqueued",
		"agent_id", agentID,
		"command_id", cmd.ID,
		"type", commandType,
		"queue_length", queued)
	return cmd.ID, nil
}

// PendingCommands returns the agent's pending commands in submission order.
// It never changes state; delivery is confirmed separately through Ack.
func (r *Registry) PendingCommands(agentID string) ([]Command, error) {
	agent, ok := r.lookup(agentID)
	if !ok {
		return nil, ErrAgentNotFound
	}

	agent.mu.Lock()
	defer agent.mu.Unlock()

	pending := make([]Command, 0)
	for _, cmd := range agent.commands {
		if cmd.Status == CommandStatusPending {
			pending = append(pending, cmd.clone())
		}
	}
	return pending, nil
}

// Ack marks pending commands completed. With no ids every pending command is
// completed; otherwise only the listed ones. Completed ids are ignored.
// It returns how many commands changed state.
func (r *Registry) Ack(agentID string, commandIDs []string) (int, error) {
	agent, ok := r.lookup(agentID)
	if !ok {
		return 0, ErrAgentNotFound
	}

	var wanted map[string]struct{}
	if len(commandIDs) > 0 {
		wanted = make(map[string]struct{}, len(commandIDs))
		for _, id := range commandIDs {
			wanted[id] = struct{}{}
		}
	}

	now := r.now()

	agent.mu.Lock()
	defer agent.mu.Unlock()

	acked := 0
	for _, cmd := range agent.commands {
		if cmd.Status != CommandStatusPending {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[cmd.ID]; !ok {
				continue
			}
		}
		completedAt := now
		cmd.Status = CommandStatusCompleted
		cmd.CompletedAt = &completedAt
		acked++
	}

	if acked > 0 {
		slog.Debug("Commands acknowledged", "agent_id", agentID, "count", acked)
	}
	return acked, nil
}

// ReportResult attaches a result to a command and marks it completed,
// overwriting any earlier result. found is false when the command id is
// unknown; callers treat that as success so an agent can never be wedged by
// history the controller lost.
func (r *Registry) ReportResult(agentID, commandID, stdout, stderr string, exitCode int) (bool, error) {
	agent, ok := r.lookup(agentID)
	if !ok {
		return false, ErrAgentNotFound
	}

	now := r.now()

	agent.mu.Lock()
	defer agent.mu.Unlock()

	for _, cmd := range agent.commands {
		if cmd.ID != commandID {
			continue
		}
		code := exitCode
		completedAt := now
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		cmd.ExitCode = &code
		cmd.Status = CommandStatusCompleted
		cmd.CompletedAt = &completedAt

		slog.Info("Command result received",
			"agent_id", agentID,
			"command_id", commandID,
			"exit_code", exitCode,
			"stdout_bytes", len(stdout),
			"stderr_bytes", len(stderr))
		return true, nil
	}

	slog.Warn("Result reported for unknown command", "agent_id", agentID, "command_id", commandID)
	return false, nil
}

// Commands returns every command ever queued for the agent, in submission order.
func (r *Registry) Commands(agentID string) ([]Command, error) {
	agent, ok := r.lookup(agentID)
	if !ok {
		return nil, ErrAgentNotFound
	}

	agent.mu.Lock()
	defer agent.mu.Unlock()

	out := make([]Command, 0, len(agent.commands))
	for _, cmd := range agent.commands {
		out = append(out, cmd.clone())
	}
	return out, nil
}

func (r *Registry) Command(agentID, commandID string) (Command, error) {
	agent, ok := r.lookup(agentID)
	if !ok {
		return Command{}, ErrAgentNotFound
	}

	agent.mu.Lock()
	defer agent.mu.Unlock()

	for _, cmd := range agent.commands {
		if cmd.ID == commandID {
			return cmd.clone(), nil
		}
	}
	return Command{}, ErrCommandNotFound
}
