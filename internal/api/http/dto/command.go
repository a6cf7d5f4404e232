package dto

import "github.com/EternisAI/silo-control/internal/agents"

type CommandsResponse struct {
	Commands []agents.Command `json:"commands"`
}

type AckRequest struct {
	CommandIDs []string `json:"command_ids"`
}

type AckResponse struct {
	Success      bool `json:"success"`
	Acknowledged int  `json:"acknowledged"`
}

type CommandResultRequest struct {
	CommandID string `json:"command_id" binding:"required"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  *int   `json:"exit_code"`
}

type SendCommandRequest struct {
	Command string `json:"command" form:"command" binding:"required"`
	Type    string `json:"type" form:"type"`
}

type SendCommandResponse struct {
	Success   bool   `json:"success"`
	CommandID string `json:"command_id"`
	Message   string `json:"message,omitempty"`
}

type CommandStatusResponse struct {
	AgentID  string           `json:"agent_id"`
	Commands []agents.Command `json:"commands"`
}

type CommandDetailsResponse struct {
	Command agents.Command `json:"command"`
}
