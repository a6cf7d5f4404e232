package dto

import (
	"time"

	"github.com/EternisAI/silo-control/internal/agents"
)

type RegisterResponse struct {
	AgentID string `json:"agent_id"`
	Token   string `json:"token"`
}

type RegisterStreamRequest struct {
	StreamType string `json:"stream_type" binding:"required"`
	StreamURL  string `json:"stream_url" binding:"required"`
}

type RegisterStreamResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ProxyURL string `json:"proxy_url,omitempty"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type AgentSummary struct {
	AgentID         string                 `json:"agent_id"`
	RegisteredAt    time.Time              `json:"registered_at"`
	LastSeen        time.Time              `json:"last_seen"`
	Online          bool                   `json:"online"`
	Stream          *agents.StreamInfo     `json:"stream_info,omitempty"`
	SystemInfo      map[string]interface{} `json:"system_info,omitempty"`
	ScreenInfo      map[string]interface{} `json:"screen_info,omitempty"`
	PendingCommands int                    `json:"pending_commands"`
	TotalCommands   int                    `json:"total_commands"`
}

type AgentsResponse struct {
	Agents []AgentSummary `json:"agents"`
	Count  int            `json:"count"`
}

type NotificationsResponse struct {
	Success       bool                  `json:"success"`
	Notifications []agents.Notification `json:"notifications"`
}

type SendNotificationRequest struct {
	Message string `json:"message" form:"message" binding:"required"`
}

type SendNotificationResponse struct {
	Success        bool   `json:"success"`
	NotificationID string `json:"notification_id"`
}

type DiagnosticResponse struct {
	Agent  AgentSummary `json:"agent"`
	Stream interface{}  `json:"stream"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Agents  int    `json:"agents"`
	Streams int    `json:"streams"`
}
