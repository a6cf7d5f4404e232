package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/EternisAI/silo-control/internal/agents"
	"github.com/EternisAI/silo-control/internal/api/http/dto"
	"github.com/EternisAI/silo-control/internal/hls"
	"github.com/gin-gonic/gin"
)

const (
	// onlineWindow is how recently an agent must have reported to show as online.
	onlineWindow = 30 * time.Second

	processListCommand = "ps -eo pid,comm,%cpu,%mem"
)

// ControllerHandler serves the session-authenticated controller API.
type ControllerHandler struct {
	registry *agents.Registry
	streams  StreamController
	relay    *hls.Relay
}

func NewControllerHandler(registry *agents.Registry, streams StreamController, relay *hls.Relay) *ControllerHandler {
	return &ControllerHandler{
		registry: registry,
		streams:  streams,
		relay:    relay,
	}
}

// GET /api/agents
func (h *ControllerHandler) ListAgents(c *gin.Context) {
	now := time.Now()
	snapshots := h.registry.List()

	summaries := make([]dto.AgentSummary, len(snapshots))
	for i, s := range snapshots {
		summaries[i] = toSummary(s, now)
	}

	c.JSON(http.StatusOK, dto.AgentsResponse{Agents: summaries, Count: len(summaries)})
}

// POST /api/send-command/:agent_id
func (h *ControllerHandler) SendCommand(c *gin.Context) {
	agentID := c.Param("agent_id")

	var req dto.SendCommandRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "missing command"})
		return
	}

	h.enqueue(c, agentID, req.Command, req.Type, "")
}

// GET /api/command-status/:agent_id
func (h *ControllerHandler) CommandStatus(c *gin.Context) {
	agentID := c.Param("agent_id")

	commands, err := h.registry.Commands(agentID)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.CommandStatusResponse{AgentID: agentID, Commands: commands})
}

// GET /api/command-details/:agent_id/:command_id
func (h *ControllerHandler) CommandDetails(c *gin.Context) {
	cmd, err := h.registry.Command(c.Param("agent_id"), c.Param("command_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.CommandDetailsResponse{Command: cmd})
}

// POST /api/send-notification/:agent_id
func (h *ControllerHandler) SendNotification(c *gin.Context) {
	agentID := c.Param("agent_id")

	var req dto.SendNotificationRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "missing message"})
		return
	}

	id, err := h.registry.PostNotification(agentID, req.Message)
	if err != nil {
		if errors.Is(err, agents.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.SendNotificationResponse{Success: true, NotificationID: id})
}

// GET /api/get-processes/:agent_id
func (h *ControllerHandler) GetProcesses(c *gin.Context) {
	h.enqueue(c, c.Param("agent_id"), processListCommand, agents.CommandTypeGetProcesses,
		"process list requested")
}

// POST /api/kill-process/:agent_id/:pid
func (h *ControllerHandler) KillProcess(c *gin.Context) {
	pid, err := strconv.Atoi(c.Param("pid"))
	if err != nil || pid <= 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid process id"})
		return
	}

	h.enqueue(c, c.Param("agent_id"), fmt.Sprintf("kill -9 %d", pid), agents.CommandTypeKillProcess,
		fmt.Sprintf("kill requested for process %d", pid))
}

// GET /api/diagnostic/:agent_id
func (h *ControllerHandler) Diagnostic(c *gin.Context) {
	agentID := c.Param("agent_id")

	snapshot, err := h.registry.Get(agentID)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.DiagnosticResponse{
		Agent:  toSummary(snapshot, time.Now()),
		Stream: h.relay.Diagnostics(agentID),
	})
}

// POST /api/stop-stream/:agent_id
func (h *ControllerHandler) StopStream(c *gin.Context) {
	agentID := c.Param("agent_id")

	if !h.registry.Exists(agentID) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: agents.ErrAgentNotFound.Error()})
		return
	}

	if h.streams == nil || !h.streams.Stop(agentID) {
		c.JSON(http.StatusOK, dto.ErrorResponse{Error: "no active stream"})
		return
	}

	slog.Info("Stream stopped by controller", "agent_id", agentID)
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: "stream stopped"})
}

func (h *ControllerHandler) enqueue(c *gin.Context, agentID, text, commandType, message string) {
	id, err := h.registry.Enqueue(agentID, text, commandType)
	if err != nil {
		switch {
		case errors.Is(err, agents.ErrAgentNotFound):
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "agent not found"})
		default:
			c.JSON(http.StatusOK, dto.ErrorResponse{Error: err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, dto.SendCommandResponse{
		Success:   true,
		CommandID: id,
		Message:   message,
	})
}

func toSummary(s agents.Snapshot, now time.Time) dto.AgentSummary {
	return dto.AgentSummary{
		AgentID:         s.ID,
		RegisteredAt:    s.RegisteredAt,
		LastSeen:        s.LastSeen,
		Online:          now.Sub(s.LastSeen) <= onlineWindow,
		Stream:          s.Stream,
		SystemInfo:      s.SystemInfo,
		ScreenInfo:      s.ScreenInfo,
		PendingCommands: s.PendingCommands,
		TotalCommands:   s.TotalCommands,
	}
}
