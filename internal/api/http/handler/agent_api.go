package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/EternisAI/silo-control/internal/agents"
	"github.com/EternisAI/silo-control/internal/api/http/dto"
	"github.com/EternisAI/silo-control/internal/stream"
	"github.com/gin-gonic/gin"
	"github.com/samber/mo"
)

// sinceFallback is applied when an agent sends a cursor that cannot be parsed.
const sinceFallback = 5 * time.Minute

// Layouts accepted for the since cursor, most specific first.
var sinceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// AgentHandler serves the endpoints agents call with their bearer token.
type AgentHandler struct {
	registry *agents.Registry
	streams  StreamController
}

func NewAgentHandler(registry *agents.Registry, streams StreamController) *AgentHandler {
	return &AgentHandler{
		registry: registry,
		streams:  streams,
	}
}

// POST /api/register
func (h *AgentHandler) Register(c *gin.Context) {
	agent, err := h.registry.Register()
	if err != nil {
		slog.Error("Failed to register agent", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to register agent"})
		return
	}

	c.JSON(http.StatusOK, dto.RegisterResponse{
		AgentID: agent.ID,
		Token:   agent.Token,
	})
}

// POST /api/register-stream/:agent_id
func (h *AgentHandler) RegisterStream(c *gin.Context) {
	agentID := c.Param("agent_id")

	var req dto.RegisterStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid stream data"})
		return
	}

	if err := h.registry.SetStreamInfo(agentID, req.StreamType, req.StreamURL); err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
		return
	}

	slog.Info("Stream registered",
		"agent_id", agentID,
		"stream_type", req.StreamType,
		"stream_url", req.StreamURL)

	if h.streams == nil || !h.streams.Start(c.Request.Context(), agentID, req.StreamURL) {
		c.JSON(http.StatusOK, dto.RegisterStreamResponse{
			Success: true,
			Message: "stream registered, relay unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, dto.RegisterStreamResponse{
		Success:  true,
		Message:  "stream registered, relay started",
		ProxyURL: stream.ProxyURL(agentID),
	})
}

// GET /api/commands/:agent_id
func (h *AgentHandler) PendingCommands(c *gin.Context) {
	commands, err := h.registry.PendingCommands(c.Param("agent_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.CommandsResponse{Commands: commands})
}

// POST /api/commands/:agent_id/ack
func (h *AgentHandler) Ack(c *gin.Context) {
	agentID := c.Param("agent_id")

	var req dto.AckRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	acked, err := h.registry.Ack(agentID, req.CommandIDs)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.AckResponse{Success: true, Acknowledged: acked})
}

// POST /api/command-result/:agent_id
//
// Results for unknown commands are accepted so an agent is never stuck
// retrying a report the controller has forgotten about.
func (h *AgentHandler) CommandResult(c *gin.Context) {
	agentID := c.Param("agent_id")

	var req dto.CommandResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "missing command_id"})
		return
	}

	exitCode := -1
	if req.ExitCode != nil {
		exitCode = *req.ExitCode
	}

	found, err := h.registry.ReportResult(agentID, req.CommandID, req.Stdout, req.Stderr, exitCode)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if found {
		slog.Info("Command result received",
			"agent_id", agentID,
			"command_id", req.CommandID,
			"exit_code", exitCode)
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}

// POST /api/heartbeat/:agent_id
func (h *AgentHandler) Heartbeat(c *gin.Context) {
	agentID := c.Param("agent_id")

	info, ok := bindInfo(c)
	if !ok {
		return
	}
	if err := h.registry.Touch(agentID); err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if len(info) > 0 {
		if err := h.registry.UpdateSystemInfo(agentID, info); err != nil {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}

// POST /api/update-screen-info/:agent_id
func (h *AgentHandler) UpdateScreenInfo(c *gin.Context) {
	agentID := c.Param("agent_id")

	info, ok := bindInfo(c)
	if !ok {
		return
	}
	if len(info) > 0 {
		if err := h.registry.UpdateScreenInfo(agentID, info); err != nil {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}

// GET /api/check-notifications/:agent_id?since=
func (h *AgentHandler) CheckNotifications(c *gin.Context) {
	agentID := c.Param("agent_id")

	since := parseSince(c.Query("since"), time.Now())
	notifications, err := h.registry.ConsumeNotifications(agentID, since)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
		return
	}

	if len(notifications) > 0 {
		slog.Debug("Delivered notifications", "agent_id", agentID, "count", len(notifications))
	}
	c.JSON(http.StatusOK, dto.NotificationsResponse{
		Success:       true,
		Notifications: notifications,
	})
}

func bindInfo(c *gin.Context) (map[string]interface{}, bool) {
	var info map[string]interface{}
	if err := c.ShouldBindJSON(&info); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return nil, false
	}
	return info, true
}

// parseSince turns the since query value into a cursor. An empty value means
// no cursor; a value that cannot be parsed falls back to five minutes ago.
func parseSince(raw string, now time.Time) mo.Option[time.Time] {
	if raw == "" {
		return mo.None[time.Time]()
	}
	for _, layout := range sinceLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return mo.Some(t)
		}
	}
	slog.Debug("Unparseable since cursor, using fallback", "since", raw)
	return mo.Some(now.Add(-sinceFallback))
}
