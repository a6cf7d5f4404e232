package handler

import (
	"net/http"

	"github.com/EternisAI/silo-control/internal/agents"
	"github.com/EternisAI/silo-control/internal/api/http/dto"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	registry *agents.Registry
	streams  StreamController
}

func NewHealthHandler(registry *agents.Registry, streams StreamController) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		streams:  streams,
	}
}

func (h *HealthHandler) Check(ctx *gin.Context) {
	resp := dto.HealthResponse{Status: "ok"}
	if h.registry != nil {
		resp.Agents = h.registry.Count()
	}
	if h.streams != nil {
		resp.Streams = len(h.streams.List())
	}
	ctx.JSON(http.StatusOK, resp)
}
