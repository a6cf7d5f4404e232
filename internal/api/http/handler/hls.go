package handler

import (
	"errors"
	"net/http"

	"github.com/EternisAI/silo-control/internal/hls"
	"github.com/gin-gonic/gin"
)

type HLSHandler struct {
	relay *hls.Relay
}

func NewHLSHandler(relay *hls.Relay) *HLSHandler {
	return &HLSHandler{relay: relay}
}

// GET /hls/:agent_id/*filename
func (h *HLSHandler) Serve(c *gin.Context) {
	file, err := h.relay.Open(c.Param("agent_id"), c.Param("filename"))
	if err != nil {
		switch {
		case errors.Is(err, hls.ErrInvalidPath):
			c.String(http.StatusBadRequest, "Invalid path")
		default:
			c.String(http.StatusNotFound, "File not found")
		}
		return
	}

	for k, v := range file.Headers() {
		c.Header(k, v)
	}
	if file.Playlist {
		c.Data(http.StatusOK, file.ContentType, file.Body)
		return
	}
	c.Header("Content-Type", file.ContentType)
	c.File(file.Path)
}

// OPTIONS /hls/:agent_id/*filename
func (h *HLSHandler) Preflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	c.Status(http.StatusNoContent)
}
