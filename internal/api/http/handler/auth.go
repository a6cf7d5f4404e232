package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/EternisAI/silo-control/internal/api/http/dto"
	"github.com/EternisAI/silo-control/internal/api/http/middleware"
	"github.com/EternisAI/silo-control/internal/auth"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	sessions     *auth.SessionStore
	secureCookie bool
}

func NewAuthHandler(sessions *auth.SessionStore, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		sessions:     sessions,
		secureCookie: secureCookie,
	}
}

// POST /login accepts JSON or form credentials.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "username and password are required"})
		return
	}

	session, err := h.sessions.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			slog.Warn("Failed controller login", "username", req.Username, "client_ip", c.ClientIP())
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid credentials"})
			return
		}
		slog.Error("Failed to create session", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, session.Token, int(auth.SessionTTL.Seconds()), "/", "", h.secureCookie, true)

	c.JSON(http.StatusOK, dto.LoginResponse{
		Success: true,
		Expires: session.Expires.Format(time.RFC3339),
	})
}

// POST /logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, err := c.Cookie(middleware.SessionCookieName); err == nil && token != "" {
		h.sessions.Logout(token)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, "", -1, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true})
}
