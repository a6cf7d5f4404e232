package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/EternisAI/silo-control/internal/agents"
	"github.com/EternisAI/silo-control/internal/auth"
	"github.com/gin-gonic/gin"
)

const (
	SessionCookieName = "session_token"

	AgentKey   = "agent"
	SessionKey = "session"
)

// AgentAuth checks the token query parameter against the agent_id path
// parameter and refreshes the agent's last-seen time.
func AgentAuth(registry *agents.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		agentID := c.Param("agent_id")
		token := c.Query("token")
		if agentID == "" || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "missing agent credentials",
			})
			return
		}

		agent, err := registry.Authenticate(agentID, token)
		if err != nil {
			if errors.Is(err, agents.ErrInvalidToken) {
				slog.Warn("Invalid agent token",
					"agent_id", agentID,
					"path", c.Request.URL.Path,
					"client_ip", c.ClientIP())
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid token",
			})
			return
		}

		c.Set(AgentKey, agent)
		c.Next()
	}
}

// SessionAuth requires a valid controller session cookie.
func SessionAuth(sessions *auth.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookieName)
		if err != nil || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		session, err := sessions.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired or invalid"})
			return
		}

		c.Set(SessionKey, session)
		c.Next()
	}
}
