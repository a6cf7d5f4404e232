package http

import (
	"github.com/EternisAI/silo-control/internal/agents"
	"github.com/EternisAI/silo-control/internal/api/http/handler"
	"github.com/EternisAI/silo-control/internal/api/http/middleware"
	"github.com/EternisAI/silo-control/internal/auth"
	"github.com/EternisAI/silo-control/internal/hls"
	"github.com/EternisAI/silo-control/internal/liveness"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Registry     *agents.Registry
	Sessions     *auth.SessionStore
	Streams      handler.StreamController
	Relay        *hls.Relay
	Liveness     *liveness.Monitor
	SecureCookie bool
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())
	if srvs.Liveness != nil {
		engine.Use(srvs.Liveness.Middleware())
	}

	healthHandler := handler.NewHealthHandler(srvs.Registry, srvs.Streams)
	engine.GET("/health", healthHandler.Check)

	hlsHandler := handler.NewHLSHandler(srvs.Relay)
	engine.GET("/hls/:agent_id/*filename", hlsHandler.Serve)
	engine.OPTIONS("/hls/:agent_id/*filename", hlsHandler.Preflight)

	authHandler := handler.NewAuthHandler(srvs.Sessions, srvs.SecureCookie)
	engine.POST("/login", authHandler.Login)
	engine.POST("/logout", authHandler.Logout)

	agentHandler := handler.NewAgentHandler(srvs.Registry, srvs.Streams)
	api := engine.Group("/api")
	api.POST("/register", agentHandler.Register)

	agentAPI := api.Group("", middleware.AgentAuth(srvs.Registry))
	{
		agentAPI.POST("/register-stream/:agent_id", agentHandler.RegisterStream)
		agentAPI.GET("/commands/:agent_id", agentHandler.PendingCommands)
		agentAPI.POST("/commands/:agent_id/ack", agentHandler.Ack)
		agentAPI.POST("/command-result/:agent_id", agentHandler.CommandResult)
		agentAPI.POST("/heartbeat/:agent_id", agentHandler.Heartbeat)
		agentAPI.POST("/update-screen-info/:agent_id", agentHandler.UpdateScreenInfo)
		agentAPI.GET("/check-notifications/:agent_id", agentHandler.CheckNotifications)
	}

	controllerHandler := handler.NewControllerHandler(srvs.Registry, srvs.Streams, srvs.Relay)
	controller := api.Group("", middleware.SessionAuth(srvs.Sessions))
	{
		controller.GET("/agents", controllerHandler.ListAgents)
		controller.POST("/send-command/:agent_id", controllerHandler.SendCommand)
		controller.GET("/command-status/:agent_id", controllerHandler.CommandStatus)
		controller.GET("/command-details/:agent_id/:command_id", controllerHandler.CommandDetails)
		controller.POST("/send-notification/:agent_id", controllerHandler.SendNotification)
		controller.GET("/get-processes/:agent_id", controllerHandler.GetProcesses)
		controller.POST("/kill-process/:agent_id/:pid", controllerHandler.KillProcess)
		controller.GET("/diagnostic/:agent_id", controllerHandler.Diagnostic)
		controller.POST("/stop-stream/:agent_id", controllerHandler.StopStream)
	}
}
