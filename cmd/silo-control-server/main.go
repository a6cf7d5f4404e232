package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/EternisAI/silo-control/internal/agents"
	internalhttp "github.com/EternisAI/silo-control/internal/api/http"
	"github.com/EternisAI/silo-control/internal/auth"
	"github.com/EternisAI/silo-control/internal/hls"
	"github.com/EternisAI/silo-control/internal/liveness"
	"github.com/EternisAI/silo-control/internal/stream"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Silo Control Server", "version", AppVersion)

	registry := agents.NewRegistry()

	sessions, err := auth.NewSessionStore(config.Auth)
	if err != nil {
		slog.Error("Failed to initialise controller credentials", "error", err)
		os.Exit(1)
	}

	supervisor, err := stream.NewSupervisor(config.Stream, registry)
	if err != nil {
		slog.Error("Failed to initialise stream supervisor", "error", err)
		os.Exit(1)
	}

	monitor := liveness.NewMonitor(registry, supervisor, sessions)

	services := &internalhttp.Services{
		Registry:     registry,
		Sessions:     sessions,
		Streams:      supervisor,
		Relay:        hls.NewRelay(supervisor.OutputRoot(), supervisor),
		Liveness:     monitor,
		SecureCookie: config.Http.SecureCookie,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     config.Http.AllowedOrigins,
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		monitor.Start(ctx, config.Http.LivenessInterval)
	}()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down servers...")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.Http.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		supervisor.Shutdown()
		slog.Info("Stream processes stopped")
	}()

	wg.Wait()
	cancel()
	background.Wait()
	slog.Info("Shutdown complete")
}
