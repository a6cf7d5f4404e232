package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/EternisAI/silo-control/internal/agent"
)

var AppVersion string

func main() {
	if len(os.Args) > 1 && os.Args[1] == "register" {
		if err := runRegister(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		return
	}

	InitConfig()

	slog.Info("Silo Control Agent", "version", AppVersion)

	client, err := agent.New(config.Agent)
	if err != nil {
		slog.Error("Failed to create agent", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
		cancel()
		if err := <-done; err != nil {
			slog.Error("Agent stopped with error", "error", err)
		}
	case err := <-done:
		if err != nil {
			slog.Error("Agent stopped with error", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Shutdown complete")
}
