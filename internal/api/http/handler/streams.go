package handler

import (
	"context"

	"github.com/EternisAI/silo-control/internal/stream"
)

// StreamController is the part of the stream supervisor the handlers drive.
type StreamController interface {
	Start(ctx context.Context, agentID, source string) bool
	Stop(agentID string) bool
	List() []stream.ProcessInfo
}
