package stream

import (
	"fmt"
	"log/slog"
	"sync"
)

// PortManager hands out relay ports from a monotonically increasing counter
// and tracks which agent holds each one. A port is never handed out again
// while it is still allocated; once the counter passes the end of the range
// it wraps and skips ports that are still held.
type PortManager struct {
	mu             sync.Mutex
	next           int
	allocatedPorts map[int]string // port -> agent_id
	rangeStart     int
	rangeEnd       int
}

// NewPortManager creates a PortManager for the inclusive range [start, end].
func NewPortManager(start, end int) (*PortManager, error) {
	if start > end {
		return nil, fmt.Errorf("invalid port range: start (%d) must be <= end (%d)", start, end)
	}
	if start < 1 || end < 1 {
		return nil, fmt.Errorf("invalid port range: ports must be >= 1 (start: %d, end: %d)", start, end)
	}
	if end > 65535 {
		return nil, fmt.Errorf("invalid port range: end port (%d) must be <= 65535", end)
	}

	slog.Info("PortManager initialized",
		"range_start", start,
		"range_end", end,
		"pool_size", end-start+1)

	return &PortManager{
		next:           start,
		allocatedPorts: make(map[int]string),
		rangeStart:     start,
		rangeEnd:       end,
	}, nil
}

// Allocate assigns the next free port to the agent.
func (pm *PortManager) Allocate(agentID string) (int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	size := pm.rangeEnd - pm.rangeStart + 1
	for i := 0; i < size; i++ {
		port := pm.next
		pm.next++
		if pm.next > pm.rangeEnd {
			pm.next = pm.rangeStart
		}
		if _, taken := pm.allocatedPorts[port]; taken {
			continue
		}
		pm.allocatedPorts[port] = agentID

		slog.Debug("Port allocated",
			"port", port,
			"agent_id", agentID,
			"allocated_ports", len(pm.allocatedPorts))
		return port, nil
	}

	slog.Error("Port allocation failed: range exhausted",
		"agent_id", agentID,
		"range_start", pm.rangeStart,
		"range_end", pm.rangeEnd)
	return 0, fmt.Errorf("no available ports in range %d-%d", pm.rangeStart, pm.rangeEnd)
}

// Release returns a port. Releasing an unallocated port is a no-op.
func (pm *PortManager) Release(port int) {
	pm.mu.Lock()
	agentID, exists := pm.allocatedPorts[port]
	if exists {
		delete(pm.allocatedPorts, port)
	}
	pm.mu.Unlock()

	if !exists {
		slog.Warn("Attempted to release unallocated port", "port", port)
		return
	}
	slog.Debug("Port released", "port", port, "agent_id", agentID)
}

// GetAllocations returns a snapshot of current port allocations.
func (pm *PortManager) GetAllocations() map[int]string {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	allocations := make(map[int]string, len(pm.allocatedPorts))
	for port, agentID := range pm.allocatedPorts {
		allocations[port] = agentID
	}
	return allocations
}
