package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

const (
	launchAttempts  = 3
	taskWaitTimeout = 5 * time.Second
)

var ErrToolUnavailable = errors.New("media tool unavailable")

// ProxyURLSetter records where viewers can reach an agent's stream. An empty
// url clears it.
type ProxyURLSetter interface {
	SetProxyURL(agentID, url string)
}

// ProcessInfo is a point-in-time view of a supervised stream.
type ProcessInfo struct {
	AgentID   string    `json:"agent_id"`
	Source    string    `json:"source"`
	PID       int       `json:"pid"`
	ProxyPort int       `json:"proxy_port"`
	HLSPath   string    `json:"hls_path"`
	StartTime time.Time `json:"start_time"`
	Restarts  int       `json:"restarts"`
	Running   bool      `json:"running"`
}

// Supervisor owns the transcoder processes, at most one per agent.
type Supervisor struct {
	cfg   Config
	ports *PortManager
	proxy ProxyURLSetter

	mu        sync.RWMutex
	processes map[string]*streamProcess
	locks     *keyedMutex

	lookPath func(string) (string, error)
	args     func(source, dir string) []string
}

func NewSupervisor(cfg Config, proxy ProxyURLSetter) (*Supervisor, error) {
	cfg = cfg.withDefaults()

	root, err := filepath.Abs(cfg.OutputRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve output root: %w", err)
	}
	cfg.OutputRoot = root

	ports, err := NewPortManager(cfg.PortRange.Start, cfg.PortRange.End)
	if err != nil {
		return nil, err
	}

	slog.Info("Stream supervisor initialized",
		"ffmpeg_path", cfg.FFmpegPath,
		"output_root", cfg.OutputRoot,
		"max_restarts", cfg.MaxRestarts)

	return &Supervisor{
		cfg:       cfg,
		ports:     ports,
		proxy:     proxy,
		processes: make(map[string]*streamProcess),
		locks:     newKeyedMutex(),
		lookPath:  exec.LookPath,
		args:      hlsArgs,
	}, nil
}

// Start replaces any running stream for the agent with a new transcoder
// reading from source. It reports false when the process could not be
// launched; nothing is left behind in that case.
func (s *Supervisor) Start(ctx context.Context, agentID, source string) bool {
	if err := s.start(ctx, agentID, source); err != nil {
		slog.Error("Failed to start stream process",
			"agent_id", agentID,
			"source", source,
			"error", err)
		return false
	}
	return true
}

func (s *Supervisor) start(ctx context.Context, agentID, source string) error {
	unlock := s.locks.Lock(agentID)
	defer unlock()

	if s.stopLocked(agentID) {
		slog.Info("Replaced existing stream process", "agent_id", agentID)
	}

	binary, err := s.lookPath(s.cfg.FFmpegPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrToolUnavailable, s.cfg.FFmpegPath, err)
	}

	port, err := s.ports.Allocate(agentID)
	if err != nil {
		return fmt.Errorf("allocate proxy port: %w", err)
	}

	dir := filepath.Join(s.cfg.OutputRoot, agentID, strconv.Itoa(port))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.ports.Release(port)
		return fmt.Errorf("create stream directory: %w", err)
	}

	// The process outlives the request that started it.
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &streamProcess{
		agentID:   agentID,
		source:    source,
		binary:    binary,
		dir:       dir,
		port:      port,
		startTime: time.Now(),
		ctx:       procCtx,
		cancel:    cancel,
	}

	if err := s.launch(p); err != nil {
		cancel()
		removeOutput(dir)
		s.ports.Release(port)
		return err
	}

	p.wg.Add(2)
	go s.supervise(p)
	go s.watch(p)

	s.mu.Lock()
	s.processes[agentID] = p
	s.mu.Unlock()

	if s.proxy != nil {
		s.proxy.SetProxyURL(agentID, ProxyURL(agentID))
	}
	return nil
}

// Stop terminates the agent's stream and removes its output. It reports
// false when there was nothing to stop.
func (s *Supervisor) Stop(agentID string) bool {
	unlock := s.locks.Lock(agentID)
	defer unlock()

	return s.stopLocked(agentID)
}

func (s *Supervisor) stopLocked(agentID string) bool {
	s.mu.Lock()
	p, ok := s.processes[agentID]
	if ok {
		delete(s.processes, agentID)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	p.cancel()
	s.terminate(p)
	if !waitTimeout(&p.wg, taskWaitTimeout) {
		slog.Warn("Stream tasks did not finish in time", "agent_id", agentID)
	}

	removeOutput(p.dir)
	s.ports.Release(p.port)
	if s.proxy != nil {
		s.proxy.SetProxyURL(agentID, "")
	}

	slog.Info("Stream process stopped", "agent_id", agentID, "proxy_port", p.port)
	return true
}

func (s *Supervisor) Get(agentID string) (ProcessInfo, bool) {
	s.mu.RLock()
	p, ok := s.processes[agentID]
	s.mu.RUnlock()

	if !ok {
		return ProcessInfo{}, false
	}
	return p.info(), true
}

func (s *Supervisor) List() []ProcessInfo {
	s.mu.RLock()
	procs := make([]*streamProcess, 0, len(s.processes))
	for _, p := range s.processes {
		procs = append(procs, p)
	}
	s.mu.RUnlock()

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		infos = append(infos, p.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].AgentID < infos[j].AgentID
	})
	return infos
}

// OutputDir returns the current launch directory for the agent.
func (s *Supervisor) OutputDir(agentID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.processes[agentID]
	if !ok {
		return "", false
	}
	return p.dir, true
}

func (s *Supervisor) OutputRoot() string {
	return s.cfg.OutputRoot
}

// Shutdown stops every stream concurrently.
func (s *Supervisor) Shutdown() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.processes))
	for id := range s.processes {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			s.Stop(agentID)
		}(id)
	}
	wg.Wait()

	slog.Info("Stream supervisor shut down", "stopped", len(ids))
}

// ProxyURL is the relay path viewers load an agent's playlist from.
func ProxyURL(agentID string) string {
	return "/hls/" + agentID + "/" + PlaylistName
}
