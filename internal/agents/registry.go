package agents

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// AgentExpiry is how long an agent may stay silent before the liveness sweep drops it.
	AgentExpiry = 5 * time.Minute

	tokenBytes = 32
)

// Registry owns every known agent and its per-agent state.
//
// mu guards the agents map only (insert/delete/lookup). Mutation of a single
// agent's commands, notifications and stream info goes through that agent's
// own mutex, so unrelated agents never contend.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	expiry time.Duration
	now    func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]*Agent),
		expiry: AgentExpiry,
		now:    time.Now,
	}
}

func (r *Registry) Register() (*Agent, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := r.now()
	agent := &Agent{
		ID:           uuid.New().String(),
		Token:        token,
		RegisteredAt: now,
		lastSeen:     now,
	}

	r.mu.Lock()
	r.agents[agent.ID] = agent
	total := len(r.agents)
	r.mu.Unlock()

	slog.Info("Agent registered", "agent_id", agent.ID, "total_agents", total)
	return agent, nil
}

// Validate reports whether token belongs to agentID.
func (r *Registry) Validate(agentID, token string) bool {
	agent, ok := r.lookup(agentID)
	if !ok || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(agent.Token), []byte(token)) == 1
}

// Authenticate validates the bearer pair and refreshes the agent's last-seen time.
func (r *Registry) Authenticate(agentID, token string) (*Agent, error) {
	agent, ok := r.lookup(agentID)
	if !ok {
		return nil, ErrAgentNotFound
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(agent.Token), []byte(token)) != 1 {
		return nil, ErrInvalidToken
	}
	agent.touch(r.now())
	return agent, nil
}

func (r *Registry) Touch(agentID string) error {
	agent, ok := r.lookup(agentID)
	if !ok {
		return ErrAgentNotFound
	}
	agent.touch(r.now())
	return nil
}

func (r *Registry) Get(agentID string) (Snapshot, error) {
	agent, ok := r.lookup(agentID)
	if !ok {
		return Snapshot{}, ErrAgentNotFound
	}
	return agent.snapshot(), nil
}

func (r *Registry) Exists(agentID string) bool {
	_, ok := r.lookup(agentID)
	return ok
}

// List returns snapshots of all agents, most recently seen first.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Expired returns the ids of agents silent for longer than the expiry window at now.
func (r *Registry) Expired(now time.Time) []string {
	r.mu.RLock()
	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.mu.RUnlock()

	var ids []string
	for _, a := range agents {
		if now.Sub(a.LastSeen()) > r.expiry {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// RemoveIfExpired deletes the agent only if it is still expired at now. An
// agent that checked in while its stream was being torn down survives.
func (r *Registry) RemoveIfExpired(agentID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return false
	}
	lastSeen := agent.LastSeen()
	if now.Sub(lastSeen) <= r.expiry {
		return false
	}
	delete(r.agents, agentID)

	slog.Info("Removed inactive agent",
		"agent_id", agentID,
		"last_seen", lastSeen,
		"total_agents", len(r.agents))
	return true
}

func (r *Registry) Remove(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[agentID]; !ok {
		return false
	}
	delete(r.agents, agentID)
	return true
}

func (r *Registry) UpdateSystemInfo(agentID string, info map[string]interface{}) error {
	agent, ok := r.lookup(agentID)
	if !ok {
		return ErrAgentNotFound
	}
	agent.mu.Lock()
	defer agent.mu.Unlock()
	if agent.systemInfo == nil {
		agent.systemInfo = make(map[string]interface{}, len(info))
	}
	for k, v := range info {
		agent.systemInfo[k] = v
	}
	return nil
}

func (r *Registry) UpdateScreenInfo(agentID string, info map[string]interface{}) error {
	agent, ok := r.lookup(agentID)
	if !ok {
		return ErrAgentNotFound
	}
	agent.mu.Lock()
	defer agent.mu.Unlock()
	if agent.screenInfo == nil {
		agent.screenInfo = make(map[string]interface{}, len(info))
	}
	for k, v := range info {
		agent.screenInfo[k] = v
	}
	return nil
}

func (r *Registry) SetStreamInfo(agentID, streamType, streamURL string) error {
	agent, ok := r.lookup(agentID)
	if !ok {
		return ErrAgentNotFound
	}
	agent.mu.Lock()
	agent.stream = &StreamInfo{
		Type:         streamType,
		URL:          streamURL,
		RegisteredAt: r.now(),
	}
	agent.mu.Unlock()
	return nil
}

// SetProxyURL records (or, with an empty url, clears) where the relayed stream
// can be watched. Unknown agents and agents without stream info are ignored.
func (r *Registry) SetProxyURL(agentID, url string) {
	agent, ok := r.lookup(agentID)
	if !ok {
		return
	}
	agent.mu.Lock()
	if agent.stream != nil {
		agent.stream.ProxyURL = url
	}
	agent.mu.Unlock()
}

func (r *Registry) lookup(agentID string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[agentID]
	return agent, ok
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
