package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/gammazero/workerpool"

	"github.com/EternisAI/silo-control/internal/agents"
)

// Client is the long-running agent: it registers with the controller, keeps
// itself alive with heartbeats, and executes queued commands one at a time.
type Client struct {
	cfg      Config
	api      *apiClient
	executor *Executor
	notifier Notifier
	platform Platform
	streamer *Streamer

	registerMu sync.Mutex

	// inflight holds ids submitted to the command worker and not yet reported.
	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

type Option func(*Client)

func WithNotifier(n Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

func WithPlatform(p Platform) Option {
	return func(c *Client) { c.platform = p }
}

func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server url is required")
	}

	api := newAPIClient(cfg.ServerURL, cfg.RequestTimeout)
	c := &Client{
		cfg:      cfg,
		api:      api,
		executor: NewExecutor(cfg.Executor),
		notifier: LogNotifier{},
		platform: NewHostPlatform(cfg.Stream.Resolution),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cfg.Stream.Enabled {
		c.streamer = newStreamer(cfg.Stream, c.platform, api)
	}
	return c, nil
}

// AgentID returns the id of the current registration, if any.
func (c *Client) AgentID() string {
	return c.api.credentials().AgentID
}

// Run blocks until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	if err := c.ensureRegistered(ctx); err != nil {
		return err
	}
	slog.Info("Agent running", "agent_id", c.AgentID(), "server_url", c.cfg.ServerURL)

	var wg sync.WaitGroup
	loops := []func(context.Context){c.heartbeatLoop, c.screenLoop, c.notificationLoop}
	if c.streamer != nil {
		loops = append(loops, c.streamer.Run)
	}
	for _, loop := range loops {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(loop)
	}

	c.pollLoop(ctx)
	wg.Wait()

	slog.Info("Agent stopped", "agent_id", c.AgentID())
	return nil
}

// ensureRegistered loads saved credentials or registers a new agent.
func (c *Client) ensureRegistered(ctx context.Context) error {
	creds, ok, err := LoadCredentials(c.cfg.CredentialsPath)
	if err != nil {
		slog.Warn("Ignoring unreadable credentials", "path", c.cfg.CredentialsPath, "error", err)
	}
	if ok && creds.ServerURL != "" && creds.ServerURL != c.api.baseURL {
		slog.Warn("Saved credentials belong to another controller, registering again",
			"saved_server_url", creds.ServerURL,
			"server_url", c.api.baseURL)
		ok = false
	}
	if ok {
		c.api.setCredentials(creds)
		slog.Info("Loaded agent credentials", "agent_id", creds.AgentID, "path", c.cfg.CredentialsPath)
		return nil
	}
	c.registerMu.Lock()
	defer c.registerMu.Unlock()
	return c.register(ctx)
}

// register obtains fresh credentials. Callers hold registerMu.
func (c *Client) register(ctx context.Context) error {
	var creds Credentials
	err := retry.Do(func() error {
		var err error
		creds, err = c.api.register(ctx)
		if err != nil {
			slog.Warn("Registration failed", "error", err)
		}
		return err
	},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to register agent: %w", err)
	}

	c.api.setCredentials(creds)
	if err := SaveCredentials(c.cfg.CredentialsPath, creds); err != nil {
		slog.Error("Failed to save credentials", "path", c.cfg.CredentialsPath, "error", err)
	}
	slog.Info("Agent registered", "agent_id", creds.AgentID)
	return nil
}

// reregister replaces credentials the controller no longer accepts, unless
// another loop already did.
func (c *Client) reregister(ctx context.Context, stale Credentials) {
	c.registerMu.Lock()
	defer c.registerMu.Unlock()

	if current := c.api.credentials(); current.Token != stale.Token {
		return
	}
	slog.Warn("Controller rejected credentials, registering again", "agent_id", stale.AgentID)
	if err := c.register(ctx); err != nil && ctx.Err() == nil {
		slog.Error("Re-registration failed", "error", err)
	}
}

func (c *Client) handleErr(ctx context.Context, creds Credentials, op string, err error) {
	if errors.Is(err, ErrUnauthorized) {
		c.reregister(ctx, creds)
		return
	}
	if ctx.Err() != nil {
		return
	}
	slog.Warn("Controller request failed", "operation", op, "error", err)
}

func (c *Client) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	c.every(ctx, c.cfg.HeartbeatInterval, func(ctx context.Context) {
		creds := c.api.credentials()
		if err := c.api.heartbeat(ctx, systemInfo(ctx)); err != nil {
			c.handleErr(ctx, creds, "heartbeat", err)
		}
	})
}

func (c *Client) screenLoop(ctx context.Context) {
	c.every(ctx, c.cfg.ScreenInterval, func(ctx context.Context) {
		creds := c.api.credentials()
		info := map[string]interface{}{
			"resolution": screenResolution(c.platform),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		}
		if err := c.api.updateScreenInfo(ctx, info); err != nil {
			c.handleErr(ctx, creds, "update_screen_info", err)
		}
	})
}

func (c *Client) notificationLoop(ctx context.Context) {
	since := time.Now()
	c.every(ctx, c.cfg.NotificationInterval, func(ctx context.Context) {
		creds := c.api.credentials()
		items, err := c.api.checkNotifications(ctx, since)
		if err != nil {
			c.handleErr(ctx, creds, "check_notifications", err)
			return
		}
		for _, n := range items {
			c.notifier.Notify(n)
			if n.Timestamp.After(since) {
				since = n.Timestamp
			}
		}
	})
}

// pollLoop fetches pending commands and hands new ones to a single worker,
// so commands run one at a time in submission order while polling goes on.
func (c *Client) pollLoop(ctx context.Context) {
	wp := workerpool.New(1)
	defer wp.StopWait()

	c.every(ctx, c.cfg.PollInterval, func(ctx context.Context) {
		c.submitPending(ctx, wp)
	})
}

// submitPending queues every pending command the worker has not seen yet and
// returns how many were queued.
func (c *Client) submitPending(ctx context.Context, wp *workerpool.WorkerPool) int {
	creds := c.api.credentials()
	commands, err := c.api.pendingCommands(ctx)
	if err != nil {
		c.handleErr(ctx, creds, "commands", err)
		return 0
	}

	submitted := 0
	for _, cmd := range commands {
		if !c.claim(cmd.ID) {
			continue
		}
		wp.Submit(func() {
			defer c.release(cmd.ID)
			if ctx.Err() != nil {
				return
			}
			c.processCommand(ctx, creds, cmd)
		})
		submitted++
	}
	if submitted > 0 {
		slog.Debug("Queued commands", "count", submitted, "pending", len(commands))
	}
	return submitted
}

// processCommand runs cmd and acks it once the result reached the controller.
func (c *Client) processCommand(ctx context.Context, creds Credentials, cmd agents.Command) {
	if !c.runCommand(ctx, cmd) {
		return
	}
	if err := c.api.ack(ctx, []string{cmd.ID}); err != nil {
		c.handleErr(ctx, creds, "ack", err)
	}
}

func (c *Client) claim(id string) bool {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	if _, ok := c.inflight[id]; ok {
		return false
	}
	c.inflight[id] = struct{}{}
	return true
}

func (c *Client) release(id string) {
	c.inflightMu.Lock()
	delete(c.inflight, id)
	c.inflightMu.Unlock()
}

// runCommand executes cmd and reports its result. It returns false when the
// result never reached the controller, leaving the command pending.
func (c *Client) runCommand(ctx context.Context, cmd agents.Command) bool {
	result := c.executor.Execute(ctx, cmd)

	err := retry.Do(func() error {
		return c.api.reportResult(ctx, result)
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, ErrUnauthorized) }),
	)
	if err != nil {
		slog.Error("Failed to report command result", "command_id", cmd.ID, "error", err)
		return false
	}
	return true
}
