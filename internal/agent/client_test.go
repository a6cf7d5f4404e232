package agent

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EternisAI/silo-control/internal/agents"
	httpapi "github.com/EternisAI/silo-control/internal/api/http"
	"github.com/EternisAI/silo-control/internal/auth"
	"github.com/EternisAI/silo-control/internal/hls"
	"github.com/EternisAI/silo-control/internal/stream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type noStreams struct{}

func (noStreams) Start(context.Context, string, string) bool { return false }
func (noStreams) Stop(string) bool                           { return false }
func (noStreams) List() []stream.ProcessInfo                 { return nil }

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(n agents.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, n.Message)
}

func (r *recordingNotifier) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func newController(t *testing.T) (*httptest.Server, *agents.Registry) {
	t.Helper()

	registry := agents.NewRegistry()
	sessions, err := auth.NewSessionStore(auth.Config{Username: "admin", Password: "changeme"})
	require.NoError(t, err)

	router := gin.New()
	httpapi.SetupRoute(router, &httpapi.Services{
		Registry: registry,
		Sessions: sessions,
		Streams:  noStreams{},
		Relay:    hls.NewRelay(t.TempDir(), nil),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, registry
}

func testConfig(serverURL, dir string) Config {
	return Config{
		ServerURL:            serverURL,
		CredentialsPath:      filepath.Join(dir, "agent_credentials.yaml"),
		PollInterval:         20 * time.Millisecond,
		HeartbeatInterval:    20 * time.Millisecond,
		ScreenInterval:       20 * time.Millisecond,
		NotificationInterval: 20 * time.Millisecond,
		RequestTimeout:       5 * time.Second,
	}
}

func runClient(t *testing.T, c *Client) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("client did not stop")
		}
	})
}

func TestNew_RequiresServerURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestClient_RegistersAndSavesCredentials(t *testing.T) {
	srv, registry := newController(t)
	cfg := testConfig(srv.URL, t.TempDir())

	c, err := New(cfg, WithPlatform(fixedPlatform{resolution: "1280x720"}))
	require.NoError(t, err)
	runClient(t, c)

	require.Eventually(t, func() bool { return registry.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	creds, ok, err := LoadCredentials(cfg.CredentialsPath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, srv.URL, creds.ServerURL)
	assert.True(t, registry.Validate(creds.AgentID, creds.Token))

	assert.Eventually(t, func() bool {
		snap, err := registry.Get(creds.AgentID)
		return err == nil && snap.ScreenInfo["resolution"] == "1280x720" && snap.SystemInfo["arch"] == runtime.GOARCH
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClient_ExecutesQueuedCommands(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	srv, registry := newController(t)

	c, err := New(testConfig(srv.URL, t.TempDir()))
	require.NoError(t, err)
	runClient(t, c)
	require.Eventually(t, func() bool { return c.AgentID() != "" }, 5*time.Second, 10*time.Millisecond)

	first, err := registry.Enqueue(c.AgentID(), "echo first", agents.CommandTypeShell)
	require.NoError(t, err)
	second, err := registry.Enqueue(c.AgentID(), "exit 7", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		pending, err := registry.PendingCommands(c.AgentID())
		return err == nil && len(pending) == 0
	}, 5*time.Second, 10*time.Millisecond)

	cmd, err := registry.Command(c.AgentID(), first)
	require.NoError(t, err)
	assert.Equal(t, agents.CommandStatusCompleted, cmd.Status)
	assert.Equal(t, "first\n", cmd.Stdout)
	require.NotNil(t, cmd.ExitCode)
	assert.Equal(t, 0, *cmd.ExitCode)

	cmd, err = registry.Command(c.AgentID(), second)
	require.NoError(t, err)
	require.NotNil(t, cmd.ExitCode)
	assert.Equal(t, 7, *cmd.ExitCode)
}

func TestClient_DeliversNotifications(t *testing.T) {
	srv, registry := newController(t)
	notifier := &recordingNotifier{}

	c, err := New(testConfig(srv.URL, t.TempDir()), WithNotifier(notifier))
	require.NoError(t, err)
	runClient(t, c)
	require.Eventually(t, func() bool { return c.AgentID() != "" }, 5*time.Second, 10*time.Millisecond)

	_, err = registry.PostNotification(c.AgentID(), "lunch in five")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got := notifier.received()
		return len(got) == 1 && got[0] == "lunch in five"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestClient_ReregistersWhenCredentialsRejected(t *testing.T) {
	srv, registry := newController(t)
	cfg := testConfig(srv.URL, t.TempDir())

	stale := Credentials{AgentID: "forgotten", Token: "stale", ServerURL: srv.URL, CreatedAt: time.Now()}
	require.NoError(t, SaveCredentials(cfg.CredentialsPath, stale))

	c, err := New(cfg)
	require.NoError(t, err)
	runClient(t, c)

	require.Eventually(t, func() bool { return registry.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		creds, ok, err := LoadCredentials(cfg.CredentialsPath)
		return err == nil && ok && creds.AgentID != stale.AgentID
	}, 5*time.Second, 10*time.Millisecond)
	assert.NotEqual(t, stale.AgentID, c.AgentID())
	assert.True(t, registry.Exists(c.AgentID()))
}

func TestClient_RegistersAgainForDifferentController(t *testing.T) {
	srv, registry := newController(t)
	cfg := testConfig(srv.URL, t.TempDir())

	other := Credentials{AgentID: "agent-elsewhere", Token: "t", ServerURL: "http://elsewhere:8080", CreatedAt: time.Now()}
	require.NoError(t, SaveCredentials(cfg.CredentialsPath, other))

	c, err := New(cfg)
	require.NoError(t, err)
	runClient(t, c)

	require.Eventually(t, func() bool { return registry.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.NotEqual(t, other.AgentID, c.AgentID())
}

func TestClient_SubmitPendingSkipsInFlightCommands(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	srv, registry := newController(t)

	registered, err := registry.Register()
	require.NoError(t, err)

	c, err := New(testConfig(srv.URL, t.TempDir()))
	require.NoError(t, err)
	c.api.setCredentials(Credentials{AgentID: registered.ID, Token: registered.Token})

	marker := filepath.Join(t.TempDir(), "runs")
	id, err := registry.Enqueue(registered.ID, "echo run >> "+marker+"; sleep 0.2", agents.CommandTypeShell)
	require.NoError(t, err)

	ctx := context.Background()
	wp := workerpool.New(1)

	assert.Equal(t, 1, c.submitPending(ctx, wp))
	assert.Equal(t, 0, c.submitPending(ctx, wp), "a command already queued is not queued again")
	wp.StopWait()

	raw, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "run\n", string(raw))

	cmd, err := registry.Command(registered.ID, id)
	require.NoError(t, err)
	assert.Equal(t, agents.CommandStatusCompleted, cmd.Status)
	assert.Empty(t, c.inflight)

	assert.Equal(t, 0, c.submitPending(ctx, workerpool.New(1)))
}

func TestClient_LongCommandRunsOnceWhilePolling(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	srv, registry := newController(t)

	c, err := New(testConfig(srv.URL, t.TempDir()))
	require.NoError(t, err)
	runClient(t, c)
	require.Eventually(t, func() bool { return c.AgentID() != "" }, 5*time.Second, 10*time.Millisecond)

	marker := filepath.Join(t.TempDir(), "runs")
	slow, err := registry.Enqueue(c.AgentID(), "echo run >> "+marker+"; sleep 0.3", agents.CommandTypeShell)
	require.NoError(t, err)
	quick, err := registry.Enqueue(c.AgentID(), "echo quick", agents.CommandTypeShell)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		pending, err := registry.PendingCommands(c.AgentID())
		return err == nil && len(pending) == 0
	}, 5*time.Second, 10*time.Millisecond)

	raw, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "run\n", string(raw), "polls during execution must not start the command again")

	first, err := registry.Command(c.AgentID(), slow)
	require.NoError(t, err)
	second, err := registry.Command(c.AgentID(), quick)
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)
	require.NotNil(t, second.CompletedAt)
	assert.False(t, second.CompletedAt.Before(*first.CompletedAt), "commands run in submission order")
}
