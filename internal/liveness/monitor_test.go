package liveness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/EternisAI/silo-control/internal/agents"
)

type MockStreamStopper struct {
	mock.Mock
}

func (m *MockStreamStopper) Stop(agentID string) bool {
	args := m.Called(agentID)
	return args.Bool(0)
}

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Expired(now time.Time) []string {
	args := m.Called(now)
	return args.Get(0).([]string)
}

func (m *MockRegistry) RemoveIfExpired(agentID string, now time.Time) bool {
	args := m.Called(agentID, now)
	return args.Bool(0)
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSweeper) Sweep(time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 0
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestMonitor_SweepRemovesExpiredAndStopsStream(t *testing.T) {
	registry := agents.NewRegistry()
	stale, err := registry.Register()
	require.NoError(t, err)

	streams := new(MockStreamStopper)
	streams.On("Stop", stale.ID).Return(true).Once()
	sessions := &countingSweeper{}

	monitor := NewMonitor(registry, streams, sessions)

	// Nothing is past the window yet.
	assert.Empty(t, monitor.Sweep(time.Now()))
	assert.True(t, registry.Exists(stale.ID))

	removed := monitor.Sweep(time.Now().Add(agents.AgentExpiry + time.Minute))
	assert.Equal(t, []string{stale.ID}, removed)
	assert.False(t, registry.Exists(stale.ID))
	assert.Equal(t, 2, sessions.count())
	streams.AssertExpectations(t)
}

func TestMonitor_HeartbeatDuringTeardownKeepsAgent(t *testing.T) {
	now := time.Now()
	registry := new(MockRegistry)
	registry.On("Expired", now).Return([]string{"agent-1", "agent-2"})
	// agent-1 reported while its stream was stopping.
	registry.On("RemoveIfExpired", "agent-1", now).Return(false)
	registry.On("RemoveIfExpired", "agent-2", now).Return(true)

	streams := new(MockStreamStopper)
	streams.On("Stop", "agent-1").Return(true)
	streams.On("Stop", "agent-2").Return(false)

	monitor := NewMonitor(registry, streams, nil)

	assert.Equal(t, []string{"agent-2"}, monitor.Sweep(now))
	registry.AssertExpectations(t)
	streams.AssertExpectations(t)
}

func TestMonitor_StopsStreamBeforeRemoving(t *testing.T) {
	now := time.Now()
	var order []string

	registry := new(MockRegistry)
	registry.On("Expired", now).Return([]string{"agent-1"})
	registry.On("RemoveIfExpired", "agent-1", now).Run(func(mock.Arguments) {
		order = append(order, "remove")
	}).Return(true)

	streams := new(MockStreamStopper)
	streams.On("Stop", "agent-1").Run(func(mock.Arguments) {
		order = append(order, "stop")
	}).Return(true)

	NewMonitor(registry, streams, nil).Sweep(now)
	assert.Equal(t, []string{"stop", "remove"}, order)
}

func TestMonitor_MiddlewareSweepsBeforeHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := new(MockRegistry)
	registry.On("Expired", mock.Anything).Return([]string{})
	sessions := &countingSweeper{}
	monitor := NewMonitor(registry, nil, sessions)

	router := gin.New()
	router.Use(monitor.Middleware())
	router.GET("/ping", func(c *gin.Context) {
		assert.Equal(t, 1, sessions.count())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	registry.AssertNumberOfCalls(t, "Expired", 1)
}

func TestMonitor_StartSweepsPeriodically(t *testing.T) {
	registry := new(MockRegistry)
	registry.On("Expired", mock.Anything).Return([]string{})
	sessions := &countingSweeper{}
	monitor := NewMonitor(registry, nil, sessions)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		monitor.Start(ctx, 10*time.Millisecond)
		close(finished)
	}()

	assert.Eventually(t, func() bool { return sessions.count() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}
