package stream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortManager_MonotonicAllocation(t *testing.T) {
	pm, err := NewPortManager(8100, 8105)
	require.NoError(t, err)

	first, err := pm.Allocate("agent-1")
	require.NoError(t, err)
	assert.Equal(t, 8100, first)

	pm.Release(first)

	// The released port is not handed straight back out.
	second, err := pm.Allocate("agent-1")
	require.NoError(t, err)
	assert.Equal(t, 8101, second)

	third, err := pm.Allocate("agent-2")
	require.NoError(t, err)
	assert.Equal(t, 8102, third)

	allocations := pm.GetAllocations()
	assert.Equal(t, "agent-1", allocations[second])
	assert.Equal(t, "agent-2", allocations[third])
	assert.NotContains(t, allocations, first)
}

func TestPortManager_WrapSkipsHeldPorts(t *testing.T) {
	pm, err := NewPortManager(8100, 8102) // Only 3 ports available
	require.NoError(t, err)

	ports := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		port, err := pm.Allocate(string(rune('A' + i)))
		require.NoError(t, err)
		ports = append(ports, port)
	}
	assert.Equal(t, []int{8100, 8101, 8102}, ports)

	_, err = pm.Allocate("agent-overflow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no available ports")

	pm.Release(8101)

	port, err := pm.Allocate("agent-recovered")
	require.NoError(t, err)
	assert.Equal(t, 8101, port, "only the released port is free after wrapping")
}

func TestPortManager_ConcurrentAllocations(t *testing.T) {
	pm, err := NewPortManager(8100, 8120)
	require.NoError(t, err)

	var wg sync.WaitGroup
	portsChan := make(chan int, 10)
	errorsChan := make(chan error, 10)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			port, err := pm.Allocate(string(rune('A' + id)))
			if err != nil {
				errorsChan <- err
				return
			}
			portsChan <- port
		}(i)
	}

	wg.Wait()
	close(portsChan)
	close(errorsChan)

	assert.Empty(t, errorsChan, "no allocation errors should occur")

	uniquePorts := make(map[int]bool)
	for port := range portsChan {
		assert.False(t, uniquePorts[port], "port %d was allocated more than once", port)
		uniquePorts[port] = true
	}
	assert.Equal(t, 10, len(uniquePorts))
	assert.Equal(t, 10, len(pm.GetAllocations()))
}

func TestPortManager_ReleaseIdempotency(t *testing.T) {
	pm, err := NewPortManager(8100, 8105)
	require.NoError(t, err)

	port, err := pm.Allocate("agent-1")
	require.NoError(t, err)

	pm.Release(port)
	pm.Release(port)
	pm.Release(8106)

	port2, err := pm.Allocate("agent-2")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port2, 8100)
	assert.LessOrEqual(t, port2, 8105)
}

func TestPortManager_AllocationsAreACopy(t *testing.T) {
	pm, err := NewPortManager(8100, 8105)
	require.NoError(t, err)

	_, err = pm.Allocate("agent-1")
	require.NoError(t, err)

	allocations := pm.GetAllocations()
	allocations[9999] = "fake-agent"
	assert.NotContains(t, pm.GetAllocations(), 9999, "external mutations should not affect internal state")
}

func TestPortManager_InvalidConfiguration(t *testing.T) {
	_, err := NewPortManager(8200, 8100)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "start")

	_, err = NewPortManager(0, 100)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ports must be >= 1")

	_, err = NewPortManager(65000, 70000)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "65535")

	pm, err := NewPortManager(8100, 8200)
	assert.NoError(t, err)
	assert.NotNil(t, pm)
}
