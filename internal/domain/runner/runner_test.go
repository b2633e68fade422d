package runner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graflow/graflow/internal/domain/runner"
)

func TestRegistry_RegisterAndHeartbeat(t *testing.T) {
	reg := runner.NewRegistry()
	reg.Register(&runner.Runner{ID: "r1", Capabilities: runner.Capabilities{MaxConcurrentNodes: 2}})

	ok := reg.Heartbeat("r1", runner.StatusBusy, 1)
	require.True(t, ok)

	r, found := reg.Get("r1")
	require.True(t, found)
	assert.Equal(t, runner.StatusBusy, r.Status)
	assert.True(t, r.HasCapacity())
}

func TestRegistry_CleanupStale(t *testing.T) {
	reg := runner.NewRegistry()
	reg.Register(&runner.Runner{ID: "r1"})

	r, ok := reg.Get("r1")
	require.True(t, ok)
	r.LastHeartbeat = time.Now().Add(-time.Hour)

	removed := reg.CleanupStale(time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, reg.Count())
}
