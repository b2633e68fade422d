package registry_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graflow/graflow/internal/infrastructure/registry"
)

func newTestRegistry(t *testing.T, onEmpty func()) *registry.Registry {
	t.Helper()
	return registry.New(registry.Config{
		StateDir:      t.TempDir(),
		QueueCapacity: 16,
		IdleGrace:     50 * time.Millisecond,
		LogMaxBytes:   1 << 20,
		OnEmpty:       onEmpty,
	}, nil, nil)
}

func TestRegistry_OpenIsIdempotentForSamePath(t *testing.T) {
	reg := newTestRegistry(t, nil)
	graphPath := filepath.Join(t.TempDir(), "graph.json")

	ws1, err := reg.Open(context.Background(), graphPath)
	require.NoError(t, err)
	ws2, err := reg.Open(context.Background(), graphPath)
	require.NoError(t, err)

	assert.Same(t, ws1, ws2)
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_OpenDeduplicatesConcurrentCallers(t *testing.T) {
	reg := newTestRegistry(t, nil)
	graphPath := filepath.Join(t.TempDir(), "graph.json")

	const n = 20
	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ws, err := reg.Open(context.Background(), graphPath)
			require.NoError(t, err)
			ids[i] = ws.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_GetReturnsFalseForUnknownID(t *testing.T) {
	reg := newTestRegistry(t, nil)
	_, ok := reg.Get("nonexistent")
	assert.False(t, ok)
}

func TestRegistry_ShutdownStopsAllWorkspaces(t *testing.T) {
	reg := newTestRegistry(t, nil)
	_, err := reg.Open(context.Background(), filepath.Join(t.TempDir(), "a.json"))
	require.NoError(t, err)
	_, err = reg.Open(context.Background(), filepath.Join(t.TempDir(), "b.json"))
	require.NoError(t, err)
	require.Equal(t, 2, reg.Count())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))
}

func TestRegistry_OnEmptyFiresWhenLastWorkspaceIdlesOut(t *testing.T) {
	empty := make(chan struct{})
	var once sync.Once
	reg := newTestRegistry(t, func() { once.Do(func() { close(empty) }) })

	ws, err := reg.Open(context.Background(), filepath.Join(t.TempDir(), "graph.json"))
	require.NoError(t, err)
	ws.Connect()
	ws.Disconnect()

	select {
	case <-empty:
	case <-time.After(2 * time.Second):
		t.Fatal("OnEmpty was never invoked after the only workspace went idle")
	}
	assert.Equal(t, 0, reg.Count())
}
