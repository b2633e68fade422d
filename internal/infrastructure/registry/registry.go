// Package registry owns the set of live workspace contexts, keyed by
// workspace id. It get-or-creates a Workspace when its graph path is opened,
// de-duplicating concurrent creations of the same id, and removes a
// workspace once its idle grace period elapses with no clients and no
// active runs.
package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/graflow/graflow/internal/domain/workspace"
	"github.com/graflow/graflow/internal/infrastructure/monitoring"
	"github.com/graflow/graflow/internal/infrastructure/transport"
	"github.com/graflow/graflow/internal/pkg/ids"
)

// Config parameterizes every workspace the registry creates.
type Config struct {
	StateDir      string
	QueueCapacity int
	IdleGrace     time.Duration
	LogMaxBytes   int64

	// OnEmpty is invoked once the registry transitions from one or more
	// workspaces to zero. The process entrypoint may use it to self
	// terminate when run as a per-user daemon with nothing left to serve.
	OnEmpty func()
}

// Registry get-or-creates Workspace contexts by workspace id.
type Registry struct {
	cfg     Config
	metrics *monitoring.Metrics
	bridge  *transport.Bridge

	mu         sync.Mutex
	workspaces map[string]*workspace.Workspace

	group singleflight.Group
}

// New creates an empty Registry. bridge, if non-nil, is attached to every
// workspace's event bus as it is opened, so realtime clients can subscribe
// before a single mutation has been processed.
func New(cfg Config, metrics *monitoring.Metrics, bridge *transport.Bridge) *Registry {
	return &Registry{
		cfg:        cfg,
		metrics:    metrics,
		bridge:     bridge,
		workspaces: make(map[string]*workspace.Workspace),
	}
}

// Open returns the workspace rooted at graphPath, starting its worker
// goroutine and registering it on first access. Concurrent calls for the
// same path resolve to the same Workspace via singleflight.
func (r *Registry) Open(ctx context.Context, graphPath string) (*workspace.Workspace, error) {
	absPath, err := filepath.Abs(graphPath)
	if err != nil {
		return nil, fmt.Errorf("resolve graph path: %w", err)
	}
	id := ids.Workspace(absPath)

	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		r.mu.Lock()
		if ws, ok := r.workspaces[id]; ok {
			r.mu.Unlock()
			return ws, nil
		}
		r.mu.Unlock()

		ws, err := workspace.New(workspace.Config{
			GraphPath:     graphPath,
			StateDir:      r.cfg.StateDir,
			QueueCapacity: r.cfg.QueueCapacity,
			IdleGrace:     r.cfg.IdleGrace,
			LogMaxBytes:   r.cfg.LogMaxBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("open workspace: %w", err)
		}
		ws.OnIdle(r.remove)
		if r.bridge != nil {
			r.bridge.Attach(ws.ID, ws.Bus)
		}
		// The worker outlives the request that opened the workspace; it
		// stops on idle teardown or Shutdown.
		ws.Start(context.WithoutCancel(ctx))

		r.mu.Lock()
		r.workspaces[ws.ID] = ws
		count := len(r.workspaces)
		r.mu.Unlock()

		if r.metrics != nil {
			r.metrics.WorkspacesActive.Set(float64(count))
		}
		return ws, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*workspace.Workspace), nil
}

// Get returns an already-open workspace by id, if any.
func (r *Registry) Get(id string) (*workspace.Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[id]
	return ws, ok
}

// remove tears a workspace down once its idle grace period has elapsed. It
// is registered as the workspace's OnIdle callback.
func (r *Registry) remove(id string) {
	r.mu.Lock()
	ws, ok := r.workspaces[id]
	if ok {
		delete(r.workspaces, id)
	}
	count := len(r.workspaces)
	r.mu.Unlock()

	if !ok {
		return
	}

	ws.Stop()

	if r.metrics != nil {
		r.metrics.WorkspacesActive.Set(float64(count))
	}
	if count == 0 && r.cfg.OnEmpty != nil {
		r.cfg.OnEmpty()
	}
}

// Count returns the number of currently open workspaces.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Shutdown stops every open workspace concurrently, waiting for all worker
// goroutines to drain before returning.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*workspace.Workspace, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		all = append(all, ws)
	}
	r.workspaces = make(map[string]*workspace.Workspace)
	r.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, ws := range all {
		ws := ws
		g.Go(func() error {
			ws.Stop()
			return nil
		})
	}
	return g.Wait()
}
