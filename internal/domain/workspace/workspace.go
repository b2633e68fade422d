// Package workspace owns the per-workspace graph store, modification
// queue, graph worker goroutine, run registry and event bus: the
// dependency order laid out by the engine's component design. A
// Workspace is created when its graph path is first opened and torn down after an
// idle grace period once its last client disconnects.
package workspace

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/graflow/graflow/internal/domain/graphmodel"
	"github.com/graflow/graflow/internal/domain/runctl"
	"github.com/graflow/graflow/internal/domain/scheduler"
	"github.com/graflow/graflow/internal/infrastructure/storage"
	"github.com/graflow/graflow/internal/pkg/errors"
	"github.com/graflow/graflow/internal/pkg/eventbus"
	"github.com/graflow/graflow/internal/pkg/ids"
)

// DefaultQueueCapacity bounds the modification queue; producers block
// (fairly, in send order) once it is full.
const DefaultQueueCapacity = 1024

// DefaultIdleGrace is how long a workspace survives after its last client
// disconnects and no run is active.
const DefaultIdleGrace = 1 * time.Second

// Config parameterizes a Workspace's resource limits.
type Config struct {
	GraphPath     string
	StateDir      string
	QueueCapacity int
	IdleGrace     time.Duration
	LogMaxBytes   int64
}

// Workspace is one isolated scheduling context for a single graph file.
type Workspace struct {
	ID   string
	Path string

	Graph *graphmodel.Graph
	Runs  *runctl.Registry
	Bus   *eventbus.Bus

	engine *scheduler.Engine
	queue  chan *scheduler.Mutation

	idleGrace time.Duration
	onIdle    func(id string)

	mu          sync.Mutex
	clientCount int
	suspended   bool
	idleTimer   *time.Timer
	cancel      context.CancelFunc
	stopped     chan struct{}
}

// New loads a workspace's graph from disk (or starts empty) and wires its
// scheduler engine, run registry and event bus. It does not start the
// worker goroutine; call Start for that.
func New(cfg Config) (*Workspace, error) {
	absPath, err := filepath.Abs(cfg.GraphPath)
	if err != nil {
		return nil, fmt.Errorf("resolve graph path: %w", err)
	}

	g, err := storage.Load(absPath)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}

	logDir := ""
	if cfg.StateDir != "" {
		logDir = filepath.Join(cfg.StateDir, ids.Workspace(absPath))
	}
	bus, err := eventbus.New(ids.Workspace(absPath), logDir, cfg.LogMaxBytes)
	if err != nil {
		return nil, fmt.Errorf("open event bus: %w", err)
	}

	runs := runctl.NewRegistry()

	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	grace := cfg.IdleGrace
	if grace <= 0 {
		grace = DefaultIdleGrace
	}

	ws := &Workspace{
		ID:        ids.Workspace(absPath),
		Path:      absPath,
		Graph:     g,
		Runs:      runs,
		Bus:       bus,
		engine:    scheduler.NewEngine(g, runs, bus),
		queue:     make(chan *scheduler.Mutation, capacity),
		idleGrace: grace,
		stopped:   make(chan struct{}),
	}
	return ws, nil
}

// OnIdle registers the callback invoked once the workspace's idle grace
// period elapses with zero clients and no active runs. Typically wired by
// the workspace registry to remove the workspace and release resources.
func (w *Workspace) OnIdle(fn func(id string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onIdle = fn
}

// Start launches the single-consumer graph worker goroutine.
func (w *Workspace) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop cancels the worker goroutine and waits for it to exit.
func (w *Workspace) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-w.stopped
	w.Bus.Close()
}

func (w *Workspace) run(ctx context.Context) {
	defer close(w.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-w.queue:
			w.process(ctx, m)
			if len(w.queue) == 0 {
				w.engine.Sweep(ctx)
			}
		}
	}
}

func (w *Workspace) process(ctx context.Context, m *scheduler.Mutation) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("workspace %s: dropped %s mutation after panic: %v", w.ID, m.Kind, r)
			m.Done(scheduler.Result{Err: errors.Internal(fmt.Sprintf("mutation handler panicked: %v", r), nil)})
		}
	}()

	w.mu.Lock()
	suspended := w.suspended
	w.mu.Unlock()

	if suspended {
		m.Done(scheduler.Result{Err: errors.Internal("workspace suspended pending storage acknowledgement", nil)})
		return
	}

	var res scheduler.Result
	if m.Kind == kindRunCreate {
		err := w.createRun(ctx, m.RunID, RunRequest{Nodes: m.RunNodes, Wrapper: m.Wrapper})
		res = scheduler.Result{RunID: m.RunID, Err: err}
	} else {
		res = w.engine.Apply(ctx, m)
	}

	if res.Err == nil {
		if err := w.persist(ctx); err != nil {
			res.Err = err
		}
	}
	m.Done(res)
}

// persist saves the graph, retrying once on failure before suspending
// further mutations and emitting GRAPH_REJECTED (§7 storage error policy).
func (w *Workspace) persist(ctx context.Context) error {
	err := storage.Save(w.Graph, w.Path)
	if err == nil {
		return nil
	}
	err = storage.Save(w.Graph, w.Path)
	if err == nil {
		return nil
	}

	w.mu.Lock()
	w.suspended = true
	w.mu.Unlock()
	w.Bus.Publish(ctx, eventbus.KindGraphRejected, "", "", map[string]string{"error": "storage: " + err.Error()})
	return err
}

// Acknowledge clears a storage-suspension latch, resuming mutation
// processing. No HTTP route calls it, so a suspended workspace keeps
// rejecting mutations until it is torn down.
func (w *Workspace) Acknowledge() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.suspended = false
}

// Enqueue submits a mutation and blocks until its apply-latch resolves or
// ctx is done, whichever comes first.
func (w *Workspace) Enqueue(ctx context.Context, m *scheduler.Mutation) (scheduler.Result, error) {
	select {
	case w.queue <- m:
	case <-ctx.Done():
		return scheduler.Result{}, ctx.Err()
	}

	select {
	case res := <-m.Result:
		return res, nil
	case <-ctx.Done():
		return scheduler.Result{}, ctx.Err()
	}
}

// RunRequest is the /run endpoint's input after the HTTP layer has parsed
// it: an optional explicit node selection and optional wrapper override.
type RunRequest struct {
	Nodes   []string
	Wrapper string
}

// kindRunCreate is a workspace-local mutation kind (not part of the
// scheduler's tagged sum) that the worker special-cases to run the §4.4
// selection algorithm on the single worker goroutine, alongside every
// other mutation.
const kindRunCreate = scheduler.Kind("run_create")

// createRun executes the §4.4 run-controller selection against the
// current graph, registers the run, and applies the root transitions
// directly through the engine. It
// must only run on the worker goroutine.
func (w *Workspace) createRun(ctx context.Context, runID string, req RunRequest) error {
	wrapper := req.Wrapper
	if wrapper == "" {
		wrapper = w.Graph.Wrapper
	}
	allowed := runctl.Select(w.Graph, req.Nodes)
	_, roots, err := w.Runs.Create(w.Graph, runID, allowed, wrapper)
	if err != nil {
		w.Bus.Publish(ctx, eventbus.KindRunRejected, runID, "", map[string]string{"error": err.Error()})
		return err
	}
	for _, root := range roots {
		res := w.engine.Apply(ctx, scheduler.NewEditNodeStatus("run-controller", root, string(graphmodel.NodeRun), runID))
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// Run enqueues run creation as a first-class queue operation so selection
// and root transitions are serialized with every other mutation.
func (w *Workspace) Run(ctx context.Context, runID string, req RunRequest) (*runctl.Run, error) {
	m := &scheduler.Mutation{
		Kind:     kindRunCreate,
		Origin:   "http",
		RunID:    runID,
		RunNodes: req.Nodes,
		Wrapper:  req.Wrapper,
		Result:   make(chan scheduler.Result, 1),
	}
	res, err := w.Enqueue(ctx, m)
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		return nil, res.Err
	}
	run, _ := w.Runs.Get(runID)
	return run, nil
}

// Cancel cancels runID: every node it owns reverts to idle and the run is
// retired.
func (w *Workspace) Cancel(ctx context.Context, runID string) {
	w.engine.Cancel(ctx, runID)
}

// Connect registers a new client, cancelling any pending idle teardown.
func (w *Workspace) Connect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clientCount++
	if w.idleTimer != nil {
		w.idleTimer.Stop()
		w.idleTimer = nil
	}
}

// Disconnect removes a client and, if the workspace is now idle (no
// clients, no active runs), schedules teardown after the idle grace
// period.
func (w *Workspace) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.clientCount > 0 {
		w.clientCount--
	}
	if w.clientCount > 0 {
		return
	}
	if len(w.Runs.ActiveRuns()) > 0 {
		return
	}
	if w.onIdle == nil {
		return
	}
	id := w.ID
	w.idleTimer = time.AfterFunc(w.idleGrace, func() {
		w.onIdle(id)
	})
}

// ClientCount returns the number of connected clients.
func (w *Workspace) ClientCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clientCount
}
