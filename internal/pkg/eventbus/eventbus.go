// Package eventbus is the synchronous, in-process publish/subscribe hub that
// mediates between a workspace's graph worker and its transports. Every
// event is sequence-numbered per workspace and appended to a rotating
// JSON-lines log, so a workspace's history is both replayable and ordered.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Kind enumerates the domain event kinds the worker may emit.
type Kind string

const (
	KindNodeReady     Kind = "NODE_READY"
	KindNodeStarted   Kind = "NODE_STARTED"
	KindNodeFinished  Kind = "NODE_FINISHED"
	KindNodeFailed    Kind = "NODE_FAILED"
	KindRunComplete   Kind = "RUN_COMPLETE"
	KindGraphUpdated  Kind = "GRAPH_UPDATED"
	KindGraphRejected Kind = "GRAPH_REJECTED"
	KindRunRejected   Kind = "RUN_REJECTED"
)

// Event is one domain event, already sequence-numbered for its workspace.
type Event struct {
	WorkspaceID string          `json:"workspace_id"`
	Seq         uint64          `json:"seq"`
	Timestamp   time.Time       `json:"ts"`
	Kind        Kind            `json:"kind"`
	RunID       string          `json:"run_id,omitempty"`
	NodeID      string          `json:"node_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Handler receives published events. A handler panic is recovered and
// logged; it never propagates back into the worker goroutine that
// published the event.
type Handler func(ctx context.Context, event Event)

// Bus is a per-workspace synchronous event bus with an append-only log.
type Bus struct {
	workspaceID string

	mu       sync.Mutex
	handlers []Handler
	seq      uint64

	log *rotatingLog
}

// New creates a Bus for the given workspace. If logDir is empty the bus
// keeps no on-disk log (used in tests).
func New(workspaceID, logDir string, maxBytes int64) (*Bus, error) {
	b := &Bus{workspaceID: workspaceID}

	if logDir != "" {
		rl, err := newRotatingLog(logDir, maxBytes)
		if err != nil {
			return nil, fmt.Errorf("open event log: %w", err)
		}
		b.log = rl
	}

	return b, nil
}

// Subscribe registers a handler invoked for every subsequently published
// event, in publish order.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish assigns the next sequence number, appends the event to the log,
// and invokes every handler synchronously in subscription order. Publish
// must only ever be called from the owning workspace's single worker
// goroutine; that is what gives a workspace's events their total order.
func (b *Bus) Publish(ctx context.Context, kind Kind, runID, nodeID string, payload interface{}) Event {
	b.mu.Lock()
	b.seq++
	evt := Event{
		WorkspaceID: b.workspaceID,
		Seq:         b.seq,
		Timestamp:   time.Now(),
		Kind:        kind,
		RunID:       runID,
		NodeID:      nodeID,
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			evt.Payload = raw
		}
	}
	handlers := append([]Handler(nil), b.handlers...)
	rl := b.log
	b.mu.Unlock()

	if rl != nil {
		if err := rl.Append(evt); err != nil {
			log.Printf("eventbus: workspace %s: failed to append event seq=%d: %v", b.workspaceID, evt.Seq, err)
		}
	}

	for _, h := range handlers {
		safeInvoke(ctx, h, evt)
	}

	return evt
}

func safeInvoke(ctx context.Context, h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("eventbus: handler panicked on event kind=%s seq=%d: %v", evt.Kind, evt.Seq, r)
		}
	}()
	h(ctx, evt)
}

// Close releases the underlying log file, if any.
func (b *Bus) Close() error {
	if b.log == nil {
		return nil
	}
	return b.log.Close()
}

// rotatingLog is an append-only JSON-lines file rotated before an append
// would take it past maxBytes. Rotated segments are renamed with a numeric suffix so older
// events remain readable after rotation.
type rotatingLog struct {
	mu       sync.Mutex
	dir      string
	path     string
	maxBytes int64
	file     *os.File
	size     int64
}

func newRotatingLog(dir string, maxBytes int64) (*rotatingLog, error) {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "events.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &rotatingLog{dir: dir, path: path, maxBytes: maxBytes, file: f, size: info.Size()}, nil
}

func (rl *rotatingLog) Append(evt Event) error {
	line, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.size+int64(len(line)) > rl.maxBytes {
		if err := rl.rotateLocked(); err != nil {
			return err
		}
	}

	n, err := rl.file.Write(line)
	rl.size += int64(n)
	return err
}

func (rl *rotatingLog) rotateLocked() error {
	if err := rl.file.Close(); err != nil {
		return err
	}

	for i := 1; ; i++ {
		rotated := fmt.Sprintf("%s.%d", rl.path, i)
		if _, err := os.Stat(rotated); os.IsNotExist(err) {
			if err := os.Rename(rl.path, rotated); err != nil {
				return err
			}
			break
		}
	}

	f, err := os.OpenFile(rl.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	rl.file = f
	rl.size = 0
	return nil
}

func (rl *rotatingLog) Close() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.file.Close()
}
