// Package transport is the §4.6 transport bridge: it subscribes to a
// workspace's event bus, maps domain events onto the four realtime
// message types clients actually see, and fans them out to every locally
// connected SSE client as well as to a per-workspace NATS subject so
// out-of-process listeners can also tail a workspace.
package transport

import (
	"context"
	"fmt"
	"sync"

	natsbridge "github.com/graflow/graflow/internal/infrastructure/messaging/nats"
	"github.com/graflow/graflow/internal/pkg/eventbus"
)

// MessageType is one of the four realtime message kinds clients receive.
type MessageType string

const (
	GraphUpdate  MessageType = "graph_update"
	NodeReady    MessageType = "node_ready"
	StatusChange MessageType = "status_change"
	RunComplete  MessageType = "run_complete"
)

// Message is a realtime message delivered to subscribed clients of one
// workspace.
type Message struct {
	Type        MessageType `json:"type"`
	WorkspaceID string      `json:"workspace_id"`
	Payload     interface{} `json:"payload"`
}

// Bridge fans domain events out to workspace-scoped channels. Publisher is
// optional: when nil, the bridge fans out only to local subscribers (the
// common case for a single-process deployment).
type Bridge struct {
	publisher *natsbridge.Publisher

	mu   sync.RWMutex
	subs map[string]map[chan Message]struct{}
}

// NewBridge creates a Bridge. publisher may be nil.
func NewBridge(publisher *natsbridge.Publisher) *Bridge {
	return &Bridge{
		publisher: publisher,
		subs:      make(map[string]map[chan Message]struct{}),
	}
}

// Subject returns the NATS subject a workspace's events are published
// under.
func Subject(workspaceID string) string {
	return fmt.Sprintf("graflow.workspace.%s", workspaceID)
}

// Attach subscribes the bridge to bus, translating every event into a
// realtime Message per the §4.6 mapping table. It should be called once
// per workspace, before the workspace's worker starts processing
// mutations, so no event is missed.
func (b *Bridge) Attach(workspaceID string, bus *eventbus.Bus) {
	bus.Subscribe(func(ctx context.Context, evt eventbus.Event) {
		msg, ok := translate(workspaceID, evt)
		if !ok {
			return
		}
		b.publish(ctx, workspaceID, msg)
	})
}

func translate(workspaceID string, evt eventbus.Event) (Message, bool) {
	switch evt.Kind {
	case eventbus.KindGraphUpdated:
		return Message{Type: GraphUpdate, WorkspaceID: workspaceID, Payload: nil}, true
	case eventbus.KindNodeReady:
		return Message{Type: NodeReady, WorkspaceID: workspaceID, Payload: map[string]interface{}{
			"node_id": evt.NodeID, "run_id": evt.RunID, "payload": evt.Payload,
		}}, true
	case eventbus.KindNodeStarted:
		return statusChange(workspaceID, evt, "running"), true
	case eventbus.KindNodeFinished:
		return statusChange(workspaceID, evt, "ran"), true
	case eventbus.KindNodeFailed:
		return statusChange(workspaceID, evt, "fail"), true
	case eventbus.KindRunComplete:
		return Message{Type: RunComplete, WorkspaceID: workspaceID, Payload: map[string]interface{}{
			"run_id": evt.RunID,
		}}, true
	default:
		return Message{}, false
	}
}

func statusChange(workspaceID string, evt eventbus.Event, status string) Message {
	return Message{Type: StatusChange, WorkspaceID: workspaceID, Payload: map[string]interface{}{
		"node_id": evt.NodeID, "status": status, "run_id": evt.RunID,
	}}
}

func (b *Bridge) publish(ctx context.Context, workspaceID string, msg Message) {
	b.mu.RLock()
	chans := make([]chan Message, 0, len(b.subs[workspaceID]))
	for ch := range b.subs[workspaceID] {
		chans = append(chans, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- msg:
		default:
			// A slow client drops messages rather than stalling the
			// worker goroutine that triggered this publish.
		}
	}

	if b.publisher != nil {
		_ = b.publisher.Publish(ctx, Subject(workspaceID), msg)
	}
}

// Subscribe registers a new local client channel for workspaceID. The
// returned cancel function must be called when the client disconnects.
func (b *Bridge) Subscribe(workspaceID string) (<-chan Message, func()) {
	ch := make(chan Message, 32)

	b.mu.Lock()
	if b.subs[workspaceID] == nil {
		b.subs[workspaceID] = make(map[chan Message]struct{})
	}
	b.subs[workspaceID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs[workspaceID], ch)
		if len(b.subs[workspaceID]) == 0 {
			delete(b.subs, workspaceID)
		}
		b.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}
