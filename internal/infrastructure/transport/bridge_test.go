package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graflow/graflow/internal/infrastructure/transport"
	"github.com/graflow/graflow/internal/pkg/eventbus"
)

func TestBridge_TranslatesAndFansOutToLocalSubscribers(t *testing.T) {
	bus, err := eventbus.New("ws-1", "", 0)
	require.NoError(t, err)

	bridge := transport.NewBridge(nil)
	bridge.Attach("ws-1", bus)

	ch, cancel := bridge.Subscribe("ws-1")
	defer cancel()

	bus.Publish(context.Background(), eventbus.KindNodeReady, "r1", "n1", nil)

	select {
	case msg := <-ch:
		assert.Equal(t, transport.NodeReady, msg.Type)
		assert.Equal(t, "ws-1", msg.WorkspaceID)
	case <-time.After(time.Second):
		t.Fatal("expected a translated message")
	}
}

func TestBridge_UnrelatedWorkspaceDoesNotReceive(t *testing.T) {
	bus, err := eventbus.New("ws-1", "", 0)
	require.NoError(t, err)

	bridge := transport.NewBridge(nil)
	bridge.Attach("ws-1", bus)

	ch, cancel := bridge.Subscribe("ws-2")
	defer cancel()

	bus.Publish(context.Background(), eventbus.KindRunComplete, "r1", "", nil)

	select {
	case <-ch:
		t.Fatal("workspace ws-2 should not receive ws-1 events")
	case <-time.After(100 * time.Millisecond):
	}
}
