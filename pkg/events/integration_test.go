package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualpytest/pilot/test/util"
)

// The publisher and listener run against a real PostgreSQL here: one
// process publishes through the pooled connection, the sibling receives
// on its dedicated LISTEN connection.
func TestPublishDeliversAcrossConnections(t *testing.T) {
	db := util.SetupTestDatabase(t)
	connStr := util.BaseConnectionString(t)
	ctx := context.Background()

	treeCh := make(chan TreeChangedPayload, 1)
	sessionCh := make(chan SessionChangedPayload, 1)
	listener := NewListener(connStr, Handlers{
		OnTreeChanged:    func(p TreeChangedPayload) { treeCh <- p },
		OnSessionChanged: func(p SessionChangedPayload) { sessionCh <- p },
	})
	require.NoError(t, listener.Start(ctx))
	t.Cleanup(func() { listener.Stop(context.Background()) })

	pub := NewPublisher(db)
	require.NoError(t, pub.PublishTreeChanged(ctx, TreeChangedPayload{
		TeamID:    "team-a",
		Interface: "horizon_android_tv",
		Change:    TreeChangeNodeUpserted,
		ElementID: "n7",
	}))

	select {
	case got := <-treeCh:
		assert.Equal(t, "team-a", got.TeamID)
		assert.Equal(t, TreeChangeNodeUpserted, got.Change)
		assert.Equal(t, "n7", got.ElementID)
	case <-time.After(5 * time.Second):
		t.Fatal("tree notification not delivered")
	}

	require.NoError(t, pub.PublishSessionChanged(ctx, SessionChangedPayload{
		SessionID: "sess-1",
		DeviceID:  "dev-1",
		Change:    SessionTaken,
	}))
	select {
	case got := <-sessionCh:
		assert.Equal(t, "sess-1", got.SessionID)
		assert.Equal(t, SessionTaken, got.Change)
	case <-time.After(5 * time.Second):
		t.Fatal("session notification not delivered")
	}
}
