package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-realtime/internal/events"
	"marketplace-realtime/internal/models"
)

func TestConnectSendsSnapshotAndAnnouncesOnline(t *testing.T) {
	h := newHarness(t)
	h.chat(t, "alice", "bob")

	bob := h.connect(t, "bob", "b1")
	h.coord.Wait()
	alice := h.connect(t, "alice", "a1")
	h.coord.Wait()

	frames := alice.all(t)
	require.NotEmpty(t, frames)
	assert.Equal(t, "presenceSnapshot", frames[0].Type, "snapshot is the first frame")
	snapshots := ofType[events.PresenceSnapshotPayload](t, alice, "presenceSnapshot")
	require.Len(t, snapshots, 1)
	assert.Equal(t, []string{"bob"}, snapshots[0].OnlineMembers)

	updates := ofType[events.PresenceUpdatePayload](t, bob, "presenceUpdate")
	require.Len(t, updates, 1)
	assert.Equal(t, "alice", updates[0].UserID)
	assert.Equal(t, models.PresenceOnline, updates[0].Status)
}

func TestSecondChannelDoesNotReannounce(t *testing.T) {
	h := newHarness(t)
	h.chat(t, "alice", "bob")
	bob := h.connect(t, "bob", "b1")
	h.connect(t, "alice", "a1")
	h.coord.Wait()
	bob.reset()

	second := h.connect(t, "alice", "a2")
	h.coord.Wait()

	assert.Empty(t, ofType[events.PresenceUpdatePayload](t, bob, "presenceUpdate"))
	snapshots := ofType[events.PresenceSnapshotPayload](t, second, "presenceSnapshot")
	require.Len(t, snapshots, 1)
	assert.Equal(t, []string{"bob"}, snapshots[0].OnlineMembers)
}

func TestOfflineOnlyAfterLastChannel(t *testing.T) {
	h := newHarness(t)
	h.chat(t, "alice", "bob")
	bob := h.connect(t, "bob", "b1")
	h.connect(t, "alice", "a1")
	h.connect(t, "alice", "a2")
	h.coord.Wait()
	bob.reset()

	h.coord.Disconnect(context.Background(), "a1")
	h.coord.Wait()
	assert.True(t, h.coord.registry.IsOnline("alice"))
	assert.Empty(t, ofType[events.PresenceUpdatePayload](t, bob, "presenceUpdate"))

	h.coord.Disconnect(context.Background(), "a2")
	h.coord.Wait()
	assert.False(t, h.coord.registry.IsOnline("alice"))
	updates := ofType[events.PresenceUpdatePayload](t, bob, "presenceUpdate")
	require.Len(t, updates, 1)
	assert.Equal(t, models.PresenceOffline, updates[0].Status)

	view, err := h.coord.Presence(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PresenceOffline, view.Status)
	assert.Equal(t, 0, view.Channels)
	require.NotNil(t, view.LastSeen)
	assert.Empty(t, view.Sessions)
}

func TestDisconnectUnknownChannelIsNoop(t *testing.T) {
	h := newHarness(t)
	h.coord.Disconnect(context.Background(), "missing")
	assert.Equal(t, 0, h.coord.registry.OnlineCount())
}

func TestStaleTransitionIsDropped(t *testing.T) {
	h := newHarness(t)
	h.chat(t, "alice", "bob")
	bob := h.connect(t, "bob", "b1")
	bob.reset()

	// alice is not connected, so an online transition is no longer true.
	h.coord.presence.notify(context.Background(), "bob", "alice", models.PresenceOnline)
	assert.Empty(t, bob.all(t))
}

func TestProbeRetriesUntilTargetSubscribes(t *testing.T) {
	h := newHarnessWith(t, nil, []time.Duration{20 * time.Millisecond, 60 * time.Millisecond, 200 * time.Millisecond})
	h.chat(t, "alice", "bob")
	h.connect(t, "alice", "a1")

	h.coord.presence.broadcast(context.Background(), "alice", models.PresenceOnline, []string{"bob"})
	time.Sleep(10 * time.Millisecond)
	bob := h.connect(t, "bob", "b1")
	h.coord.Wait()

	var fromAlice int
	for _, u := range ofType[events.PresenceUpdatePayload](t, bob, "presenceUpdate") {
		if u.UserID == "alice" && u.Status == models.PresenceOnline {
			fromAlice++
		}
	}
	assert.GreaterOrEqual(t, fromAlice, 1)
}

func TestSetStatusBroadcastsToCoMembers(t *testing.T) {
	h := newHarness(t)
	h.chat(t, "alice", "bob")
	bob := h.connect(t, "bob", "b1")
	alice := h.connect(t, "alice", "a1")
	h.coord.Wait()
	bob.reset()
	alice.reset()

	require.NoError(t, h.coord.SetStatus(context.Background(), "alice", models.PresenceAway))
	h.coord.Wait()

	updates := ofType[events.PresenceUpdatePayload](t, bob, "presenceUpdate")
	require.Len(t, updates, 1)
	assert.Equal(t, models.PresenceAway, updates[0].Status)
	assert.Len(t, ofType[events.PresenceUpdatePayload](t, alice, "presenceUpdate"), 1, "own tabs see the change")

	view, err := h.coord.Presence(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PresenceAway, view.Status)
	assert.Equal(t, 1, view.Channels)

	assert.ErrorIs(t, h.coord.SetStatus(context.Background(), "alice", models.PresenceOffline), ErrValidation)
	assert.ErrorIs(t, h.coord.SetStatus(context.Background(), "carol", models.PresenceBusy), ErrValidation)
}

func TestConnectRejectsDuplicateChannel(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "alice", "a1")

	err := h.coord.Connect(context.Background(), sessionFor("mallory", "a1", &fakeSink{}))
	assert.ErrorIs(t, err, ErrValidation)
	owner, _ := h.coord.registry.UserFor("a1")
	assert.Equal(t, "alice", owner)
}
