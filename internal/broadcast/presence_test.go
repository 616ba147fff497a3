package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceRegistry_TracksMembership(t *testing.T) {
	hub := NewHub(newTestLogger())
	early := newTestSubscriber("s0", "carol")
	require.NoError(t, hub.Subscribe(early, PresenceTopic))

	registry := NewPresenceRegistry(hub, PresenceTopic)
	assert.Equal(t, []string{"carol"}, registry.OnlineUserIDs(), "members present before the registry are picked up")

	alice := newTestSubscriber("s1", "alice")
	bob := newTestSubscriber("s2", "bob")
	require.NoError(t, hub.Subscribe(alice, PresenceTopic))
	require.NoError(t, hub.Subscribe(bob, PresenceTopic))
	assert.Equal(t, []string{"alice", "bob", "carol"}, registry.OnlineUserIDs())
	assert.True(t, registry.IsOnline("bob"))

	hub.Detach(bob)
	assert.False(t, registry.IsOnline("bob"))
	assert.Equal(t, []string{"alice", "carol"}, registry.OnlineUserIDs())
}

func TestPresenceRegistry_IgnoresOtherTopics(t *testing.T) {
	hub := NewHub(newTestLogger())
	registry := NewPresenceRegistry(hub, PresenceTopic)

	sub := newTestSubscriber("s1", "alice")
	require.NoError(t, hub.Subscribe(sub, ChatTopic("1")))
	require.NoError(t, hub.Subscribe(sub, "presence-other"))

	assert.Empty(t, registry.OnlineUserIDs())
	assert.Equal(t, PresenceTopic, registry.Topic())
}

func TestPresenceRegistry_ClearedOnHubClose(t *testing.T) {
	hub := NewHub(newTestLogger())
	registry := NewPresenceRegistry(hub, PresenceTopic)
	require.NoError(t, hub.Subscribe(newTestSubscriber("s1", "alice"), PresenceTopic))

	hub.Close()
	assert.Empty(t, registry.OnlineUserIDs())
}
