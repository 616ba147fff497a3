package broadcast

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// PresenceRegistry mirrors the membership of one presence topic. It holds
// no liveness logic of its own: a user is online while at least one of
// their sessions stays subscribed to the topic.
type PresenceRegistry struct {
	mu     sync.RWMutex
	topic  string
	online map[string]struct{}
}

func NewPresenceRegistry(hub *Hub, topic string) *PresenceRegistry {
	r := &PresenceRegistry{
		topic:  topic,
		online: make(map[string]struct{}),
	}
	hub.WatchMembership(topic, r.apply)
	return r
}

func (r *PresenceRegistry) apply(_ string, userId string, joined bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if joined {
		r.online[userId] = struct{}{}
	} else {
		delete(r.online, userId)
	}
}

func (r *PresenceRegistry) Topic() string {
	return r.topic
}

// OnlineUserIDs returns the online users sorted by id.
func (r *PresenceRegistry) OnlineUserIDs() []string {
	r.mu.RLock()
	ids := lo.Keys(r.online)
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *PresenceRegistry) IsOnline(userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.online[userId]
	return ok
}
