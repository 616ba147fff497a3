package broadcast

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/practice-sem-2/chat-service/internal/models"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Subscriber is one live client session attached to the hub.
type Subscriber interface {
	ID() string
	UserID() string
	// Send must not block.
	Send(payload []byte) error
	Close(code int, reason string)
}

// Profiled is implemented by subscribers that carry the user info shown to
// other members of a presence topic.
type Profiled interface {
	UserInfo() *models.PresenceUserInfo
}

// Frame is what subscribers receive for every event.
type Frame struct {
	Topic string          `json:"topic"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MembershipListener is notified when a user joins (first session) or leaves
// (last session) a presence topic. Listeners run under the hub lock and must
// not call back into the hub.
type MembershipListener func(topic string, userId string, joined bool)

// Hub is the in-process topic pub/sub. Publishing to one topic is serialized,
// so every subscriber observes the same event order per topic. Publish never
// waits for slow subscribers.
type Hub struct {
	mu            sync.Mutex
	topics        map[string]map[string]Subscriber // topic -> sessionID -> subscriber
	sessionTopics map[string]map[string]struct{}   // sessionID -> topics
	members       map[string]map[string]int        // presence topic -> userID -> sessions
	profiles      map[string]map[string]*models.PresenceUserInfo
	listeners     map[string][]MembershipListener
	log           logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		topics:        make(map[string]map[string]Subscriber),
		sessionTopics: make(map[string]map[string]struct{}),
		members:       make(map[string]map[string]int),
		profiles:      make(map[string]map[string]*models.PresenceUserInfo),
		listeners:     make(map[string][]MembershipListener),
		log:           log,
	}
}

// EncodeFrame renders one event the way subscribers receive it.
func EncodeFrame(topic, event string, payload interface{}) ([]byte, error) {
	frame := Frame{Topic: topic, Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		frame.Data = data
	}
	return json.Marshal(&frame)
}

// Publish fans the event out to the current subscribers of topic. A topic
// without subscribers drops the event.
func (h *Hub) Publish(ctx context.Context, topic, event string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bytes, err := EncodeFrame(topic, event, payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendLocked(topic, bytes, "")
	return nil
}

func (h *Hub) sendLocked(topic string, payload []byte, excludeUserId string) int {
	delivered := 0
	for _, sub := range h.topics[topic] {
		if excludeUserId != "" && sub.UserID() == excludeUserId {
			continue
		}
		if err := sub.Send(payload); err != nil {
			h.log.
				WithError(err).
				WithFields(logrus.Fields{"topic": topic, "session_id": sub.ID()}).
				Debug("dropping event for session")
			continue
		}
		delivered++
	}
	return delivered
}

// Subscribe attaches sub to topic and sends it subscription-succeeded. On
// presence topics the payload lists the online members and the other
// subscribers learn about a newly joined user.
func (h *Hub) Subscribe(sub Subscriber, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.topics[topic]
	if subs == nil {
		subs = make(map[string]Subscriber)
		h.topics[topic] = subs
	}
	if _, ok := subs[sub.ID()]; ok {
		return nil
	}
	subs[sub.ID()] = sub

	joined := h.sessionTopics[sub.ID()]
	if joined == nil {
		joined = make(map[string]struct{})
		h.sessionTopics[sub.ID()] = joined
	}
	joined[topic] = struct{}{}

	var payload interface{}
	if IsPresenceTopic(topic) {
		members := h.members[topic]
		if members == nil {
			members = make(map[string]int)
			h.members[topic] = members
		}
		members[sub.UserID()]++
		if members[sub.UserID()] == 1 {
			h.setProfileLocked(topic, sub)
			h.notifyMembershipLocked(topic, h.presenceMemberLocked(topic, sub.UserID()), true)
		}
		payload = h.presenceMembersLocked(topic)
	}

	bytes, err := EncodeFrame(topic, EventSubscriptionSucceeded, payload)
	if err != nil {
		return err
	}
	return sub.Send(bytes)
}

// Unsubscribe detaches sub from topic. It is a no-op for unknown pairs.
func (h *Hub) Unsubscribe(sub Subscriber, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(sub, topic)
}

// Detach removes sub from every topic it joined.
func (h *Hub) Detach(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range h.sessionTopics[sub.ID()] {
		h.unsubscribeLocked(sub, topic)
	}
	delete(h.sessionTopics, sub.ID())
}

func (h *Hub) unsubscribeLocked(sub Subscriber, topic string) {
	subs := h.topics[topic]
	if _, ok := subs[sub.ID()]; !ok {
		return
	}
	delete(subs, sub.ID())
	if len(subs) == 0 {
		delete(h.topics, topic)
	}

	if joined, ok := h.sessionTopics[sub.ID()]; ok {
		delete(joined, topic)
		if len(joined) == 0 {
			delete(h.sessionTopics, sub.ID())
		}
	}

	if !IsPresenceTopic(topic) {
		return
	}
	members := h.members[topic]
	members[sub.UserID()]--
	if members[sub.UserID()] > 0 {
		return
	}
	member := h.presenceMemberLocked(topic, sub.UserID())
	delete(members, sub.UserID())
	delete(h.profiles[topic], sub.UserID())
	if len(members) == 0 {
		delete(h.members, topic)
		delete(h.profiles, topic)
	}
	h.notifyMembershipLocked(topic, member, false)
}

func (h *Hub) setProfileLocked(topic string, sub Subscriber) {
	p, ok := sub.(Profiled)
	if !ok || p.UserInfo() == nil {
		return
	}
	profiles := h.profiles[topic]
	if profiles == nil {
		profiles = make(map[string]*models.PresenceUserInfo)
		h.profiles[topic] = profiles
	}
	profiles[sub.UserID()] = p.UserInfo()
}

func (h *Hub) notifyMembershipLocked(topic string, member models.PresenceMember, joined bool) {
	event := EventMemberRemoved
	if joined {
		event = EventMemberAdded
	}
	bytes, err := EncodeFrame(topic, event, member)
	if err == nil {
		h.sendLocked(topic, bytes, member.UserID)
	}

	for _, l := range h.listeners[topic] {
		l(topic, member.UserID, joined)
	}
}

func (h *Hub) presenceMemberLocked(topic, userId string) models.PresenceMember {
	return models.PresenceMember{UserID: userId, UserInfo: h.profiles[topic][userId]}
}

func (h *Hub) membersLocked(topic string) []string {
	ids := lo.Keys(h.members[topic])
	sort.Strings(ids)
	return ids
}

func (h *Hub) presenceMembersLocked(topic string) []models.PresenceMember {
	return lo.Map(h.membersLocked(topic), func(id string, _ int) models.PresenceMember {
		return h.presenceMemberLocked(topic, id)
	})
}

// Members returns the users currently present on a presence topic.
func (h *Hub) Members(topic string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.membersLocked(topic)
}

// SubscriberCount reports how many sessions are subscribed to topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// WatchMembership registers l for topic. l first receives a join for every
// member already present, so no change is missed in between.
func (h *Hub) WatchMembership(topic string, l MembershipListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range h.membersLocked(topic) {
		l(topic, id, true)
	}
	h.listeners[topic] = append(h.listeners[topic], l)
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make(map[string]Subscriber)
	for _, subs := range h.topics {
		for id, sub := range subs {
			sessions[id] = sub
		}
	}
	for topic, members := range h.members {
		for userId := range members {
			for _, l := range h.listeners[topic] {
				l(topic, userId, false)
			}
		}
	}
	h.topics = make(map[string]map[string]Subscriber)
	h.sessionTopics = make(map[string]map[string]struct{})
	h.members = make(map[string]map[string]int)
	h.profiles = make(map[string]map[string]*models.PresenceUserInfo)
	h.mu.Unlock()

	for _, sub := range sessions {
		sub.Close(1001, "server shutdown")
	}
}
