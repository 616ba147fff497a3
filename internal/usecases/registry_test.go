package usecases

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/practice-sem-2/chat-service/internal/broadcast"
	"github.com/practice-sem-2/chat-service/internal/models"
	storage "github.com/practice-sem-2/chat-service/internal/storages"
	"github.com/sirupsen/logrus"
)

// memDB is an in-memory stand-in for the postgres stores. Atomic holds the
// lock for the whole callback, so transactions are serialized.
type memDB struct {
	mu       sync.Mutex
	users    map[string]models.User
	chats    map[string]models.Chat
	members  map[string][]string
	messages []models.Message
	seq      int64

	previewsDown bool
}

type memRegistry struct {
	db   *memDB
	inTx bool
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		db: &memDB{
			users:   make(map[string]models.User),
			chats:   make(map[string]models.Chat),
			members: make(map[string][]string),
		},
	}
}

func (r *memRegistry) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.db.mu.Lock()
	return r.db.mu.Unlock
}

func (r *memRegistry) Atomic(_ context.Context, fn storage.AtomicFunc) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return fn(&memRegistry{db: r.db, inTx: true})
}

func (r *memRegistry) GetUsersStore() storage.UsersStore       { return r }
func (r *memRegistry) GetChatsStore() storage.ChatsStore       { return r }
func (r *memRegistry) GetMessagesStore() storage.MessagesStore { return r }

func (r *memRegistry) CreateUser(_ context.Context, user *models.User) error {
	defer r.lock()()
	for _, u := range r.db.users {
		if u.ExternalAuthID == user.ExternalAuthID {
			return storage.ErrUserAlreadyExists
		}
		if u.Email == user.Email {
			return storage.ErrEmailTaken
		}
	}
	r.db.users[user.UserID] = *user
	return nil
}

func (r *memRegistry) GetUserByID(_ context.Context, userId string) (*models.User, error) {
	defer r.lock()()
	u, ok := r.db.users[userId]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return &u, nil
}

func (r *memRegistry) GetUserByExternalID(_ context.Context, externalId string) (*models.User, error) {
	defer r.lock()()
	for _, u := range r.db.users {
		if u.ExternalAuthID == externalId {
			return &u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (r *memRegistry) DeleteUserByExternalID(_ context.Context, externalId string) error {
	defer r.lock()()
	for id, u := range r.db.users {
		if u.ExternalAuthID == externalId {
			delete(r.db.users, id)
			return nil
		}
	}
	return storage.ErrUserNotFound
}

func (r *memRegistry) SearchUsers(_ context.Context, query string, limit uint64) ([]models.User, error) {
	defer r.lock()()
	query = strings.ToLower(query)
	found := make([]models.User, 0)
	for _, u := range r.db.users {
		if strings.Contains(strings.ToLower(u.Name), query) || strings.Contains(u.Email, query) {
			found = append(found, u)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	if uint64(len(found)) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (r *memRegistry) GetUserPreviews(_ context.Context, ids []string) ([]models.UserPreview, error) {
	defer r.lock()()
	if r.db.previewsDown {
		return nil, errors.New("users table is unavailable")
	}
	previews := make([]models.UserPreview, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.db.users[id]; ok {
			previews = append(previews, u.Preview())
		}
	}
	return previews, nil
}

func (r *memRegistry) CreateChat(_ context.Context, chat *models.Chat) error {
	defer r.lock()()
	if _, ok := r.db.chats[chat.ChatID]; ok {
		return storage.ErrChatAlreadyExists
	}
	if chat.PairKey != nil {
		for _, c := range r.db.chats {
			if c.PairKey != nil && *c.PairKey == *chat.PairKey {
				return storage.ErrChatAlreadyExists
			}
		}
	}
	r.db.chats[chat.ChatID] = *chat
	return nil
}

func (r *memRegistry) AddChatMembers(_ context.Context, chatId string, members []string) error {
	defer r.lock()()
	if len(members) == 0 {
		return storage.ErrEmptyMembers
	}
	if _, ok := r.db.chats[chatId]; !ok {
		return storage.ErrChatNotFound
	}
	r.db.members[chatId] = append(r.db.members[chatId], members...)
	return nil
}

func (r *memRegistry) withMembersLocked(c models.Chat) *models.ChatWithMembers {
	members := make([]models.ChatMember, 0, len(r.db.members[c.ChatID]))
	for _, id := range r.db.members[c.ChatID] {
		members = append(members, models.ChatMember{UserID: id})
	}
	return &models.ChatWithMembers{Chat: c, Members: members}
}

func (r *memRegistry) GetChat(_ context.Context, chatId string) (*models.Chat, error) {
	defer r.lock()()
	c, ok := r.db.chats[chatId]
	if !ok {
		return nil, storage.ErrChatNotFound
	}
	return &c, nil
}

func (r *memRegistry) GetChatForUpdate(ctx context.Context, chatId string) (*models.Chat, error) {
	return r.GetChat(ctx, chatId)
}

func (r *memRegistry) GetChatWithMembers(_ context.Context, chatId string) (*models.ChatWithMembers, error) {
	defer r.lock()()
	c, ok := r.db.chats[chatId]
	if !ok {
		return nil, storage.ErrChatNotFound
	}
	return r.withMembersLocked(c), nil
}

func (r *memRegistry) FindChatByPairKey(_ context.Context, pairKey string) (*models.ChatWithMembers, error) {
	defer r.lock()()
	for _, c := range r.db.chats {
		if c.PairKey != nil && *c.PairKey == pairKey {
			return r.withMembersLocked(c), nil
		}
	}
	return nil, storage.ErrChatNotFound
}

func (r *memRegistry) UserIsMember(_ context.Context, chatId string, userId string) (bool, error) {
	defer r.lock()()
	if _, ok := r.db.chats[chatId]; !ok {
		return false, storage.ErrChatNotFound
	}
	for _, id := range r.db.members[chatId] {
		if id == userId {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRegistry) GetUserChats(_ context.Context, userId string, isGroup bool) ([]models.ChatWithMembers, error) {
	defer r.lock()()
	chats := make([]models.ChatWithMembers, 0)
	for chatId, members := range r.db.members {
		c := r.db.chats[chatId]
		if c.IsGroup != isGroup {
			continue
		}
		for _, id := range members {
			if id == userId {
				chats = append(chats, *r.withMembersLocked(c))
				break
			}
		}
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].UpdatedAt.After(chats[j].UpdatedAt) })
	return chats, nil
}

func (r *memRegistry) SetLatestMessage(_ context.Context, chatId string, messageId string, at time.Time) error {
	defer r.lock()()
	c, ok := r.db.chats[chatId]
	if !ok {
		return storage.ErrChatNotFound
	}
	c.LatestMessageID = &messageId
	if at.After(c.UpdatedAt) {
		c.UpdatedAt = at
	}
	r.db.chats[chatId] = c
	return nil
}

func copyMessage(m models.Message) models.Message {
	m.ReadBy = append(pq.StringArray(nil), m.ReadBy...)
	return m
}

func (r *memRegistry) PutMessage(_ context.Context, message *models.Message) error {
	defer r.lock()()
	if _, ok := r.db.chats[message.ChatID]; !ok {
		return storage.ErrChatNotFound
	}
	r.db.seq++
	message.Seq = r.db.seq
	r.db.messages = append(r.db.messages, copyMessage(*message))
	return nil
}

func (r *memRegistry) GetMessage(_ context.Context, messageId string) (*models.Message, error) {
	defer r.lock()()
	for _, m := range r.db.messages {
		if m.MessageID == messageId {
			m = copyMessage(m)
			return &m, nil
		}
	}
	return nil, storage.ErrMessageNotFound
}

func (r *memRegistry) GetMessagesById(_ context.Context, ids []string) ([]models.Message, error) {
	defer r.lock()()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	found := make([]models.Message, 0, len(ids))
	for _, m := range r.db.messages {
		if wanted[m.MessageID] {
			found = append(found, copyMessage(m))
		}
	}
	return found, nil
}

func (r *memRegistry) chatMessagesLocked(chatId string) []models.Message {
	found := make([]models.Message, 0)
	for _, m := range r.db.messages {
		if m.ChatID == chatId {
			found = append(found, copyMessage(m))
		}
	}
	return found
}

func (r *memRegistry) GetLatestMessages(_ context.Context, chatId string, offset, limit uint64) ([]models.Message, error) {
	defer r.lock()()
	all := r.chatMessagesLocked(chatId)
	sort.Slice(all, func(i, j int) bool { return all[i].Seq > all[j].Seq })
	if offset >= uint64(len(all)) {
		return make([]models.Message, 0), nil
	}
	end := offset + limit
	if end > uint64(len(all)) {
		end = uint64(len(all))
	}
	return all[offset:end], nil
}

func (r *memRegistry) GetChatMessages(_ context.Context, chatId string) ([]models.Message, error) {
	defer r.lock()()
	return r.chatMessagesLocked(chatId), nil
}

func (r *memRegistry) CountMessages(_ context.Context, chatId string) (uint64, error) {
	defer r.lock()()
	return uint64(len(r.chatMessagesLocked(chatId))), nil
}

func (r *memRegistry) MarkRead(_ context.Context, chatId string, readerId string) (int64, error) {
	defer r.lock()()
	var updated int64
	for i, m := range r.db.messages {
		if m.ChatID != chatId || m.IsReadBy(readerId) {
			continue
		}
		m = copyMessage(m)
		m.ReadBy = append(m.ReadBy, readerId)
		r.db.messages[i] = m
		updated++
	}
	return updated, nil
}

// seedUser stores a user directly, bypassing the usecase.
func (r *memRegistry) seedUser(id, name string) models.User {
	now := time.Now().UTC()
	u := models.User{
		UserID:         id,
		ExternalAuthID: "ext-" + id,
		Name:           name,
		Email:          strings.ToLower(name) + "@example.com",
		Dob:            now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.db.mu.Lock()
	r.db.users[id] = u
	r.db.mu.Unlock()
	return u
}

type publishedEvent struct {
	Topic   string
	Event   string
	Payload interface{}
}

// recordingPublisher keeps every event it was asked to publish.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, topic, event string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Event: event, Payload: payload})
	return nil
}

func (p *recordingPublisher) Events(event string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	found := make([]publishedEvent, 0)
	for _, e := range p.events {
		if e.Event == event {
			found = append(found, e)
		}
	}
	return found
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestBroadcaster(p broadcast.Publisher) *broadcast.Broadcaster {
	return broadcast.NewBroadcaster(p, newTestLogger())
}
