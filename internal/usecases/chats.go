package usecases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/practice-sem-2/chat-service/internal/models"
	storage "github.com/practice-sem-2/chat-service/internal/storages"
	"github.com/samber/lo"
)

type ChatsUsecase struct {
	registry storage.Registry
}

func NewChatsUsecase(r storage.Registry) *ChatsUsecase {
	return &ChatsUsecase{
		registry: r,
	}
}

// GetOrCreateChat returns the pairwise chat of userA and userB, creating it
// on first use. created reports whether this call created it.
//
// Two concurrent calls for the same pair both miss the lookup, but only one
// insert can win the unique pair key; the loser reads back the winner.
func (u *ChatsUsecase) GetOrCreateChat(ctx context.Context, userA, userB string) (chat *models.RichChat, created bool, err error) {
	if err = requireUUID("user_id", userA); err != nil {
		return nil, false, err
	}
	if err = requireUUID("other_user_id", userB); err != nil {
		return nil, false, err
	}
	if userA == userB {
		return nil, false, ErrSelfChat
	}

	users := u.registry.GetUsersStore()
	for _, id := range []string{userA, userB} {
		if _, err = users.GetUserByID(ctx, id); err != nil {
			return nil, false, wrapStoreError(err)
		}
	}

	pairKey := storage.PairKey(userA, userB)
	found, err := u.registry.GetChatsStore().FindChatByPairKey(ctx, pairKey)
	if err == nil {
		chat, err = u.resolveChat(ctx, found)
		return chat, false, err
	} else if !errors.Is(err, storage.ErrChatNotFound) {
		return nil, false, wrapStoreError(err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	newChat := &models.Chat{
		ChatID:    uuid.NewString(),
		IsGroup:   false,
		PairKey:   &pairKey,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = u.registry.Atomic(ctx, func(r storage.Registry) error {
		store := r.GetChatsStore()
		if err := store.CreateChat(ctx, newChat); err != nil {
			return err
		}
		return store.AddChatMembers(ctx, newChat.ChatID, []string{userA, userB})
	})

	if errors.Is(err, storage.ErrChatAlreadyExists) {
		found, err = u.registry.GetChatsStore().FindChatByPairKey(ctx, pairKey)
		if err != nil {
			return nil, false, wrapStoreError(err)
		}
		chat, err = u.resolveChat(ctx, found)
		return chat, false, err
	} else if err != nil {
		return nil, false, wrapStoreError(err)
	}

	found, err = u.registry.GetChatsStore().GetChatWithMembers(ctx, newChat.ChatID)
	if err != nil {
		return nil, false, wrapStoreError(err)
	}
	chat, err = u.resolveChat(ctx, found)
	return chat, err == nil, err
}

// ListChats returns the chats of userId, most recently active first, with
// participants and latest messages resolved.
func (u *ChatsUsecase) ListChats(ctx context.Context, userId string, isGroup bool) ([]models.RichChat, error) {
	if err := requireUUID("user_id", userId); err != nil {
		return nil, err
	}

	chats, err := u.registry.GetChatsStore().GetUserChats(ctx, userId, isGroup)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	rich, err := resolveChats(ctx, u.registry, chats)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return rich, nil
}

func (u *ChatsUsecase) GetChat(ctx context.Context, chatId string) (*models.RichChat, error) {
	if err := requireUUID("chat_id", chatId); err != nil {
		return nil, err
	}

	chat, err := u.registry.GetChatsStore().GetChatWithMembers(ctx, chatId)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return u.resolveChat(ctx, chat)
}

// EnsureMember fails unless userId participates in chatId.
func (u *ChatsUsecase) EnsureMember(ctx context.Context, chatId string, userId string) error {
	if err := requireUUID("chat_id", chatId); err != nil {
		return err
	}

	isMember, err := u.registry.GetChatsStore().UserIsMember(ctx, chatId, userId)
	if err != nil {
		return wrapStoreError(err)
	}
	if !isMember {
		return ErrUserIsNotAChatMember
	}
	return nil
}

func (u *ChatsUsecase) resolveChat(ctx context.Context, chat *models.ChatWithMembers) (*models.RichChat, error) {
	rich, err := resolveChats(ctx, u.registry, []models.ChatWithMembers{*chat})
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return &rich[0], nil
}

// resolveChats joins participants and latest messages (with their senders)
// onto chats, keeping the order of chats.
func resolveChats(ctx context.Context, r storage.Registry, chats []models.ChatWithMembers) ([]models.RichChat, error) {
	latestIds := lo.FilterMap(chats, func(c models.ChatWithMembers, _ int) (string, bool) {
		if c.LatestMessageID == nil {
			return "", false
		}
		return *c.LatestMessageID, true
	})

	latest, err := r.GetMessagesStore().GetMessagesById(ctx, latestIds)
	if err != nil {
		return nil, err
	}

	userIds := make([]string, 0, len(chats)*2+len(latest))
	for _, c := range chats {
		userIds = append(userIds, c.ParticipantIDs()...)
	}
	for _, m := range latest {
		userIds = append(userIds, m.SenderID)
	}

	users, err := previewsByID(ctx, r, userIds)
	if err != nil {
		return nil, err
	}

	latestById := lo.KeyBy(latest, func(m models.Message) string {
		return m.MessageID
	})

	result := make([]models.RichChat, len(chats))
	for i, c := range chats {
		participants := make([]models.UserPreview, 0, len(c.Members))
		for _, m := range c.Members {
			if p, ok := users[m.UserID]; ok {
				participants = append(participants, p)
			} else {
				participants = append(participants, models.UserPreview{UserID: m.UserID})
			}
		}

		result[i] = models.RichChat{
			Chat:         c.Chat,
			Participants: participants,
		}
		if c.LatestMessageID != nil {
			if m, ok := latestById[*c.LatestMessageID]; ok {
				result[i].LatestMessage = richMessage(m, users)
			}
		}
	}
	return result, nil
}

func previewsByID(ctx context.Context, r storage.Registry, ids []string) (map[string]models.UserPreview, error) {
	previews, err := r.GetUsersStore().GetUserPreviews(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, err
	}
	return lo.KeyBy(previews, func(p models.UserPreview) string {
		return p.UserID
	}), nil
}

func richMessage(m models.Message, users map[string]models.UserPreview) *models.RichMessage {
	rich := &models.RichMessage{Message: m}
	if sender, ok := users[m.SenderID]; ok {
		rich.Sender = &sender
	}
	return rich
}
