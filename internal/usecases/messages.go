package usecases

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/practice-sem-2/chat-service/internal/broadcast"
	"github.com/practice-sem-2/chat-service/internal/models"
	storage "github.com/practice-sem-2/chat-service/internal/storages"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type PageConfig struct {
	DefaultSize uint64
	MaxSize     uint64
}

type MessagesUsecase struct {
	registry    storage.Registry
	broadcaster *broadcast.Broadcaster
	pages       PageConfig
	log         logrus.FieldLogger
}

func NewMessagesUsecase(r storage.Registry, b *broadcast.Broadcaster, pages PageConfig, log logrus.FieldLogger) *MessagesUsecase {
	if pages.DefaultSize == 0 {
		pages.DefaultSize = DefaultPageSize
	}
	if pages.MaxSize == 0 {
		pages.MaxSize = MaxPageSize
	}
	if pages.DefaultSize > pages.MaxSize {
		pages.DefaultSize = pages.MaxSize
	}
	return &MessagesUsecase{
		registry:    r,
		broadcaster: b,
		pages:       pages,
		log:         log,
	}
}

// Append persists a message from senderId and moves the chat's latest
// message pointer to it. Subscribers of the chat and the sidebars of all
// participants are notified once the write is committed.
func (u *MessagesUsecase) Append(ctx context.Context, chatId, senderId, content string) (*models.RichMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if err := validateStruct(&models.MessageSend{ChatID: chatId, SenderID: senderId, Content: content}); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	msg := models.Message{
		MessageID: uuid.NewString(),
		ChatID:    chatId,
		SenderID:  senderId,
		Content:   content,
		ReadBy:    pq.StringArray{senderId},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var participants []string
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		chats := r.GetChatsStore()

		if _, err := chats.GetChatForUpdate(ctx, chatId); err != nil {
			return err
		}
		chat, err := chats.GetChatWithMembers(ctx, chatId)
		if err != nil {
			return err
		}
		if !chat.HasMember(senderId) {
			return ErrUserIsNotAChatMember
		}
		participants = chat.ParticipantIDs()

		if err = r.GetMessagesStore().PutMessage(ctx, &msg); err != nil {
			return err
		}
		return chats.SetLatestMessage(ctx, chatId, msg.MessageID, now)
	})
	if err != nil {
		return nil, wrapStoreError(err)
	}

	users, err := previewsByID(ctx, u.registry, []string{senderId})
	if err != nil {
		u.log.WithError(err).WithFields(logrus.Fields{
			"chat_id":    chatId,
			"message_id": msg.MessageID,
		}).Warn("can't resolve message sender, publishing without it")
	}
	rich := richMessage(msg, users)

	u.broadcaster.IncomingMessage(ctx, rich)
	u.broadcaster.SidebarUpdate(ctx, participants, rich, now)

	return rich, nil
}

func (u *MessagesUsecase) pageSize(size int) uint64 {
	switch {
	case size <= 0:
		return u.pages.DefaultSize
	case uint64(size) > u.pages.MaxSize:
		return u.pages.MaxSize
	default:
		return uint64(size)
	}
}

// Page returns one window of the chat history. Page 1 holds the newest
// messages; within a page messages are in chronological order.
func (u *MessagesUsecase) Page(ctx context.Context, chatId string, page, pageSize int) (*models.MessagesPage, error) {
	if err := requireUUID("chat_id", chatId); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	limit := u.pageSize(pageSize)

	// OFFSET is a signed bigint; anything past it is beyond any history.
	beyond := uint64(page-1) > math.MaxInt64/limit
	var skip uint64
	if !beyond {
		skip = uint64(page-1) * limit
	}

	var (
		messages = make([]models.Message, 0)
		total    uint64
	)
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		if _, err := r.GetChatsStore().GetChat(ctx, chatId); err != nil {
			return err
		}
		if beyond {
			return nil
		}

		store := r.GetMessagesStore()
		var err error
		messages, err = store.GetLatestMessages(ctx, chatId, skip, limit)
		if err != nil {
			return err
		}
		total, err = store.CountMessages(ctx, chatId)
		return err
	})
	if err != nil {
		return nil, wrapStoreError(err)
	}

	rich, err := u.resolveMessages(ctx, lo.Reverse(messages))
	if err != nil {
		return nil, err
	}

	return &models.MessagesPage{
		Messages: rich,
		Page:     uint64(page),
		HasMore:  !beyond && total > skip+uint64(len(messages)),
	}, nil
}

// ListAll returns the whole chat history in chronological order.
func (u *MessagesUsecase) ListAll(ctx context.Context, chatId string) ([]models.RichMessage, error) {
	if err := requireUUID("chat_id", chatId); err != nil {
		return nil, err
	}

	var messages []models.Message
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		if _, err := r.GetChatsStore().GetChat(ctx, chatId); err != nil {
			return err
		}
		var err error
		messages, err = r.GetMessagesStore().GetChatMessages(ctx, chatId)
		return err
	})
	if err != nil {
		return nil, wrapStoreError(err)
	}

	return u.resolveMessages(ctx, messages)
}

// MarkRead records that readerId has seen every message of the chat.
// messages-read is published only when something actually changed.
func (u *MessagesUsecase) MarkRead(ctx context.Context, chatId, readerId string) (*models.ReadResult, error) {
	if err := requireUUID("chat_id", chatId); err != nil {
		return nil, err
	}
	if err := requireUUID("reader_id", readerId); err != nil {
		return nil, err
	}

	var updated int64
	err := u.registry.Atomic(ctx, func(r storage.Registry) error {
		isMember, err := r.GetChatsStore().UserIsMember(ctx, chatId, readerId)
		if err != nil {
			return err
		}
		if !isMember {
			return ErrUserIsNotAChatMember
		}

		updated, err = r.GetMessagesStore().MarkRead(ctx, chatId, readerId)
		return err
	})
	if err != nil {
		return nil, wrapStoreError(err)
	}

	if updated > 0 {
		u.broadcaster.MessagesRead(ctx, chatId, readerId)
	}

	return &models.ReadResult{UpdatedCount: updated}, nil
}

// Typing relays an ephemeral typing signal. Nothing is persisted.
func (u *MessagesUsecase) Typing(ctx context.Context, chatId, userId string, typing bool) error {
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

	u.broadcaster.Typing(ctx, chatId, userId, typing)
	return nil
}

func (u *MessagesUsecase) resolveMessages(ctx context.Context, messages []models.Message) ([]models.RichMessage, error) {
	senders := lo.Map(messages, func(m models.Message, _ int) string {
		return m.SenderID
	})

	users, err := previewsByID(ctx, u.registry, senders)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	return lo.Map(messages, func(m models.Message, _ int) models.RichMessage {
		return *richMessage(m, users)
	}), nil
}
