package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/practice-sem-2/chat-service/internal/models"
)

var (
	ErrChatAlreadyExists = errors.New("chat with provided chat_id already exists")
	ErrChatNotFound      = errors.New("chat with provided chat_id does not exist")
	ErrEmptyMembers      = errors.New("members array can't be empty")
	ErrMemberExists      = errors.New("user is already a chat member")
)

const (
	ChatsPrimaryKey             = "chats_pkey"
	ChatsPairKey                = "chats_pair_key_key"
	ChatMembersPrimaryKey       = "chat_members_pkey"
	ChatMembersChatIdForeignKey = "chat_members_chat_id_fkey"
)

var chatColumns = []string{
	"chat_id", "is_group", "display_name", "pair_key", "latest_message_id", "created_at", "updated_at",
}

type ChatsStore interface {
	CreateChat(ctx context.Context, chat *models.Chat) error
	AddChatMembers(ctx context.Context, chatId string, members []string) error
	GetChat(ctx context.Context, chatId string) (*models.Chat, error)
	GetChatForUpdate(ctx context.Context, chatId string) (*models.Chat, error)
	GetChatWithMembers(ctx context.Context, chatId string) (*models.ChatWithMembers, error)
	FindChatByPairKey(ctx context.Context, pairKey string) (*models.ChatWithMembers, error)
	UserIsMember(ctx context.Context, chatId string, userId string) (bool, error)
	GetUserChats(ctx context.Context, userId string, isGroup bool) ([]models.ChatWithMembers, error)
	SetLatestMessage(ctx context.Context, chatId string, messageId string, at time.Time) error
}

type ChatsStorage struct {
	db Scope
}

func NewChatsStorage(db Scope) *ChatsStorage {
	return &ChatsStorage{
		db: db,
	}
}

func (s *ChatsStorage) CreateChat(ctx context.Context, chat *models.Chat) error {
	query, args, err := sq.Insert("chats").
		Columns(chatColumns...).
		Values(
			chat.ChatID,
			chat.IsGroup,
			chat.DisplayName,
			chat.PairKey,
			chat.LatestMessageID,
			chat.CreatedAt,
			chat.UpdatedAt,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	switch GetPgxConstraintName(err) {
	case ChatsPrimaryKey, ChatsPairKey:
		return ErrChatAlreadyExists
	default:
		return err
	}
}

func (s *ChatsStorage) AddChatMembers(ctx context.Context, chatId string, members []string) error {
	if len(members) == 0 {
		return ErrEmptyMembers
	}

	builder := sq.Insert("chat_members").
		Columns("chat_id", "user_id", "position").
		PlaceholderFormat(sq.Dollar)

	for i, member := range members {
		builder = builder.Values(chatId, member, i)
	}

	query, args, err := builder.ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	switch GetPgxConstraintName(err) {
	case ChatMembersChatIdForeignKey:
		return ErrChatNotFound
	case ChatMembersPrimaryKey:
		return ErrMemberExists
	default:
		return err
	}
}

func (s *ChatsStorage) getChat(ctx context.Context, where sq.Sqlizer, suffix ...string) (*models.Chat, error) {
	builder := sq.Select(chatColumns...).
		From("chats").
		Where(where)
	for _, sfx := range suffix {
		builder = builder.Suffix(sfx)
	}
	query, args, err := builder.
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	chat := models.Chat{}
	err = s.db.GetContext(ctx, &chat, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	} else if err != nil {
		return nil, err
	} else {
		return &chat, nil
	}
}

func (s *ChatsStorage) GetChat(ctx context.Context, chatId string) (*models.Chat, error) {
	return s.getChat(ctx, sq.Eq{"chat_id": chatId})
}

// GetChatForUpdate reads the chat and locks its row until the surrounding
// transaction ends. Writers that move latest_message_id take this lock
// before allocating a seq, so seq order matches commit order per chat.
func (s *ChatsStorage) GetChatForUpdate(ctx context.Context, chatId string) (*models.Chat, error) {
	return s.getChat(ctx, sq.Eq{"chat_id": chatId}, "FOR UPDATE")
}

func (s *ChatsStorage) getMembers(ctx context.Context, chatIds []string) (map[string][]models.ChatMember, error) {
	members := make(map[string][]models.ChatMember, len(chatIds))
	if len(chatIds) == 0 {
		return members, nil
	}

	query, args, err := sq.Select("chat_id", "user_id").
		From("chat_members").
		Where(sq.Eq{"chat_id": chatIds}).
		OrderBy("chat_id", "position", "user_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var chatId string
		member := models.ChatMember{}
		if err = rows.Scan(&chatId, &member.UserID); err != nil {
			return nil, err
		}
		members[chatId] = append(members[chatId], member)
	}

	return members, rows.Err()
}

func (s *ChatsStorage) withMembers(ctx context.Context, chat *models.Chat) (*models.ChatWithMembers, error) {
	members, err := s.getMembers(ctx, []string{chat.ChatID})
	if err != nil {
		return nil, err
	}

	m := members[chat.ChatID]
	if m == nil {
		m = make([]models.ChatMember, 0)
	}

	return &models.ChatWithMembers{
		Chat:    *chat,
		Members: m,
	}, nil
}

func (s *ChatsStorage) GetChatWithMembers(ctx context.Context, chatId string) (*models.ChatWithMembers, error) {
	chat, err := s.GetChat(ctx, chatId)
	if err != nil {
		return nil, err
	}
	return s.withMembers(ctx, chat)
}

func (s *ChatsStorage) FindChatByPairKey(ctx context.Context, pairKey string) (*models.ChatWithMembers, error) {
	chat, err := s.getChat(ctx, sq.Eq{"pair_key": pairKey, "is_group": false})
	if err != nil {
		return nil, err
	}
	return s.withMembers(ctx, chat)
}

func (s *ChatsStorage) UserIsMember(ctx context.Context, chatId string, userId string) (bool, error) {
	// Check if chat exists
	_, err := s.GetChat(ctx, chatId)
	if err != nil {
		return false, err
	}

	query, args, err := sq.Select("count(1)").
		From("chat_members").
		Where(sq.Eq{
			"chat_id": chatId,
			"user_id": userId,
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return false, err
	}

	count := 0
	err = s.db.GetContext(ctx, &count, query, args...)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *ChatsStorage) GetUserChats(ctx context.Context, userId string, isGroup bool) ([]models.ChatWithMembers, error) {
	columns := make([]string, len(chatColumns))
	for i, c := range chatColumns {
		columns[i] = "c." + c
	}

	query, args, err := sq.Select(columns...).
		From("chats c").
		Join("chat_members m ON m.chat_id = c.chat_id").
		Where(sq.Eq{
			"m.user_id":  userId,
			"c.is_group": isGroup,
		}).
		OrderBy("c.updated_at DESC", "c.chat_id").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	chats := make([]models.Chat, 0)
	if err = s.db.SelectContext(ctx, &chats, query, args...); err != nil {
		return nil, err
	}

	ids := make([]string, len(chats))
	for i, c := range chats {
		ids[i] = c.ChatID
	}

	members, err := s.getMembers(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]models.ChatWithMembers, len(chats))
	for i, c := range chats {
		result[i] = models.ChatWithMembers{
			Chat:    c,
			Members: members[c.ChatID],
		}
	}
	return result, nil
}

// SetLatestMessage points the chat at its newest message. updated_at never
// moves backwards.
func (s *ChatsStorage) SetLatestMessage(ctx context.Context, chatId string, messageId string, at time.Time) error {
	query, args, err := sq.Update("chats").
		Set("latest_message_id", messageId).
		Set("updated_at", sq.Expr("GREATEST(updated_at, ?)", at.UTC())).
		Where(sq.Eq{"chat_id": chatId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if count == 0 {
		return ErrChatNotFound
	}
	return nil
}
