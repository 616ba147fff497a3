package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/practice-sem-2/chat-service/internal/models"
)

var (
	ErrMessageAlreadyExists = errors.New("message with provided message_id already exists")
	ErrMessageNotFound      = errors.New("message does not exist")
)

const (
	MessagesPrimaryKey       = "messages_pkey"
	MessagesChatIdForeignKey = "messages_chat_id_fkey"
)

var messageColumns = []string{
	"message_id", "seq", "chat_id", "sender_id", "content", "read_by", "created_at", "updated_at",
}

type MessagesStore interface {
	PutMessage(ctx context.Context, message *models.Message) error
	GetMessage(ctx context.Context, messageId string) (*models.Message, error)
	GetMessagesById(ctx context.Context, ids []string) ([]models.Message, error)
	GetLatestMessages(ctx context.Context, chatId string, offset, limit uint64) ([]models.Message, error)
	GetChatMessages(ctx context.Context, chatId string) ([]models.Message, error)
	CountMessages(ctx context.Context, chatId string) (uint64, error)
	MarkRead(ctx context.Context, chatId string, readerId string) (int64, error)
}

type MessagesStorage struct {
	db Scope
}

func NewMessagesStorage(db Scope) *MessagesStorage {
	return &MessagesStorage{
		db: db,
	}
}

// PutMessage inserts the message and fills in its seq.
func (s *MessagesStorage) PutMessage(ctx context.Context, message *models.Message) error {
	readBy := message.ReadBy
	if readBy == nil {
		readBy = pq.StringArray{}
	}

	query, args, err := sq.Insert("messages").
		Columns("message_id", "chat_id", "sender_id", "content", "read_by", "created_at", "updated_at").
		Values(
			message.MessageID,
			message.ChatID,
			message.SenderID,
			message.Content,
			readBy,
			message.CreatedAt,
			message.UpdatedAt,
		).
		Suffix("RETURNING seq").
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	err = s.db.QueryRowxContext(ctx, query, args...).Scan(&message.Seq)

	switch GetPgxConstraintName(err) {
	case MessagesChatIdForeignKey:
		return ErrChatNotFound
	case MessagesPrimaryKey:
		return ErrMessageAlreadyExists
	default:
		return err
	}
}

type SelectOptions struct {
	Offset  uint64
	Limit   uint64
	OrderBy []string
}

func (s *MessagesStorage) SelectMessages(ctx context.Context, selector sq.Sqlizer, options ...SelectOptions) ([]models.Message, error) {
	option := SelectOptions{}
	if len(options) > 0 {
		option = options[0]
	}

	builder := sq.Select(messageColumns...).
		From("messages").
		Where(selector).
		PlaceholderFormat(sq.Dollar)

	if len(option.OrderBy) > 0 {
		builder = builder.OrderBy(option.OrderBy...)
	}

	if option.Limit > 0 {
		builder = builder.Limit(option.Limit)
	}

	if option.Offset > 0 {
		builder = builder.Offset(option.Offset)
	}

	query, args, err := builder.ToSql()

	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0)
	err = s.db.SelectContext(ctx, &messages, query, args...)
	if err != nil {
		return nil, err
	}

	return messages, nil
}

func (s *MessagesStorage) GetMessage(ctx context.Context, messageId string) (*models.Message, error) {
	msgs, err := s.SelectMessages(ctx, sq.Eq{"message_id": messageId})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrMessageNotFound
	}
	return &msgs[0], nil
}

func (s *MessagesStorage) GetMessagesById(ctx context.Context, ids []string) ([]models.Message, error) {
	if len(ids) == 0 {
		return make([]models.Message, 0), nil
	}
	return s.SelectMessages(ctx, sq.Eq{"message_id": ids}, SelectOptions{
		OrderBy: []string{"seq DESC"},
	})
}

// GetLatestMessages returns a newest-first window of the chat history.
func (s *MessagesStorage) GetLatestMessages(ctx context.Context, chatId string, offset, limit uint64) ([]models.Message, error) {
	return s.SelectMessages(ctx, sq.Eq{"chat_id": chatId}, SelectOptions{
		Offset:  offset,
		Limit:   limit,
		OrderBy: []string{"seq DESC"},
	})
}

func (s *MessagesStorage) GetChatMessages(ctx context.Context, chatId string) ([]models.Message, error) {
	return s.SelectMessages(ctx, sq.Eq{"chat_id": chatId}, SelectOptions{
		OrderBy: []string{"seq ASC"},
	})
}

func (s *MessagesStorage) CountMessages(ctx context.Context, chatId string) (uint64, error) {
	query, args, err := sq.Select("count(1)").
		From("messages").
		Where(sq.Eq{"chat_id": chatId}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return 0, err
	}

	var count uint64
	err = s.db.GetContext(ctx, &count, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

// MarkRead adds readerId to read_by of every message in the chat that does
// not contain it yet and returns how many messages changed.
func (s *MessagesStorage) MarkRead(ctx context.Context, chatId string, readerId string) (int64, error) {
	query, args, err := sq.Update("messages").
		Set("read_by", sq.Expr("array_append(read_by, ?::uuid)", readerId)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"chat_id": chatId}).
		Where(sq.Expr("NOT (?::uuid = ANY(read_by))", readerId)).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
