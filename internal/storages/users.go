package storage

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/practice-sem-2/chat-service/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user does not exist")
	ErrUserAlreadyExists = errors.New("user with provided external_auth_id already exists")
	ErrEmailTaken        = errors.New("user with provided email already exists")
)

const (
	UsersPrimaryKey        = "users_pkey"
	UsersExternalAuthIdKey = "users_external_auth_id_key"
	UsersEmailKey          = "users_email_key"
)

var userColumns = []string{
	"user_id", "external_auth_id", "name", "email", "phone", "dob", "avatar_url", "created_at", "updated_at",
}

type UsersStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userId string) (*models.User, error)
	GetUserByExternalID(ctx context.Context, externalId string) (*models.User, error)
	DeleteUserByExternalID(ctx context.Context, externalId string) error
	SearchUsers(ctx context.Context, query string, limit uint64) ([]models.User, error)
	GetUserPreviews(ctx context.Context, ids []string) ([]models.UserPreview, error)
}

type UsersStorage struct {
	db Scope
}

func NewUsersStorage(db Scope) *UsersStorage {
	return &UsersStorage{
		db: db,
	}
}

func (s *UsersStorage) CreateUser(ctx context.Context, user *models.User) error {
	query, args, err := sq.Insert("users").
		Columns(userColumns...).
		Values(
			user.UserID,
			user.ExternalAuthID,
			user.Name,
			user.Email,
			user.Phone,
			user.Dob,
			user.AvatarURL,
			user.CreatedAt,
			user.UpdatedAt,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, args...)

	switch GetPgxConstraintName(err) {
	case UsersPrimaryKey, UsersExternalAuthIdKey:
		return ErrUserAlreadyExists
	case UsersEmailKey:
		return ErrEmailTaken
	default:
		return err
	}
}

func (s *UsersStorage) getUser(ctx context.Context, where sq.Sqlizer) (*models.User, error) {
	query, args, err := sq.Select(userColumns...).
		From("users").
		Where(where).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	user := models.User{}
	err = s.db.GetContext(ctx, &user, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UsersStorage) GetUserByID(ctx context.Context, userId string) (*models.User, error) {
	return s.getUser(ctx, sq.Eq{"user_id": userId})
}

func (s *UsersStorage) GetUserByExternalID(ctx context.Context, externalId string) (*models.User, error) {
	return s.getUser(ctx, sq.Eq{"external_auth_id": externalId})
}

func (s *UsersStorage) DeleteUserByExternalID(ctx context.Context, externalId string) error {
	query, args, err := sq.Delete("users").
		Where(sq.Eq{"external_auth_id": externalId}).
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
		return ErrUserNotFound
	}
	return nil
}

func (s *UsersStorage) SearchUsers(ctx context.Context, query string, limit uint64) ([]models.User, error) {
	pattern := "%" + escapeLike(query) + "%"
	sqlQuery, args, err := sq.Select(userColumns...).
		From("users").
		Where(sq.Or{
			sq.ILike{"name": pattern},
			sq.ILike{"email": pattern},
		}).
		OrderBy("name", "user_id").
		Limit(limit).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0)
	err = s.db.SelectContext(ctx, &users, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *UsersStorage) GetUserPreviews(ctx context.Context, ids []string) ([]models.UserPreview, error) {
	previews := make([]models.UserPreview, 0, len(ids))
	if len(ids) == 0 {
		return previews, nil
	}

	query, args, err := sq.Select("user_id", "name", "email", "avatar_url").
		From("users").
		Where(sq.Eq{"user_id": ids}).
		PlaceholderFormat(sq.Dollar).
		ToSql()

	if err != nil {
		return nil, err
	}

	err = s.db.SelectContext(ctx, &previews, query, args...)
	if err != nil {
		return nil, err
	}
	return previews, nil
}
