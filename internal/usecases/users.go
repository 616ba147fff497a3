package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/practice-sem-2/chat-service/internal/models"
	storage "github.com/practice-sem-2/chat-service/internal/storages"
)

const DefaultSearchLimit = 5

type UsersUsecase struct {
	registry storage.Registry
}

func NewUsersUsecase(r storage.Registry) *UsersUsecase {
	return &UsersUsecase{
		registry: r,
	}
}

// UpsertFromIdentity mirrors a user created in the identity provider. A user
// already known by its external id is returned untouched.
func (u *UsersUsecase) UpsertFromIdentity(ctx context.Context, identity models.IdentityUser) (*models.User, bool, error) {
	identity.ExternalAuthID = strings.TrimSpace(identity.ExternalAuthID)
	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	identity.Name = strings.TrimSpace(identity.Name)
	if identity.Name == "" {
		identity.Name = "User"
	}
	if err := validateStruct(&identity); err != nil {
		return nil, false, err
	}

	store := u.registry.GetUsersStore()
	existing, err := store.GetUserByExternalID(ctx, identity.ExternalAuthID)
	if err == nil {
		return existing, false, nil
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return nil, false, wrapStoreError(err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	dob := now
	if identity.Dob != nil {
		dob = identity.Dob.UTC()
	}

	user := &models.User{
		UserID:         uuid.NewString(),
		ExternalAuthID: identity.ExternalAuthID,
		Name:           identity.Name,
		Email:          identity.Email,
		Phone:          emptyToNil(identity.Phone),
		Dob:            dob,
		AvatarURL:      emptyToNil(identity.AvatarURL),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = store.CreateUser(ctx, user)
	if errors.Is(err, storage.ErrUserAlreadyExists) {
		existing, err = store.GetUserByExternalID(ctx, identity.ExternalAuthID)
		if err != nil {
			return nil, false, wrapStoreError(err)
		}
		return existing, false, nil
	} else if err != nil {
		return nil, false, wrapStoreError(err)
	}

	return user, true, nil
}

func (u *UsersUsecase) DeleteByExternalID(ctx context.Context, externalId string) error {
	if strings.TrimSpace(externalId) == "" {
		return fmt.Errorf("%w: external_auth_id is required", ErrInvalidArgument)
	}
	return wrapStoreError(u.registry.GetUsersStore().DeleteUserByExternalID(ctx, externalId))
}

func (u *UsersUsecase) GetByExternalID(ctx context.Context, externalId string) (*models.User, error) {
	if externalId == "" {
		return nil, fmt.Errorf("%w: external_auth_id is required", ErrInvalidArgument)
	}
	user, err := u.registry.GetUsersStore().GetUserByExternalID(ctx, externalId)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return user, nil
}

func (u *UsersUsecase) GetByID(ctx context.Context, userId string) (*models.User, error) {
	if err := requireUUID("user_id", userId); err != nil {
		return nil, err
	}
	user, err := u.registry.GetUsersStore().GetUserByID(ctx, userId)
	if err != nil {
		return nil, wrapStoreError(err)
	}
	return user, nil
}

// Search matches query against user names and emails.
func (u *UsersUsecase) Search(ctx context.Context, query string) ([]models.UserPreview, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return make([]models.UserPreview, 0), nil
	}

	users, err := u.registry.GetUsersStore().SearchUsers(ctx, query, DefaultSearchLimit)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	previews := make([]models.UserPreview, len(users))
	for i := range users {
		previews[i] = users[i].Preview()
	}
	return previews, nil
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
