package usecases

import (
	"errors"
	"fmt"

	storage "github.com/practice-sem-2/chat-service/internal/storages"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrPermissionDenied       = errors.New("user is not authorized to this action")
	ErrAuthenticationRequired = fmt.Errorf("%w: Authentication required", ErrPermissionDenied)
	ErrUserIsNotAChatMember   = fmt.Errorf("%w: User is not a chat member", ErrPermissionDenied)

	ErrSelfChat     = fmt.Errorf("%w: cannot create chat with yourself", ErrInvalidArgument)
	ErrEmptyContent = fmt.Errorf("%w: message content can't be empty", ErrInvalidArgument)
	ErrEmailTaken   = fmt.Errorf("%w: email is already used by another user", ErrInvalidArgument)

	ErrChatNotFound    = fmt.Errorf("%w: chat does not exist", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("%w: user does not exist", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("%w: message does not exist", ErrNotFound)
)

// wrapStoreError maps store errors onto the usecase taxonomy. Anything the
// store layer does not recognise is reported as ErrStoreUnavailable.
func wrapStoreError(err error) error {
	errorMapper := []struct {
		from error
		to   error
	}{
		{storage.ErrChatNotFound, ErrChatNotFound},
		{storage.ErrUserNotFound, ErrUserNotFound},
		{storage.ErrMessageNotFound, ErrMessageNotFound},
		{storage.ErrEmailTaken, ErrEmailTaken},
	}

	if err == nil {
		return nil
	}

	for _, mapping := range errorMapper {
		if errors.Is(err, mapping.from) {
			return mapping.to
		}
	}

	for _, known := range []error{ErrInvalidArgument, ErrNotFound, ErrPermissionDenied, ErrStoreUnavailable} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
