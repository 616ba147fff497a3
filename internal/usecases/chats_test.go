package usecases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatsUsecase_GetOrCreateChatIsIdempotent(t *testing.T) {
	r := newMemRegistry()
	alice := r.seedUser(uuid.NewString(), "Alice")
	bob := r.seedUser(uuid.NewString(), "Bob")
	u := NewChatsUsecase(r)
	ctx := context.Background()

	first, created, err := u.GetOrCreateChat(ctx, alice.UserID, bob.UserID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, first.IsGroup)
	assert.Len(t, first.Participants, 2)

	second, created, err := u.GetOrCreateChat(ctx, bob.UserID, alice.UserID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ChatID, second.ChatID)
}

func TestChatsUsecase_GetOrCreateChatConcurrent(t *testing.T) {
	r := newMemRegistry()
	alice := r.seedUser(uuid.NewString(), "Alice")
	bob := r.seedUser(uuid.NewString(), "Bob")
	u := NewChatsUsecase(r)

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chat, _, err := u.GetOrCreateChat(context.Background(), alice.UserID, bob.UserID)
			if assert.NoError(t, err) {
				ids[i] = chat.ChatID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	chats, err := u.ListChats(context.Background(), alice.UserID, false)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestChatsUsecase_GetOrCreateChatRejectsSelf(t *testing.T) {
	r := newMemRegistry()
	alice := r.seedUser(uuid.NewString(), "Alice")
	u := NewChatsUsecase(r)

	_, _, err := u.GetOrCreateChat(context.Background(), alice.UserID, alice.UserID)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestChatsUsecase_GetOrCreateChatValidation(t *testing.T) {
	r := newMemRegistry()
	alice := r.seedUser(uuid.NewString(), "Alice")
	u := NewChatsUsecase(r)
	ctx := context.Background()

	_, _, err := u.GetOrCreateChat(ctx, alice.UserID, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = u.GetOrCreateChat(ctx, "not-an-id", alice.UserID)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = u.GetOrCreateChat(ctx, alice.UserID, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChatsUsecase_ListChatsOrdersByActivity(t *testing.T) {
	r := newMemRegistry()
	alice := r.seedUser(uuid.NewString(), "Alice")
	bob := r.seedUser(uuid.NewString(), "Bob")
	carol := r.seedUser(uuid.NewString(), "Carol")
	chats := NewChatsUsecase(r)
	messages := NewMessagesUsecase(r, newTestBroadcaster(&recordingPublisher{}), PageConfig{}, newTestLogger())
	ctx := context.Background()

	withBob, _, err := chats.GetOrCreateChat(ctx, alice.UserID, bob.UserID)
	require.NoError(t, err)
	withCarol, _, err := chats.GetOrCreateChat(ctx, alice.UserID, carol.UserID)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = messages.Append(ctx, withBob.ChatID, bob.UserID, "ping")
	require.NoError(t, err)

	list, err := chats.ListChats(ctx, alice.UserID, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, withBob.ChatID, list[0].ChatID)
	assert.Equal(t, withCarol.ChatID, list[1].ChatID)
	require.NotNil(t, list[0].LatestMessage)
	assert.Equal(t, "ping", list[0].LatestMessage.Content)
	require.NotNil(t, list[0].LatestMessage.Sender)
	assert.Equal(t, "Bob", list[0].LatestMessage.Sender.Name)
	assert.Nil(t, list[1].LatestMessage)

	groups, err := chats.ListChats(ctx, alice.UserID, true)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestChatsUsecase_EnsureMember(t *testing.T) {
	r := newMemRegistry()
	alice := r.seedUser(uuid.NewString(), "Alice")
	bob := r.seedUser(uuid.NewString(), "Bob")
	u := NewChatsUsecase(r)
	ctx := context.Background()

	chat, _, err := u.GetOrCreateChat(ctx, alice.UserID, bob.UserID)
	require.NoError(t, err)

	assert.NoError(t, u.EnsureMember(ctx, chat.ChatID, alice.UserID))
	assert.ErrorIs(t, u.EnsureMember(ctx, chat.ChatID, uuid.NewString()), ErrPermissionDenied)

	_, err = u.GetChat(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrChatNotFound)
}
