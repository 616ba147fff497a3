package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/practice-sem-2/chat-service/internal/broadcast"
	"github.com/practice-sem-2/chat-service/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testWebhookSecret = "whsec_dGVzdC13ZWJob29rLXNlY3JldA=="
)

type mockChats struct {
	mock.Mock
}

func (m *mockChats) GetOrCreateChat(ctx context.Context, userA, userB string) (*models.RichChat, bool, error) {
	args := m.Called(ctx, userA, userB)
	chat, _ := args.Get(0).(*models.RichChat)
	return chat, args.Bool(1), args.Error(2)
}

func (m *mockChats) ListChats(ctx context.Context, userId string, isGroup bool) ([]models.RichChat, error) {
	args := m.Called(ctx, userId, isGroup)
	chats, _ := args.Get(0).([]models.RichChat)
	return chats, args.Error(1)
}

func (m *mockChats) GetChat(ctx context.Context, chatId string) (*models.RichChat, error) {
	args := m.Called(ctx, chatId)
	chat, _ := args.Get(0).(*models.RichChat)
	return chat, args.Error(1)
}

func (m *mockChats) EnsureMember(ctx context.Context, chatId string, userId string) error {
	return m.Called(ctx, chatId, userId).Error(0)
}

type mockMessages struct {
	mock.Mock
}

func (m *mockMessages) Append(ctx context.Context, chatId, senderId, content string) (*models.RichMessage, error) {
	args := m.Called(ctx, chatId, senderId, content)
	msg, _ := args.Get(0).(*models.RichMessage)
	return msg, args.Error(1)
}

func (m *mockMessages) Page(ctx context.Context, chatId string, page, pageSize int) (*models.MessagesPage, error) {
	args := m.Called(ctx, chatId, page, pageSize)
	p, _ := args.Get(0).(*models.MessagesPage)
	return p, args.Error(1)
}

func (m *mockMessages) ListAll(ctx context.Context, chatId string) ([]models.RichMessage, error) {
	args := m.Called(ctx, chatId)
	messages, _ := args.Get(0).([]models.RichMessage)
	return messages, args.Error(1)
}

func (m *mockMessages) MarkRead(ctx context.Context, chatId, readerId string) (*models.ReadResult, error) {
	args := m.Called(ctx, chatId, readerId)
	res, _ := args.Get(0).(*models.ReadResult)
	return res, args.Error(1)
}

func (m *mockMessages) Typing(ctx context.Context, chatId, userId string, typing bool) error {
	return m.Called(ctx, chatId, userId, typing).Error(0)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetByExternalID(ctx context.Context, externalId string) (*models.User, error) {
	args := m.Called(ctx, externalId)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *mockUsers) GetByID(ctx context.Context, userId string) (*models.User, error) {
	args := m.Called(ctx, userId)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *mockUsers) Search(ctx context.Context, query string) ([]models.UserPreview, error) {
	args := m.Called(ctx, query)
	users, _ := args.Get(0).([]models.UserPreview)
	return users, args.Error(1)
}

func (m *mockUsers) UpsertFromIdentity(ctx context.Context, identity models.IdentityUser) (*models.User, bool, error) {
	args := m.Called(ctx, identity)
	user, _ := args.Get(0).(*models.User)
	return user, args.Bool(1), args.Error(2)
}

func (m *mockUsers) DeleteByExternalID(ctx context.Context, externalId string) error {
	return m.Called(ctx, externalId).Error(0)
}

type testEnv struct {
	srv      *httptest.Server
	hub      *broadcast.Hub
	chats    *mockChats
	messages *mockMessages
	users    *mockUsers
	me       *models.User
	token    string
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func signToken(t *testing.T, subject string, ttl time.Duration) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func newTestEnv(t *testing.T) *testEnv {
	log := newTestLogger()
	env := &testEnv{
		hub:      broadcast.NewHub(log),
		chats:    &mockChats{},
		messages: &mockMessages{},
		users:    &mockUsers{},
		me: &models.User{
			UserID:         uuid.NewString(),
			ExternalAuthID: "auth|me",
			Name:           "Me",
			Email:          "me@example.com",
		},
	}
	env.token = signToken(t, env.me.ExternalAuthID, time.Hour)
	env.users.On("GetByExternalID", mock.Anything, env.me.ExternalAuthID).Return(env.me, nil).Maybe()

	presence := broadcast.NewPresenceRegistry(env.hub, broadcast.PresenceTopic)
	auth := NewHMACAuthenticator(env.users, []byte(testJWTSecret))
	s := NewServer(env.chats, env.messages, env.users, env.hub, presence, auth, Config{
		CORSOrigins:    []string{"*"},
		RequestTimeout: 5 * time.Second,
		WebhookSecret:  testWebhookSecret,
	}, log)

	env.srv = httptest.NewServer(s.Router())
	t.Cleanup(func() {
		env.hub.Close()
		env.srv.Close()
	})
	return env
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, testEnvelope) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env testEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (e *testEnv) authed(t *testing.T, method, path string, body interface{}) (int, testEnvelope) {
	return e.do(t, method, path, body, map[string]string{"Authorization": "Bearer " + e.token})
}
