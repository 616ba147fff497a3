package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/practice-sem-2/chat-service/internal/broadcast"
	"github.com/practice-sem-2/chat-service/internal/models"
	usecase "github.com/practice-sem-2/chat-service/internal/usecases"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	svix "github.com/svix/svix-webhooks/go"
)

type ChatService interface {
	GetOrCreateChat(ctx context.Context, userA, userB string) (*models.RichChat, bool, error)
	ListChats(ctx context.Context, userId string, isGroup bool) ([]models.RichChat, error)
	GetChat(ctx context.Context, chatId string) (*models.RichChat, error)
	EnsureMember(ctx context.Context, chatId string, userId string) error
}

type MessageService interface {
	Append(ctx context.Context, chatId, senderId, content string) (*models.RichMessage, error)
	Page(ctx context.Context, chatId string, page, pageSize int) (*models.MessagesPage, error)
	ListAll(ctx context.Context, chatId string) ([]models.RichMessage, error)
	MarkRead(ctx context.Context, chatId, readerId string) (*models.ReadResult, error)
	Typing(ctx context.Context, chatId, userId string, typing bool) error
}

type UserService interface {
	UserResolver
	GetByID(ctx context.Context, userId string) (*models.User, error)
	Search(ctx context.Context, query string) ([]models.UserPreview, error)
	UpsertFromIdentity(ctx context.Context, identity models.IdentityUser) (*models.User, bool, error)
	DeleteByExternalID(ctx context.Context, externalId string) error
}

type Config struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	WebhookSecret  string
}

type Server struct {
	chats    ChatService
	messages MessageService
	users    UserService
	hub      *broadcast.Hub
	presence *broadcast.PresenceRegistry
	auth     *Authenticator
	validate *validator.Validate
	upgrader websocket.Upgrader
	webhook  *svix.Webhook
	config   Config
	log      logrus.FieldLogger
}

func NewServer(
	c ChatService,
	m MessageService,
	u UserService,
	hub *broadcast.Hub,
	presence *broadcast.PresenceRegistry,
	auth *Authenticator,
	config Config,
	log logrus.FieldLogger,
) *Server {
	s := &Server{
		chats:    c,
		messages: m,
		users:    u,
		hub:      hub,
		presence: presence,
		auth:     auth,
		validate: validator.New(),
		config:   config,
		log:      log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	if config.WebhookSecret != "" {
		wh, err := svix.NewWebhook(config.WebhookSecret)
		if err != nil {
			log.WithError(err).Error("webhook secret is malformed, identity webhook disabled")
		} else {
			s.webhook = wh
		}
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.config.CORSOrigins) == 0 {
		return true
	}
	return lo.Contains(s.config.CORSOrigins, "*") || lo.Contains(s.config.CORSOrigins, origin)
}

// Router builds the HTTP API. The websocket endpoint is kept out of the
// request timeout because its connection outlives the handshake.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ws", s.handleWebsocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.config.RequestTimeout))

		r.Post("/api/identity/webhook", s.handleIdentityWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/api/users/me", s.handleMe)
			r.Get("/api/users/search", s.handleSearchUsers)

			r.Post("/api/chats", s.handleCreateChat)
			r.Get("/api/chats", s.handleListChats)
			r.Get("/api/chats/{chatId}", s.handleGetChat)
			r.Post("/api/chats/{chatId}/typing", s.handleTyping)

			r.Post("/api/messages", s.handleSendMessage)
			r.Post("/api/messages/read", s.handleMarkRead)
			r.Get("/api/messages/{chatId}", s.handleGetMessages)

			r.Get("/api/presence", s.handlePresence)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
		}).Debug("handled request")
	})
}

func invalidArgument(message string) error {
	return fmt.Errorf("%w: %s", usecase.ErrInvalidArgument, message)
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		s.respondError(w, r, usecase.ErrAuthenticationRequired)
	}
	return user, ok
}
