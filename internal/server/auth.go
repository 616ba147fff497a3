package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/practice-sem-2/chat-service/internal/models"
	usecase "github.com/practice-sem-2/chat-service/internal/usecases"
)

type contextKey struct {
	name string
}

var userContextKey = &contextKey{"user"}

// UserResolver maps the token subject to the local user.
type UserResolver interface {
	GetByExternalID(ctx context.Context, externalId string) (*models.User, error)
}

// Authenticator verifies bearer tokens issued by the identity provider. The
// token subject is the user's external auth id.
type Authenticator struct {
	users   UserResolver
	key     interface{}
	methods []string
}

func NewHMACAuthenticator(users UserResolver, secret []byte) *Authenticator {
	return &Authenticator{
		users:   users,
		key:     secret,
		methods: []string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()},
	}
}

// NewRSAAuthenticatorFromFile reads a PEM encoded RSA public key.
func NewRSAAuthenticatorFromFile(users UserResolver, path string) (*Authenticator, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		users:   users,
		key:     key,
		methods: []string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodRS384.Alg(), jwt.SigningMethodRS512.Alg()},
	}, nil
}

// Subject validates token and returns its subject.
func (a *Authenticator) Subject(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.key, nil
	}, jwt.WithValidMethods(a.methods), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", usecase.ErrAuthenticationRequired, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", usecase.ErrAuthenticationRequired)
	}
	return claims.Subject, nil
}

// Authenticate resolves the caller of r. The token is taken from the
// Authorization header or, for websocket handshakes, the token query param.
func (a *Authenticator) Authenticate(r *http.Request) (*models.User, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, usecase.ErrAuthenticationRequired
	}

	subject, err := a.Subject(token)
	if err != nil {
		return nil, err
	}

	user, err := a.users.GetByExternalID(r.Context(), subject)
	if errors.Is(err, usecase.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown user", usecase.ErrAuthenticationRequired)
	}
	return user, err
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Authenticate(r)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CurrentUser returns the user authenticated for ctx.
func CurrentUser(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok && user != nil
}
