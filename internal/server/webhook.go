package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/practice-sem-2/chat-service/internal/models"
	usecase "github.com/practice-sem-2/chat-service/internal/usecases"
	"github.com/sirupsen/logrus"
)

const (
	maxWebhookBody = 1 << 20

	identityUserCreated = "user.created"
	identityUserDeleted = "user.deleted"
)

var webhookHeaders = []string{"svix-id", "svix-timestamp", "svix-signature"}

type identityEvent struct {
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data" validate:"required"`
}

type identityEmail struct {
	EmailAddress string `json:"email_address"`
}

type identityPhone struct {
	PhoneNumber string `json:"phone_number"`
}

// identityUser is the user object of the identity provider.
type identityUser struct {
	ID             string          `json:"id"`
	FirstName      *string         `json:"first_name"`
	LastName       *string         `json:"last_name"`
	EmailAddresses []identityEmail `json:"email_addresses"`
	PhoneNumbers   []identityPhone `json:"phone_numbers"`
	Birthday       string          `json:"birthday"`
	ImageURL       string          `json:"image_url"`
}

type identityDeleted struct {
	ID string `json:"id" validate:"required"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseBirthday(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// Identity converts the provider's user into what the mirror stores. The
// first email address and phone number win.
func (u identityUser) Identity() models.IdentityUser {
	identity := models.IdentityUser{
		ExternalAuthID: u.ID,
		Name:           strings.TrimSpace(deref(u.FirstName) + " " + deref(u.LastName)),
		Dob:            parseBirthday(u.Birthday),
	}
	if len(u.EmailAddresses) > 0 {
		identity.Email = u.EmailAddresses[0].EmailAddress
	}
	if len(u.PhoneNumbers) > 0 && u.PhoneNumbers[0].PhoneNumber != "" {
		identity.Phone = &u.PhoneNumbers[0].PhoneNumber
	}
	if u.ImageURL != "" {
		identity.AvatarURL = &u.ImageURL
	}
	return identity
}

// handleIdentityWebhook mirrors users created or deleted in the identity
// provider. Deliveries are signed with svix. Unknown event types are
// acknowledged and ignored.
func (s *Server) handleIdentityWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhook == nil {
		respondMessage(w, http.StatusServiceUnavailable, "webhook is not configured")
		return
	}

	for _, header := range webhookHeaders {
		if r.Header.Get(header) == "" {
			s.respondError(w, r, invalidArgument("missing svix headers"))
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.respondError(w, r, invalidArgument("can't read body"))
		return
	}

	if err := s.webhook.Verify(body, r.Header); err != nil {
		s.log.WithError(err).Warn("webhook verification failed")
		s.respondError(w, r, usecase.ErrAuthenticationRequired)
		return
	}

	var event identityEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.respondError(w, r, invalidArgument("malformed event"))
		return
	}
	if err := s.validate.Struct(&event); err != nil {
		s.respondError(w, r, invalidArgument(err.Error()))
		return
	}

	log := s.log.WithFields(logrus.Fields{
		"event_type": event.Type,
		"svix_id":    r.Header.Get("svix-id"),
	})

	switch event.Type {
	case identityUserCreated:
		var payload identityUser
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			s.respondError(w, r, invalidArgument("malformed user"))
			return
		}
		user, created, err := s.users.UpsertFromIdentity(r.Context(), payload.Identity())
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		log.WithFields(logrus.Fields{"user_id": user.UserID, "created": created}).Info("identity user mirrored")
		if created {
			respond(w, http.StatusCreated, user)
		} else {
			respond(w, http.StatusOK, user)
		}

	case identityUserDeleted:
		var deleted identityDeleted
		if err := json.Unmarshal(event.Data, &deleted); err != nil {
			s.respondError(w, r, invalidArgument("malformed user"))
			return
		}
		if err := s.validate.Struct(&deleted); err != nil {
			s.respondError(w, r, invalidArgument(err.Error()))
			return
		}
		err := s.users.DeleteByExternalID(r.Context(), deleted.ID)
		if err != nil && !errors.Is(err, usecase.ErrNotFound) {
			s.respondError(w, r, err)
			return
		}
		log.WithField("external_auth_id", deleted.ID).Info("identity user removed")
		respondMessage(w, http.StatusOK, "ok")

	default:
		log.Debug("ignoring identity event")
		respondMessage(w, http.StatusOK, "ignored")
	}
}
