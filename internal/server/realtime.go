package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/practice-sem-2/chat-service/internal/broadcast"
	"github.com/practice-sem-2/chat-service/internal/models"
	usecase "github.com/practice-sem-2/chat-service/internal/usecases"
	"github.com/sirupsen/logrus"
)

const (
	frameSubscribe        = "subscribe"
	frameUnsubscribe      = "unsubscribe"
	frameClientTyping     = "client-typing"
	frameClientStopTyping = "client-stop-typing"
)

// clientFrame is what a websocket client may send.
type clientFrame struct {
	Type   string `json:"type"`
	Topic  string `json:"topic,omitempty"`
	ChatID string `json:"chat_id,omitempty"`
}

type frameError struct {
	Message string `json:"message"`
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.Authenticate(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the response.
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	sess := broadcast.NewSession(user.UserID, ws).WithUserInfo(&models.PresenceUserInfo{
		Name:   user.Name,
		Avatar: user.AvatarURL,
	})
	sess.Start()

	log := s.log.WithFields(logrus.Fields{"session_id": sess.ID(), "user_id": user.UserID})
	log.Debug("websocket session opened")

	defer func() {
		s.hub.Detach(sess)
		sess.Close(websocket.CloseNormalClosure, "")
		log.Debug("websocket session closed")
	}()

	// The handshake request context is done once the handler returns, and
	// frames must keep working until then without its deadline.
	base := context.WithoutCancel(r.Context())

	for {
		data, err := sess.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("websocket read failed")
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendFrame(sess, "", broadcast.EventError, &frameError{Message: "malformed frame"})
			continue
		}

		ctx, cancel := context.WithTimeout(base, s.config.RequestTimeout)
		s.handleClientFrame(ctx, sess, frame, log)
		cancel()
	}
}

func (s *Server) handleClientFrame(ctx context.Context, sess *broadcast.Session, frame clientFrame, log logrus.FieldLogger) {
	switch frame.Type {
	case frameSubscribe:
		if err := s.authorizeTopic(ctx, sess.UserID(), frame.Topic); err != nil {
			_, message := errorStatus(err)
			s.sendFrame(sess, frame.Topic, broadcast.EventSubscriptionError, &frameError{Message: message})
			return
		}
		if err := s.hub.Subscribe(sess, frame.Topic); err != nil {
			log.WithError(err).WithField("topic", frame.Topic).Debug("subscribe failed")
		}

	case frameUnsubscribe:
		s.hub.Unsubscribe(sess, frame.Topic)

	case frameClientTyping, frameClientStopTyping:
		err := s.messages.Typing(ctx, frame.ChatID, sess.UserID(), frame.Type == frameClientTyping)
		if err != nil {
			_, message := errorStatus(err)
			s.sendFrame(sess, broadcast.ChatTopic(frame.ChatID), broadcast.EventError, &frameError{Message: message})
		}

	default:
		s.sendFrame(sess, frame.Topic, broadcast.EventError, &frameError{Message: fmt.Sprintf("unknown frame type %q", frame.Type)})
	}
}

// authorizeTopic decides whether userId may listen on topic: chat topics
// are open to participants, user topics to their owner and presence topics
// to everybody.
func (s *Server) authorizeTopic(ctx context.Context, userId, topic string) error {
	if chatId, ok := broadcast.ChatIDFromTopic(topic); ok {
		return s.chats.EnsureMember(ctx, chatId, userId)
	}
	if owner, ok := broadcast.UserIDFromTopic(topic); ok {
		if owner != userId {
			return usecase.ErrPermissionDenied
		}
		return nil
	}
	if broadcast.IsPresenceTopic(topic) {
		return nil
	}
	return invalidArgument("unknown topic")
}

func (s *Server) sendFrame(sess *broadcast.Session, topic, event string, payload interface{}) {
	bytes, err := broadcast.EncodeFrame(topic, event, payload)
	if err == nil {
		err = sess.Send(bytes)
	}
	if err != nil && !errors.Is(err, broadcast.ErrSessionClosed) {
		s.log.WithError(err).WithField("session_id", sess.ID()).Debug("can't send frame")
	}
}
