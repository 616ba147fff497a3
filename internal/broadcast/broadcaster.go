package broadcast

import (
	"context"
	"time"

	"github.com/practice-sem-2/chat-service/internal/models"
	"github.com/sirupsen/logrus"
)

const defaultPublishTimeout = 5 * time.Second

// Broadcaster turns domain changes into topic events. Publishing is best
// effort: failures are logged and never reported to the caller, because the
// store already holds the authoritative state.
type Broadcaster struct {
	publisher Publisher
	log       logrus.FieldLogger
	timeout   time.Duration
}

func NewBroadcaster(p Publisher, log logrus.FieldLogger) *Broadcaster {
	return &Broadcaster{
		publisher: p,
		log:       log,
		timeout:   defaultPublishTimeout,
	}
}

func (b *Broadcaster) WithTimeout(timeout time.Duration) *Broadcaster {
	b.timeout = timeout
	return b
}

func (b *Broadcaster) publish(ctx context.Context, topic, event string, payload interface{}) {
	// The write this event describes is already committed, so a request that
	// gets cancelled now must not suppress the notification.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	if err := b.publisher.Publish(ctx, topic, event, payload); err != nil {
		b.log.
			WithError(err).
			WithFields(logrus.Fields{"topic": topic, "event": event}).
			Warn("broadcast failed")
	}
}

// IncomingMessage announces a persisted message on its chat topic.
func (b *Broadcaster) IncomingMessage(ctx context.Context, msg *models.RichMessage) {
	b.publish(ctx, ChatTopic(msg.ChatID), EventIncomingMessage, msg)
}

// SidebarUpdate tells every participant, sender included, that the chat
// got a new latest message.
func (b *Broadcaster) SidebarUpdate(ctx context.Context, participants []string, msg *models.RichMessage, at time.Time) {
	update := &models.SidebarUpdate{
		ChatID:        msg.ChatID,
		LatestMessage: msg,
		UpdatedAt:     at,
	}
	for _, userId := range participants {
		b.publish(ctx, UserTopic(userId), EventSidebarUpdate, update)
	}
}

func (b *Broadcaster) MessagesRead(ctx context.Context, chatId, readerId string) {
	b.publish(ctx, ChatTopic(chatId), EventMessagesRead, &models.MessagesRead{
		ChatID:   chatId,
		ReaderID: readerId,
	})
}

func (b *Broadcaster) Typing(ctx context.Context, chatId, userId string, typing bool) {
	event := EventStopTyping
	if typing {
		event = EventTyping
	}
	b.publish(ctx, ChatTopic(chatId), event, &models.TypingState{
		ChatID: chatId,
		UserID: userId,
	})
}
