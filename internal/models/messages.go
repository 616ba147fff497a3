package models

import (
	"time"

	"github.com/lib/pq"
)

type Message struct {
	MessageID string         `json:"message_id" db:"message_id"`
	Seq       int64          `json:"-" db:"seq"`
	ChatID    string         `json:"chat_id" db:"chat_id"`
	SenderID  string         `json:"sender_id" db:"sender_id"`
	Content   string         `json:"content" db:"content"`
	ReadBy    pq.StringArray `json:"read_by" db:"read_by"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

func (m *Message) IsReadBy(userId string) bool {
	for _, id := range m.ReadBy {
		if id == userId {
			return true
		}
	}
	return false
}

// RichMessage carries the sender identity resolved for display.
type RichMessage struct {
	Message
	Sender *UserPreview `json:"sender,omitempty"`
}

type MessageSend struct {
	ChatID   string `validate:"required,uuid"`
	SenderID string `validate:"required,uuid"`
	Content  string `validate:"required"`
}

type MessagesPage struct {
	Messages []RichMessage `json:"messages"`
	Page     uint64        `json:"page"`
	HasMore  bool          `json:"has_more"`
}
