package models

import "time"

type Chat struct {
	ChatID          string    `json:"chat_id" db:"chat_id"`
	IsGroup         bool      `json:"is_group" db:"is_group"`
	DisplayName     *string   `json:"display_name,omitempty" db:"display_name"`
	PairKey         *string   `json:"-" db:"pair_key"`
	LatestMessageID *string   `json:"latest_message_id,omitempty" db:"latest_message_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

type ChatMember struct {
	UserID string `json:"user_id" db:"user_id"`
}

type ChatWithMembers struct {
	Chat
	Members []ChatMember `json:"members"`
}

func (c *ChatWithMembers) ParticipantIDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.UserID
	}
	return ids
}

func (c *ChatWithMembers) HasMember(userId string) bool {
	for _, m := range c.Members {
		if m.UserID == userId {
			return true
		}
	}
	return false
}

// RichChat is a chat with participants and the latest message resolved,
// the shape the sidebar renders.
type RichChat struct {
	Chat
	Participants  []UserPreview `json:"participants"`
	LatestMessage *RichMessage  `json:"latest_message,omitempty"`
}
