package models

import "time"

type MessagesRead struct {
	ChatID   string `json:"chat_id"`
	ReaderID string `json:"reader_id"`
}

type TypingState struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

type SidebarUpdate struct {
	ChatID        string       `json:"chat_id"`
	LatestMessage *RichMessage `json:"latest_message"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type ReadResult struct {
	UpdatedCount int64 `json:"updated_count"`
}

type PresenceUserInfo struct {
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}

// PresenceMember describes one online user on a presence topic.
type PresenceMember struct {
	UserID   string            `json:"user_id"`
	UserInfo *PresenceUserInfo `json:"user_info,omitempty"`
}
