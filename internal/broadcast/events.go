package broadcast

import "strings"

const (
	EventIncomingMessage = "incoming-message"
	EventMessagesRead    = "messages-read"
	EventTyping          = "typing"
	EventStopTyping      = "stop-typing"
	EventSidebarUpdate   = "sidebar-update"

	EventSubscriptionSucceeded = "subscription-succeeded"
	EventMemberAdded           = "member-added"
	EventMemberRemoved         = "member-removed"
	EventSubscriptionError     = "subscription-error"
	EventError                 = "error"
)

const (
	chatTopicPrefix     = "chat-"
	userTopicPrefix     = "user-"
	presenceTopicPrefix = "presence-"

	// PresenceTopic is the topic every connected client joins to be seen online.
	PresenceTopic = presenceTopicPrefix + "online"
)

func ChatTopic(chatId string) string {
	return chatTopicPrefix + chatId
}

func UserTopic(userId string) string {
	return userTopicPrefix + userId
}

// ChatIDFromTopic returns the chat id of a chat-{id} topic.
func ChatIDFromTopic(topic string) (string, bool) {
	return cutPrefix(topic, chatTopicPrefix)
}

// UserIDFromTopic returns the user id of a user-{id} topic.
func UserIDFromTopic(topic string) (string, bool) {
	return cutPrefix(topic, userTopicPrefix)
}

func IsPresenceTopic(topic string) bool {
	return strings.HasPrefix(topic, presenceTopicPrefix) && len(topic) > len(presenceTopicPrefix)
}

func cutPrefix(topic, prefix string) (string, bool) {
	id, ok := strings.CutPrefix(topic, prefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
