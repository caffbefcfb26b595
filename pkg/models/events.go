package models

// Socket event payloads. The broker carries these as the data field of a
// named event; the client reconciliation layer decodes them back.

// MessageNewEvent accompanies message:new.
type MessageNewEvent struct {
	ConversationID string  `json:"conversation_id"`
	Message        Message `json:"message"`
}

// MessageDeletedEvent accompanies message:deleted.
type MessageDeletedEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// ConversationNewEvent accompanies conversation:new. The summary is
// rendered for the recipient, so unread and display name are per-user.
type ConversationNewEvent struct {
	Conversation ConversationSummary `json:"conversation"`
}

// ConversationUpdateEvent accompanies conversation:update.
type ConversationUpdateEvent struct {
	ConversationID string             `json:"conversation_id"`
	Update         ConversationUpdate `json:"update"`
}

// NotificationNewEvent accompanies notification:new.
type NotificationNewEvent struct {
	Notification Notification `json:"notification"`
}

// NotificationUpdateEvent accompanies notification:update. NotificationID
// is "all" when every notification was marked read at once.
type NotificationUpdateEvent struct {
	NotificationID string `json:"notification_id"`
	Unread         bool   `json:"unread"`
}
