package models

// Conversation is the stored conversation metadata. Messages live under
// separate keys in append order and are not embedded here.
type Conversation struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Participants []string `json:"participants"`
	// CreatedBy is empty for system-originated conversations.
	CreatedBy string `json:"created_by,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Updated timestamp (ns) - last message append, rename or membership change
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}

// HasParticipant reports whether uid is in the participant set.
func (c *Conversation) HasParticipant(uid string) bool {
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// ConversationSummary is the read-time view of a conversation: stored
// fields plus derived name, last-message preview and the caller's unread
// flag. None of the derived fields are persisted.
type ConversationSummary struct {
	Conversation
	DisplayName     string `json:"display_name"`
	LastMessage     string `json:"last_message"`
	LastMessageTime string `json:"last_message_time"`
	Unread          bool   `json:"unread"`
}

// ConversationUpdate is the partial-update payload carried by
// conversation:update events. Nil fields were not changed.
type ConversationUpdate struct {
	Name         *string  `json:"name,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Deleted      bool     `json:"deleted,omitempty"`
}
