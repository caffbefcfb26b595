package models

// Membership is one per-user, per-conversation read-state record. A user
// has at most one record per conversation id; the service keeps these in
// sync with Conversation.Participants on every membership change.
type Membership struct {
	ConversationID string `json:"conversation_id"`
	Unread         bool   `json:"unread"`
	// LastReadTS is the last acknowledgment time (ns); zero until the user
	// first marks the conversation read.
	LastReadTS int64 `json:"last_read_ts,omitempty"`
}
