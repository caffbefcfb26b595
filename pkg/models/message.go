package models

// Message is one entry in a conversation's append-only sequence.
type Message struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation"`
	From         string `json:"from"`
	Text         string `json:"message"`
	// TS orders messages within a conversation (ns); Time is the same
	// instant rendered RFC3339 for clients.
	TS   int64  `json:"ts"`
	Time string `json:"time"`
	// ParentID references another message in the same conversation for
	// threaded replies. A dangling reference after the parent's deletion is
	// tolerated by readers.
	ParentID string `json:"parent_message_id,omitempty"`
	// SenderUsername is resolved from the directory at read/push time,
	// never stored.
	SenderUsername string `json:"sender_username,omitempty"`
}
