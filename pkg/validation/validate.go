package validation

import (
	"strings"

	"parley/pkg/apperr"
	"parley/pkg/models"
)

// Limits drives request validation. Populated once at startup from
// configuration, mirroring how handlers elsewhere read package state.
type Limits struct {
	MaxMessageBytes  int
	MaxNameBytes     int
	MaxParticipants  int
	MaxTitleBytes    int
	NotificationPage int
}

var limits = Limits{
	MaxMessageBytes:  4096,
	MaxNameBytes:     256,
	MaxParticipants:  64,
	MaxTitleBytes:    256,
	NotificationPage: 10,
}

func SetLimits(l Limits) {
	if l.MaxMessageBytes > 0 {
		limits.MaxMessageBytes = l.MaxMessageBytes
	}
	if l.MaxNameBytes > 0 {
		limits.MaxNameBytes = l.MaxNameBytes
	}
	if l.MaxParticipants > 0 {
		limits.MaxParticipants = l.MaxParticipants
	}
	if l.MaxTitleBytes > 0 {
		limits.MaxTitleBytes = l.MaxTitleBytes
	}
	if l.NotificationPage > 0 {
		limits.NotificationPage = l.NotificationPage
	}
}

// NotificationPageSize returns the configured cap on surfaced
// notifications.
func NotificationPageSize() int { return limits.NotificationPage }

// MessageText validates the body of a message to be sent.
func MessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperr.Validation("message text required")
	}
	if len(text) > limits.MaxMessageBytes {
		return apperr.Validation("message text exceeds %d bytes", limits.MaxMessageBytes)
	}
	return nil
}

// ConversationName validates an explicit conversation name. Empty is
// allowed; the display name is then derived from participants.
func ConversationName(name string) error {
	if len(name) > limits.MaxNameBytes {
		return apperr.Validation("conversation name exceeds %d bytes", limits.MaxNameBytes)
	}
	return nil
}

// Participants validates a participant id list for create or add.
// Duplicates are not an error; callers dedupe, keeping the operations
// idempotent-leaning.
func Participants(ids []string) error {
	if len(ids) == 0 {
		return apperr.Validation("at least one participant required")
	}
	if len(ids) > limits.MaxParticipants {
		return apperr.Validation("too many participants: %d > %d", len(ids), limits.MaxParticipants)
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return apperr.Validation("participant id must not be empty")
		}
		if len(id) > 128 {
			return apperr.Validation("participant id too long")
		}
	}
	return nil
}

// Notification validates an outgoing notification.
func Notification(n models.Notification) error {
	if strings.TrimSpace(n.Title) == "" {
		return apperr.Validation("notification title required")
	}
	if len(n.Title) > limits.MaxTitleBytes {
		return apperr.Validation("notification title exceeds %d bytes", limits.MaxTitleBytes)
	}
	if n.Icon != "" && !models.ValidIcon(n.Icon) {
		return apperr.Validation("unknown notification icon: %s", n.Icon)
	}
	return nil
}

// BroadcastTitle validates an announcement title used to find or create
// the per-user announcement conversation.
func BroadcastTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return apperr.Validation("broadcast title required")
	}
	if len(title) > limits.MaxTitleBytes {
		return apperr.Validation("broadcast title exceeds %d bytes", limits.MaxTitleBytes)
	}
	return nil
}
