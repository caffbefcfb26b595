// Package convo is the orchestration layer tying the stores and the
// broker together. It is the only place where cross-entity invariants are
// enforced: participant checks, membership dual writes and event fan-out
// all happen here. Storage sub-steps after the primary write are best
// effort; a failed membership update is logged and skipped, never rolled
// back.
package convo

import (
	"time"

	"parley/pkg/apperr"
	"parley/pkg/broker"
	"parley/pkg/directory"
	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/store"
)

// Service orchestrates conversation, membership and message state. The
// broker and directory are injected at construction so the core runs in
// tests without a live socket stack.
type Service struct {
	broker *broker.Broker
	dir    directory.Directory
}

func New(b *broker.Broker, d directory.Directory) *Service {
	return &Service{broker: b, dir: d}
}

func nowTS() int64 { return time.Now().UTC().UnixNano() }

func rfc3339(ts int64) string {
	return time.Unix(0, ts).UTC().Format(time.RFC3339)
}

// Get returns the full conversation with its messages. The caller must be
// a participant.
func (s *Service) Get(caller, convID string) (models.Conversation, []models.Message, error) {
	conv, err := s.mustParticipant(caller, convID)
	if err != nil {
		return models.Conversation{}, nil, err
	}
	msgs, err := store.ListMessages(convID)
	if err != nil {
		return models.Conversation{}, nil, err
	}
	for i := range msgs {
		msgs[i].SenderUsername = s.dir.Lookup(msgs[i].From).Username
	}
	return conv, msgs, nil
}

// ListForUser returns conversation summaries for every conversation the
// user belongs to, driven by the membership index. Participant membership
// is re-checked against the stored conversation rather than trusted from
// the index alone; stale index entries are dropped on sight.
func (s *Service) ListForUser(uid string) ([]models.ConversationSummary, error) {
	ms, err := store.ListMemberships(uid)
	if err != nil {
		return nil, err
	}
	out := make([]models.ConversationSummary, 0, len(ms))
	for _, m := range ms {
		conv, err := store.GetConversation(m.ConversationID)
		if store.IsNotFound(err) {
			// conversation deleted but the index write was missed
			if derr := store.DeleteMembership(uid, m.ConversationID); derr != nil {
				logger.Warn("stale_membership_cleanup_failed", "user", uid, "conversation", m.ConversationID, "error", derr)
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if !conv.HasParticipant(uid) {
			logger.Warn("membership_participant_mismatch", "user", uid, "conversation", m.ConversationID)
			continue
		}
		out = append(out, s.summarize(conv, m))
	}
	return out, nil
}

// HasAnyUnread reports whether any of the user's conversations carries
// unread activity.
func (s *Service) HasAnyUnread(uid string) (bool, error) {
	return store.HasAnyUnreadConversation(uid)
}

// summarize renders the per-user read view of a conversation.
func (s *Service) summarize(conv models.Conversation, m models.Membership) models.ConversationSummary {
	sum := models.ConversationSummary{
		Conversation: conv,
		DisplayName:  s.displayName(conv),
		Unread:       m.Unread,
	}
	last, err := store.LastMessage(conv.ID)
	if err == nil {
		sum.LastMessage = last.Text
		sum.LastMessageTime = last.Time
	} else {
		if !store.IsNotFound(err) {
			logger.Warn("last_message_lookup_failed", "conversation", conv.ID, "error", err)
		}
		sum.LastMessage = ""
		sum.LastMessageTime = rfc3339(conv.UpdatedTS)
	}
	return sum
}

// summaryFor builds a recipient-specific summary, tolerating a missing
// membership record (treated as read).
func (s *Service) summaryFor(uid string, conv models.Conversation) models.ConversationSummary {
	m, err := store.GetMembership(uid, conv.ID)
	if err != nil {
		m = models.Membership{ConversationID: conv.ID}
	}
	return s.summarize(conv, m)
}

// displayName returns the stored name, falling back to comma-joined
// participant usernames.
func (s *Service) displayName(conv models.Conversation) string {
	if conv.Name != "" {
		return conv.Name
	}
	name := ""
	for i, p := range conv.Participants {
		if i > 0 {
			name += ", "
		}
		name += s.dir.Lookup(p).Username
	}
	return name
}

// mustParticipant loads a conversation and verifies the caller belongs to
// it. Absent conversations map to NotFound, non-members to Forbidden.
func (s *Service) mustParticipant(caller, convID string) (models.Conversation, error) {
	conv, err := store.GetConversation(convID)
	if store.IsNotFound(err) {
		return conv, apperr.NotFound("conversation %s not found", convID)
	}
	if err != nil {
		return conv, err
	}
	if !conv.HasParticipant(caller) {
		return conv, apperr.Forbidden("not a participant of conversation %s", convID)
	}
	return conv, nil
}

// markUnreadExcept flips the unread flag for every participant but the
// actor. Failures are logged and skipped; read-state is best effort.
func (s *Service) markUnreadExcept(conv models.Conversation, actor string) {
	for _, p := range conv.Participants {
		if p == actor {
			continue
		}
		m, err := store.GetMembership(p, conv.ID)
		if err != nil {
			m = models.Membership{ConversationID: conv.ID}
		}
		m.Unread = true
		if err := store.SaveMembership(p, m); err != nil {
			logger.Warn("mark_unread_failed", "user", p, "conversation", conv.ID, "error", err)
		}
	}
}
