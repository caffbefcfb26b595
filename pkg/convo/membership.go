package convo

import (
	"parley/pkg/broker"
	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/store"
	"parley/pkg/utils"
	"parley/pkg/validation"
)

// Create starts a conversation. The creator is always included in the
// participant set; initialText, when non-empty, seeds the first message
// authored by the creator. The creator's membership starts read, everyone
// else's unread; non-creators receive conversation:new.
func (s *Service) Create(creator string, participants []string, initialText string) (models.Conversation, error) {
	if err := validation.Participants(participants); err != nil {
		return models.Conversation{}, err
	}

	// dedupe, creator included
	set := map[string]struct{}{}
	final := make([]string, 0, len(participants)+1)
	for _, p := range append([]string{creator}, participants...) {
		if p == "" {
			continue
		}
		if _, dup := set[p]; dup {
			continue
		}
		set[p] = struct{}{}
		final = append(final, p)
	}

	ts := nowTS()
	conv := models.Conversation{
		ID:           utils.GenConvID(),
		Participants: final,
		CreatedBy:    creator,
		CreatedTS:    ts,
		UpdatedTS:    ts,
	}
	if err := store.SaveConversation(conv); err != nil {
		return models.Conversation{}, err
	}

	if initialText != "" {
		msg := models.Message{
			ID:           utils.GenMsgID(),
			Conversation: conv.ID,
			From:         creator,
			Text:         initialText,
			TS:           ts,
			Time:         rfc3339(ts),
		}
		if err := store.AppendMessage(conv.ID, msg); err != nil {
			logger.Warn("seed_message_failed", "conversation", conv.ID, "error", err)
		}
	}

	for _, p := range final {
		m := models.Membership{ConversationID: conv.ID, Unread: p != creator}
		if p == creator {
			m.LastReadTS = ts
		}
		if err := store.SaveMembership(p, m); err != nil {
			logger.Warn("membership_create_failed", "user", p, "conversation", conv.ID, "error", err)
		}
	}

	for _, p := range final {
		if p == creator {
			continue
		}
		s.broker.Publish(p, broker.EventConversationNew, models.ConversationNewEvent{
			Conversation: s.summaryFor(p, conv),
		})
	}
	logger.Info("conversation_created", "conversation", conv.ID, "creator", creator, "participants", len(final))
	return conv, nil
}

// Rename sets or clears the explicit conversation name. An empty name
// falls back to the derived participant-based name at read time.
func (s *Service) Rename(caller, convID, name string) error {
	if err := validation.ConversationName(name); err != nil {
		return err
	}
	conv, err := s.mustParticipant(caller, convID)
	if err != nil {
		return err
	}
	conv.Name = name
	conv.UpdatedTS = nowTS()
	if err := store.SaveConversation(conv); err != nil {
		return err
	}
	n := name
	s.broker.PublishMany(conv.Participants, broker.EventConversationUpdate, models.ConversationUpdateEvent{
		ConversationID: convID,
		Update:         models.ConversationUpdate{Name: &n},
	})
	return nil
}

// AddParticipants adds users to a conversation. Ids already present are
// silently ignored. New members start unread.
func (s *Service) AddParticipants(caller, convID string, ids []string) (models.Conversation, error) {
	if err := validation.Participants(ids); err != nil {
		return models.Conversation{}, err
	}
	conv, err := s.mustParticipant(caller, convID)
	if err != nil {
		return models.Conversation{}, err
	}

	var added []string
	for _, id := range ids {
		if conv.HasParticipant(id) {
			continue
		}
		conv.Participants = append(conv.Participants, id)
		added = append(added, id)
	}
	if len(added) == 0 {
		return conv, nil
	}
	conv.UpdatedTS = nowTS()
	if err := store.SaveConversation(conv); err != nil {
		return models.Conversation{}, err
	}
	// a membership change is unread activity for everyone but the actor;
	// new members get their record created unread by the same pass
	s.markUnreadExcept(conv, caller)
	s.broker.PublishMany(conv.Participants, broker.EventConversationUpdate, models.ConversationUpdateEvent{
		ConversationID: convID,
		Update:         models.ConversationUpdate{Participants: conv.Participants},
	})
	for _, id := range added {
		s.broker.Publish(id, broker.EventConversationNew, models.ConversationNewEvent{
			Conversation: s.summaryFor(id, conv),
		})
	}
	return conv, nil
}

// RemoveParticipant takes target out of the conversation. Removing the
// last remaining participant deletes the conversation outright instead of
// leaving it empty.
func (s *Service) RemoveParticipant(caller, convID, target string) error {
	conv, err := s.mustParticipant(caller, convID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(target) {
		// idempotent-leaning: removing an absent participant is a no-op
		return nil
	}

	remaining := make([]string, 0, len(conv.Participants)-1)
	for _, p := range conv.Participants {
		if p != target {
			remaining = append(remaining, p)
		}
	}

	if len(remaining) == 0 {
		former := conv.Participants
		if err := store.DeleteConversation(convID); err != nil {
			return err
		}
		for _, p := range former {
			if err := store.DeleteMembership(p, convID); err != nil {
				logger.Warn("membership_drop_failed", "user", p, "conversation", convID, "error", err)
			}
		}
		s.broker.PublishMany(former, broker.EventConversationUpdate, models.ConversationUpdateEvent{
			ConversationID: convID,
			Update:         models.ConversationUpdate{Deleted: true},
		})
		logger.Info("conversation_deleted_empty", "conversation", convID)
		return nil
	}

	conv.Participants = remaining
	conv.UpdatedTS = nowTS()
	if err := store.SaveConversation(conv); err != nil {
		return err
	}
	if err := store.DeleteMembership(target, convID); err != nil {
		logger.Warn("membership_drop_failed", "user", target, "conversation", convID, "error", err)
	}
	s.broker.PublishMany(remaining, broker.EventConversationUpdate, models.ConversationUpdateEvent{
		ConversationID: convID,
		Update:         models.ConversationUpdate{Participants: remaining},
	})
	// the removed user's clients drop the conversation on the deleted marker
	s.broker.Publish(target, broker.EventConversationUpdate, models.ConversationUpdateEvent{
		ConversationID: convID,
		Update:         models.ConversationUpdate{Deleted: true},
	})
	return nil
}

// Leave removes the caller from the conversation.
func (s *Service) Leave(caller, convID string) error {
	return s.RemoveParticipant(caller, convID, caller)
}

// MarkRead acknowledges all activity in a conversation for the caller.
// Read state is private; nothing is broadcast and the conversation's
// updated timestamp is untouched. A missing membership record self-heals
// by being created in the read state.
func (s *Service) MarkRead(caller, convID string) error {
	if _, err := s.mustParticipant(caller, convID); err != nil {
		return err
	}
	m, err := store.GetMembership(caller, convID)
	if err != nil {
		m = models.Membership{ConversationID: convID}
	}
	m.Unread = false
	m.LastReadTS = nowTS()
	return store.SaveMembership(caller, m)
}
