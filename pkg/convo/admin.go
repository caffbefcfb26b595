package convo

import (
	"parley/pkg/broker"
	"parley/pkg/directory"
	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/store"
	"parley/pkg/utils"
	"parley/pkg/validation"
)

// BroadcastResult reports partial success of an admin broadcast.
// Per-recipient failures are isolated and counted, never fatal to the
// whole batch.
type BroadcastResult struct {
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
}

// Broadcast delivers a system message to every known user through a
// per-user announcement conversation keyed by (system+user, title). An
// existing conversation with that key gets the message appended; a
// missing one is created with the message as its seed.
func (s *Service) Broadcast(title, text string) (BroadcastResult, error) {
	var res BroadcastResult
	if err := validation.BroadcastTitle(title); err != nil {
		return res, err
	}
	if err := validation.MessageText(text); err != nil {
		return res, err
	}

	for _, u := range s.dir.List() {
		if u.ID == directory.SystemUserID {
			continue
		}
		if err := s.broadcastTo(u.ID, title, text); err != nil {
			logger.Warn("broadcast_recipient_failed", "user", u.ID, "error", err)
			res.ErrorCount++
			continue
		}
		res.SuccessCount++
	}
	logger.Info("broadcast_done", "title", title, "ok", res.SuccessCount, "failed", res.ErrorCount)
	return res, nil
}

func (s *Service) broadcastTo(uid, title, text string) error {
	// directory entries are not trusted to be valid participant ids
	if err := validation.Participants([]string{uid}); err != nil {
		return err
	}
	conv, found, err := s.findAnnouncementConv(uid, title)
	if err != nil {
		return err
	}
	ts := nowTS()

	if !found {
		conv = models.Conversation{
			ID:           utils.GenConvID(),
			Name:         title,
			Participants: []string{directory.SystemUserID, uid},
			CreatedTS:    ts,
			UpdatedTS:    ts,
		}
		if err := store.SaveConversation(conv); err != nil {
			return err
		}
	}

	msg := models.Message{
		ID:           utils.GenMsgID(),
		Conversation: conv.ID,
		From:         directory.SystemUserID,
		Text:         text,
		TS:           ts,
		Time:         rfc3339(ts),
	}
	if err := store.AppendMessage(conv.ID, msg); err != nil {
		return err
	}
	conv.UpdatedTS = ts
	if err := store.SaveConversation(conv); err != nil {
		logger.Warn("conversation_touch_failed", "conversation", conv.ID, "error", err)
	}
	// flag flip, not a record reset: the recipient's lastReadAt survives
	m, merr := store.GetMembership(uid, conv.ID)
	if merr != nil {
		m = models.Membership{ConversationID: conv.ID}
	}
	m.Unread = true
	if err := store.SaveMembership(uid, m); err != nil {
		return err
	}

	msg.SenderUsername = s.dir.Lookup(directory.SystemUserID).Username
	if found {
		s.broker.Publish(uid, broker.EventMessageNew, models.MessageNewEvent{
			ConversationID: conv.ID,
			Message:        msg,
		})
	} else {
		s.broker.Publish(uid, broker.EventConversationNew, models.ConversationNewEvent{
			Conversation: s.summaryFor(uid, conv),
		})
	}
	return nil
}

// findAnnouncementConv looks for the user's existing system conversation
// with the given title.
func (s *Service) findAnnouncementConv(uid, title string) (models.Conversation, bool, error) {
	ms, err := store.ListMemberships(uid)
	if err != nil {
		return models.Conversation{}, false, err
	}
	for _, m := range ms {
		conv, err := store.GetConversation(m.ConversationID)
		if err != nil {
			continue
		}
		if conv.Name != title || len(conv.Participants) != 2 {
			continue
		}
		if conv.HasParticipant(directory.SystemUserID) && conv.HasParticipant(uid) {
			return conv, true, nil
		}
	}
	return models.Conversation{}, false, nil
}

// PurgeAll deletes every conversation and every membership record. No
// per-conversation events are published; clients refetch on next load.
func (s *Service) PurgeAll() error {
	if err := store.PurgeConversations(); err != nil {
		return err
	}
	return store.PurgeMemberships()
}

// Stats summarizes the store and broker for the admin console.
type Stats struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
	KnownUsers    int `json:"known_users"`
	OnlineUsers   int `json:"online_users"`
}

func (s *Service) Stats() (Stats, error) {
	ids, err := store.ListConversationIDs()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Conversations: len(ids),
		KnownUsers:    len(s.dir.List()),
		OnlineUsers:   s.broker.Users(),
	}
	for _, id := range ids {
		n, err := store.CountMessages(id)
		if err != nil {
			logger.Warn("stats_count_failed", "conversation", id, "error", err)
			continue
		}
		st.Messages += n
	}
	return st, nil
}
