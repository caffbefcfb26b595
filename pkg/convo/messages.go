package convo

import (
	"parley/pkg/apperr"
	"parley/pkg/broker"
	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/store"
	"parley/pkg/utils"
	"parley/pkg/validation"
)

// Append adds a message to a conversation on behalf of from. If parentID
// is set the referenced message must exist in the same conversation.
// Every participant, the sender included, receives message:new so other
// devices of the sender stay in sync.
func (s *Service) Append(from, convID, text, parentID string) (models.Message, error) {
	if err := validation.MessageText(text); err != nil {
		return models.Message{}, err
	}
	conv, err := s.mustParticipant(from, convID)
	if err != nil {
		return models.Message{}, err
	}
	if parentID != "" {
		if _, err := store.GetMessage(convID, parentID); err != nil {
			if store.IsNotFound(err) {
				return models.Message{}, apperr.NotFound("parent message %s not found", parentID)
			}
			return models.Message{}, err
		}
	}

	ts := nowTS()
	msg := models.Message{
		ID:           utils.GenMsgID(),
		Conversation: convID,
		From:         from,
		Text:         text,
		TS:           ts,
		Time:         rfc3339(ts),
		ParentID:     parentID,
	}
	if err := store.AppendMessage(convID, msg); err != nil {
		return models.Message{}, err
	}

	conv.UpdatedTS = ts
	if err := store.SaveConversation(conv); err != nil {
		logger.Warn("conversation_touch_failed", "conversation", convID, "error", err)
	}

	s.markUnreadExcept(conv, from)

	msg.SenderUsername = s.dir.Lookup(from).Username
	s.broker.PublishMany(conv.Participants, broker.EventMessageNew, models.MessageNewEvent{
		ConversationID: convID,
		Message:        msg,
	})
	return msg, nil
}

// Reply appends a threaded reply; the parent is required and must exist.
func (s *Service) Reply(from, convID, parentID, text string) (models.Message, error) {
	if parentID == "" {
		return models.Message{}, apperr.Validation("parent message id required")
	}
	return s.Append(from, convID, text, parentID)
}

// DeleteMessage removes one message. Only the author may delete their own
// message; replies referencing it keep their dangling parent reference.
func (s *Service) DeleteMessage(caller, convID, msgID string) error {
	conv, err := s.mustParticipant(caller, convID)
	if err != nil {
		return err
	}
	msg, err := store.GetMessage(convID, msgID)
	if err != nil {
		if store.IsNotFound(err) {
			return apperr.NotFound("message %s not found", msgID)
		}
		return err
	}
	if msg.From != caller {
		return apperr.Forbidden("only the author may delete a message")
	}
	if err := store.DeleteMessage(convID, msgID); err != nil {
		return err
	}
	s.broker.PublishMany(conv.Participants, broker.EventMessageDeleted, models.MessageDeletedEvent{
		ConversationID: convID,
		MessageID:      msgID,
	})
	return nil
}
