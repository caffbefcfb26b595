package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"parley/pkg/logger"
	"parley/pkg/models"
)

// SaveConversation stores conversation metadata under its reserved key.
func SaveConversation(c models.Conversation) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	b, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal conversation")
	}
	if err := db.Set([]byte(convMetaKey(c.ID)), b, pebble.Sync); err != nil {
		logger.Error("save_conversation_failed", "conversation", c.ID, "error", err)
		return err
	}
	convWrites.Inc()
	return nil
}

// GetConversation returns the stored metadata for a conversation id.
func GetConversation(convID string) (models.Conversation, error) {
	var c models.Conversation
	if db == nil {
		return c, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(convMetaKey(convID)))
	if err != nil {
		return c, errors.Wrapf(err, "conversation %s", convID)
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &c); err != nil {
		return c, errors.Wrap(err, "invalid conversation metadata")
	}
	return c, nil
}

// DeleteConversation removes the conversation metadata, all of its
// messages and the message id index.
func DeleteConversation(convID string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	wb := new(pebble.Batch)
	wb.Delete([]byte(convMetaKey(convID)), nil)
	wb.DeleteRange([]byte(msgPrefix(convID)), prefixUpperBound(msgPrefix(convID)), nil)
	idxPfx := "conv:" + convID + ":msgid:"
	wb.DeleteRange([]byte(idxPfx), prefixUpperBound(idxPfx), nil)
	if err := db.Apply(wb, pebble.Sync); err != nil {
		logger.Error("delete_conversation_failed", "conversation", convID, "error", err)
		return err
	}
	logger.Info("conversation_deleted", "conversation", convID)
	return nil
}

// AppendMessage appends a message to a conversation by inserting a new key
// with a sortable timestamp prefix and indexes it by message id so it can
// be looked up and removed individually. The message key and the id index
// are written in a single batch, so a concurrent append can interleave
// with this one but never observe a half-written message.
func AppendMessage(convID string, msg models.Message) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if msg.TS == 0 {
		msg.TS = time.Now().UTC().UnixNano()
	}
	n := nextSeq()
	key := msgKey(convID, msg.TS, n)

	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}

	wb := new(pebble.Batch)
	wb.Set([]byte(key), data, nil)
	wb.Set([]byte(msgIDKey(convID, msg.ID)), []byte(key), nil)
	if err := db.Apply(wb, pebble.Sync); err != nil {
		logger.Error("append_message_failed", "conversation", convID, "key", key, "error", err)
		return err
	}
	msgWrites.Inc()
	logger.Debug("message_appended", "conversation", convID, "msg_id", msg.ID)
	return nil
}

// ListMessages returns all messages of a conversation in append order.
func ListMessages(convID string) ([]models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte(msgPrefix(convID))
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Warn("skip_invalid_message", "conversation", convID, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// LastMessage returns the newest message of a conversation, or ErrNotFound
// when the conversation has no messages.
func LastMessage(convID string) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := msgPrefix(convID)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return m, err
	}
	defer iter.Close()
	if !iter.SeekLT(prefixUpperBound(prefix)) || !bytes.HasPrefix(iter.Key(), []byte(prefix)) {
		return m, errors.Wrapf(ErrNotFound, "no messages in %s", convID)
	}
	if err := json.Unmarshal(iter.Value(), &m); err != nil {
		return m, errors.Wrap(err, "invalid stored message")
	}
	return m, iter.Error()
}

// GetMessage resolves a message by id within a conversation.
func GetMessage(convID, msgID string) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, fmt.Errorf("pebble not opened; call store.Open first")
	}
	key, closer, err := db.Get([]byte(msgIDKey(convID, msgID)))
	if err != nil {
		return m, errors.Wrapf(err, "message %s", msgID)
	}
	seqKey := append([]byte(nil), key...)
	closer.Close()
	v, closer, err := db.Get(seqKey)
	if err != nil {
		return m, errors.Wrapf(err, "message body %s", msgID)
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &m); err != nil {
		return m, errors.Wrap(err, "invalid stored message")
	}
	return m, nil
}

// DeleteMessage removes exactly one message and its id index entry.
// Replies referencing the removed message keep their parent reference;
// readers treat it as an unknown parent.
func DeleteMessage(convID, msgID string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	key, closer, err := db.Get([]byte(msgIDKey(convID, msgID)))
	if err != nil {
		return errors.Wrapf(err, "message %s", msgID)
	}
	seqKey := append([]byte(nil), key...)
	closer.Close()

	wb := new(pebble.Batch)
	wb.Delete(seqKey, nil)
	wb.Delete([]byte(msgIDKey(convID, msgID)), nil)
	if err := db.Apply(wb, pebble.Sync); err != nil {
		logger.Error("delete_message_failed", "conversation", convID, "msg_id", msgID, "error", err)
		return err
	}
	logger.Info("message_deleted", "conversation", convID, "msg_id", msgID)
	return nil
}

// CountMessages returns the number of stored messages in a conversation.
func CountMessages(convID string) (int, error) {
	msgs, err := ListMessages(convID)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// ListConversationIDs returns the ids of every stored conversation.
func ListConversationIDs() ([]string, error) {
	keys, err := ListKeys("conv:")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		// conv:<id>:meta
		if len(k) > 10 && k[len(k)-5:] == ":meta" {
			out = append(out, k[5:len(k)-5])
		}
	}
	return out, nil
}

// PurgeConversations deletes every conversation, message and message index
// entry in one range delete.
func PurgeConversations() error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.DeleteRange([]byte("conv:"), prefixUpperBound("conv:"), pebble.Sync); err != nil {
		logger.Error("purge_conversations_failed", "error", err)
		return err
	}
	logger.Info("conversations_purged")
	return nil
}
