package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"parley/pkg/logger"
	"parley/pkg/models"
)

// The membership index is the denormalized join between "which
// conversations involve me" and "have I seen the latest activity". It is
// owned by the conversation service, which updates it alongside
// Conversation.Participants on every membership-changing operation.

// SaveMembership writes a user's membership record for a conversation.
func SaveMembership(uid string, m models.Membership) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshal membership")
	}
	if err := db.Set([]byte(membershipKey(uid, m.ConversationID)), b, pebble.Sync); err != nil {
		logger.Error("save_membership_failed", "user", uid, "conversation", m.ConversationID, "error", err)
		return err
	}
	return nil
}

// GetMembership returns a user's membership record for a conversation.
func GetMembership(uid, convID string) (models.Membership, error) {
	var m models.Membership
	if db == nil {
		return m, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(membershipKey(uid, convID)))
	if err != nil {
		return m, errors.Wrapf(err, "membership %s/%s", uid, convID)
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &m); err != nil {
		return m, errors.Wrap(err, "invalid membership record")
	}
	return m, nil
}

// DeleteMembership removes a user's membership record entirely.
func DeleteMembership(uid, convID string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.Delete([]byte(membershipKey(uid, convID)), pebble.Sync)
}

// ListMemberships returns all membership records for a user.
func ListMemberships(uid string) ([]models.Membership, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte(membershipPrefix(uid))
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Membership
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Membership
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Warn("skip_invalid_membership", "user", uid, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// HasAnyUnreadConversation reports whether any membership record for the
// user carries unread activity.
func HasAnyUnreadConversation(uid string) (bool, error) {
	ms, err := ListMemberships(uid)
	if err != nil {
		return false, err
	}
	for _, m := range ms {
		if m.Unread {
			return true, nil
		}
	}
	return false, nil
}

// PurgeMemberships removes every membership record of every user. Used by
// the admin bulk purge together with PurgeConversations.
func PurgeMemberships() error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	keys, err := ListKeys("user:")
	if err != nil {
		return err
	}
	wb := new(pebble.Batch)
	for _, k := range keys {
		if bytes.Contains([]byte(k), []byte(":conv:")) {
			wb.Delete([]byte(k), nil)
		}
	}
	if err := db.Apply(wb, pebble.Sync); err != nil {
		logger.Error("purge_memberships_failed", "error", err)
		return err
	}
	logger.Info("memberships_purged")
	return nil
}
