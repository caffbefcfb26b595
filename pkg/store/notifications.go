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

// AppendNotification stores a notification for a user and indexes it by id
// so the read flag can be flipped later. The list is unbounded at write
// time; readers cap what they surface.
func AppendNotification(uid string, n models.Notification) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if n.TS == 0 {
		n.TS = time.Now().UTC().UnixNano()
	}
	c := nextSeq()
	key := notifKey(uid, n.TS, c)
	data, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	wb := new(pebble.Batch)
	wb.Set([]byte(key), data, nil)
	wb.Set([]byte(notifIDKey(uid, n.ID)), []byte(key), nil)
	if err := db.Apply(wb, pebble.Sync); err != nil {
		logger.Error("append_notification_failed", "user", uid, "error", err)
		return err
	}
	notifWrites.Inc()
	return nil
}

// ListNotifications returns up to limit notifications for a user, newest
// first. limit <= 0 returns everything.
func ListNotifications(uid string, limit int) ([]models.Notification, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := notifPrefix(uid)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Notification
	for valid := iter.SeekLT(prefixUpperBound(prefix)); valid; valid = iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), []byte(prefix)) {
			break
		}
		var n models.Notification
		if err := json.Unmarshal(iter.Value(), &n); err != nil {
			logger.Warn("skip_invalid_notification", "user", uid, "error", err)
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// GetNotification resolves a notification by id.
func GetNotification(uid, notifID string) (models.Notification, error) {
	var n models.Notification
	if db == nil {
		return n, fmt.Errorf("pebble not opened; call store.Open first")
	}
	key, closer, err := db.Get([]byte(notifIDKey(uid, notifID)))
	if err != nil {
		return n, errors.Wrapf(err, "notification %s", notifID)
	}
	seqKey := append([]byte(nil), key...)
	closer.Close()
	v, closer, err := db.Get(seqKey)
	if err != nil {
		return n, errors.Wrapf(err, "notification body %s", notifID)
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &n); err != nil {
		return n, errors.Wrap(err, "invalid stored notification")
	}
	return n, nil
}

// UpdateNotification overwrites a stored notification in place (same
// sequence key). Only read-flag flips go through here.
func UpdateNotification(uid string, n models.Notification) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	key, closer, err := db.Get([]byte(notifIDKey(uid, n.ID)))
	if err != nil {
		return errors.Wrapf(err, "notification %s", n.ID)
	}
	seqKey := append([]byte(nil), key...)
	closer.Close()
	data, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	return db.Set(seqKey, data, pebble.Sync)
}

// DeleteNotificationRecord removes a notification and its id index entry.
// Only the retention sweeper calls this; there is no user-facing delete.
func DeleteNotificationRecord(uid string, notifID string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	key, closer, err := db.Get([]byte(notifIDKey(uid, notifID)))
	if err != nil {
		return errors.Wrapf(err, "notification %s", notifID)
	}
	seqKey := append([]byte(nil), key...)
	closer.Close()
	wb := new(pebble.Batch)
	wb.Delete(seqKey, nil)
	wb.Delete([]byte(notifIDKey(uid, notifID)), nil)
	return db.Apply(wb, pebble.Sync)
}

// HasAnyUnreadNotification reports whether the user has at least one
// unread notification anywhere in the stored list, not just the surfaced
// page. Scans newest first and stops at the first unread hit.
func HasAnyUnreadNotification(uid string) (bool, error) {
	if db == nil {
		return false, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := notifPrefix(uid)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return false, err
	}
	defer iter.Close()
	for valid := iter.SeekLT(prefixUpperBound(prefix)); valid; valid = iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), []byte(prefix)) {
			break
		}
		var n models.Notification
		if err := json.Unmarshal(iter.Value(), &n); err != nil {
			logger.Warn("skip_invalid_notification", "user", uid, "error", err)
			continue
		}
		if n.Unread {
			return true, nil
		}
	}
	return false, iter.Error()
}

// ListNotifiedUserIDs returns the ids of users that have at least one
// stored notification. Used by the retention sweeper.
func ListNotifiedUserIDs() ([]string, error) {
	keys, err := ListKeys("user:")
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, k := range keys {
		rest := k[len("user:"):]
		i := bytes.IndexByte([]byte(rest), ':')
		if i <= 0 {
			continue
		}
		uid := rest[:i]
		if !bytes.HasPrefix([]byte(rest[i:]), []byte(":notif:")) {
			continue
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, uid)
	}
	return out, nil
}
