package store

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"parley/pkg/logger"
)

var (
	db     *pebble.DB
	dbPath string
)

// seq is a small counter to disambiguate keys when multiple writes share
// the same nanosecond timestamp.
var seq uint64

// ErrNotFound is returned when a requested key is absent.
var ErrNotFound = pebble.ErrNotFound

// IsNotFound reports whether err is (or wraps) a missing-key error.
func IsNotFound(err error) bool { return errors.Is(err, pebble.ErrNotFound) }

// Open opens (or creates) a Pebble database at the given path and keeps a
// package-level handle for simple usage.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func nextSeq() uint64 { return atomic.AddUint64(&seq, 1) }

// Key builders. Layout:
//
//	conv:<convID>:meta                       conversation metadata
//	conv:<convID>:msg:<pad20 ts>-<pad6 n>    message, append order == key order
//	conv:<convID>:msgid:<msgID>              -> message sequence key
//	user:<userID>:conv:<convID>              membership record
//	user:<userID>:notif:<pad20 ts>-<pad6 n>  notification
//	user:<userID>:notifid:<notifID>          -> notification key
func convMetaKey(convID string) string { return "conv:" + convID + ":meta" }
func msgPrefix(convID string) string   { return "conv:" + convID + ":msg:" }
func msgKey(convID string, ts int64, n uint64) string {
	return fmt.Sprintf("conv:%s:msg:%020d-%06d", convID, ts, n)
}
func msgIDKey(convID, msgID string) string  { return "conv:" + convID + ":msgid:" + msgID }
func membershipKey(uid, convID string) string { return "user:" + uid + ":conv:" + convID }
func membershipPrefix(uid string) string      { return "user:" + uid + ":conv:" }
func notifPrefix(uid string) string           { return "user:" + uid + ":notif:" }
func notifKey(uid string, ts int64, n uint64) string {
	return fmt.Sprintf("user:%s:notif:%020d-%06d", uid, ts, n)
}
func notifIDKey(uid, notifID string) string { return "user:" + uid + ":notifid:" + notifID }

// GetKey returns the raw value for the given key.
func GetKey(key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		return "", errors.Wrapf(err, "get %s", key)
	}
	if closer != nil {
		defer closer.Close()
	}
	return string(v), nil
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// If prefix is empty it returns all keys in the DB.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	if prefix == "" {
		for iter.First(); iter.Valid(); iter.Next() {
			out = append(out, string(append([]byte(nil), iter.Key()...)))
		}
		return out, iter.Error()
	}
	pfx := []byte(prefix)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !hasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	return out, iter.Error()
}

func hasPrefix(b, pfx []byte) bool {
	if len(b) < len(pfx) {
		return false
	}
	for i := range pfx {
		if b[i] != pfx[i] {
			return false
		}
	}
	return true
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, for reverse scans.
func prefixUpperBound(prefix string) []byte {
	return append([]byte(prefix), 0xff)
}
