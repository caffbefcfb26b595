// Package client is the reconciliation layer a connected device runs on
// top of the HTTP surface and the socket feed. It keeps a local cache of
// conversation summaries and lazily-loaded message lists consistent with
// server state, supporting optimistic sends with rollback and merging
// pushed events as they arrive.
package client

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"parley/pkg/models"
)

// Provisional messages matched against a confirmed server message must
// agree on sender and text and sit within this window. The provisional id
// never appears server-side, so identity matching is impossible; two
// identical texts sent in quick succession can false-positive merge.
const mergeWindow = 5 * time.Second

// Fetcher is the HTTP surface the cache refreshes from.
type Fetcher interface {
	ListConversations() ([]models.ConversationSummary, error)
	ListMessages(convID string) ([]models.Message, error)
	SendMessage(convID, text, parentID string) (models.Message, error)
}

// Cache is one device's local view. All methods are safe for concurrent
// use by the UI goroutine and the socket reader.
type Cache struct {
	selfID  string
	fetcher Fetcher

	mu    sync.Mutex
	convs map[string]models.ConversationSummary
	// msgs holds full message lists only for opened conversations
	msgs map[string][]models.Message

	provisionalSeq uint64
}

func NewCache(selfID string, f Fetcher) *Cache {
	return &Cache{
		selfID:  selfID,
		fetcher: f,
		convs:   make(map[string]models.ConversationSummary),
		msgs:    make(map[string][]models.Message),
	}
}

// Refresh replaces the summary cache from the server. Called on connect,
// reconnect and whenever a push event implies ordering or unread changes
// too broad to patch incrementally.
func (c *Cache) Refresh() error {
	sums, err := c.fetcher.ListConversations()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := make(map[string]models.ConversationSummary, len(sums))
	for _, s := range sums {
		fresh[s.ID] = s
	}
	c.convs = fresh
	// drop message lists of conversations that disappeared
	for id := range c.msgs {
		if _, ok := fresh[id]; !ok {
			delete(c.msgs, id)
		}
	}
	return nil
}

// Open loads the full message list for a conversation into the cache.
func (c *Cache) Open(convID string) ([]models.Message, error) {
	msgs, err := c.fetcher.ListMessages(convID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.msgs[convID] = msgs
	c.mu.Unlock()
	return append([]models.Message(nil), msgs...), nil
}

// Conversations returns the cached summaries.
func (c *Cache) Conversations() []models.ConversationSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ConversationSummary, 0, len(c.convs))
	for _, s := range c.convs {
		out = append(out, s)
	}
	return out
}

// Messages returns the cached message list for an opened conversation.
func (c *Cache) Messages(convID string) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.msgs[convID]...)
}

// Send performs an optimistic send: a provisional message appears in the
// cache immediately, the request goes out, and on success the provisional
// entry is replaced by the server-confirmed message. On failure the
// pre-send snapshot is restored and the error surfaces to the caller.
func (c *Cache) Send(convID, text, parentID string) (models.Message, error) {
	n := atomic.AddUint64(&c.provisionalSeq, 1)
	now := time.Now().UTC()
	provisional := models.Message{
		ID:           fmt.Sprintf("local-%d", n),
		Conversation: convID,
		From:         c.selfID,
		Text:         text,
		TS:           now.UnixNano(),
		Time:         now.Format(time.RFC3339),
		ParentID:     parentID,
	}

	c.mu.Lock()
	snapshot := append([]models.Message(nil), c.msgs[convID]...)
	c.msgs[convID] = append(c.msgs[convID], provisional)
	c.mu.Unlock()

	confirmed, err := c.fetcher.SendMessage(convID, text, parentID)
	if err != nil {
		c.mu.Lock()
		c.msgs[convID] = snapshot
		c.mu.Unlock()
		return models.Message{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.msgs[convID]
	replaced := false
	for i := range list {
		// the push event may have merged the confirmed message over the
		// provisional entry before this response landed
		if list[i].ID == provisional.ID || list[i].ID == confirmed.ID {
			list[i] = confirmed
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, confirmed)
		c.msgs[convID] = list
	}
	c.touchSummary(convID, confirmed)
	return confirmed, nil
}

// mergeable reports whether a confirmed server message matches a
// provisional entry by the content+time-proximity heuristic.
func mergeable(provisional, confirmed models.Message) bool {
	if provisional.From != confirmed.From || provisional.Text != confirmed.Text {
		return false
	}
	d := provisional.TS - confirmed.TS
	if d < 0 {
		d = -d
	}
	return time.Duration(d) <= mergeWindow
}

func isProvisional(m models.Message) bool {
	return len(m.ID) > 6 && m.ID[:6] == "local-"
}

func (c *Cache) touchSummary(convID string, last models.Message) {
	s, ok := c.convs[convID]
	if !ok {
		return
	}
	s.LastMessage = last.Text
	s.LastMessageTime = last.Time
	c.convs[convID] = s
}
