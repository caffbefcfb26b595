package client

import (
	"encoding/json"

	"parley/pkg/broker"
	"parley/pkg/logger"
	"parley/pkg/models"
)

// ApplyFrame decodes one socket frame and applies it to the cache.
func (c *Cache) ApplyFrame(frame []byte) error {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	return c.ApplyEvent(env.Event, env.Data)
}

// ApplyEvent merges a pushed event into the cache. Unknown events are
// logged and skipped so old clients survive new server event types.
func (c *Cache) ApplyEvent(event string, data json.RawMessage) error {
	switch event {
	case broker.EventMessageNew:
		var ev models.MessageNewEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		// ordering and unread changes are too broad to patch locally;
		// refetch first so the merge below wins over a staler list
		c.refreshBestEffort()
		c.applyMessageNew(ev)
	case broker.EventMessageDeleted:
		var ev models.MessageDeletedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		c.applyMessageDeleted(ev)
	case broker.EventConversationNew:
		// speculative insertion risks duplicate-shape bugs; refetch instead
		c.refreshBestEffort()
	case broker.EventConversationUpdate:
		var ev models.ConversationUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		c.applyConversationUpdate(ev)
	case broker.EventNotificationNew, broker.EventNotificationUpdate:
		// notifications are rendered straight from their own fetch; the
		// cache only tracks conversations
	default:
		logger.Debug("client_unknown_event", "event", event)
	}
	return nil
}

func (c *Cache) applyMessageNew(ev models.MessageNewEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, tracked := c.msgs[ev.ConversationID]
	if tracked {
		merged := false
		for i := range list {
			if list[i].ID == ev.Message.ID {
				merged = true // duplicate push
				break
			}
			if isProvisional(list[i]) && mergeable(list[i], ev.Message) {
				list[i] = ev.Message
				merged = true
				break
			}
		}
		if !merged {
			list = append(list, ev.Message)
			c.msgs[ev.ConversationID] = list
		}
	}
	c.touchSummary(ev.ConversationID, ev.Message)
}

func (c *Cache) applyMessageDeleted(ev models.MessageDeletedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, tracked := c.msgs[ev.ConversationID]
	if !tracked {
		return
	}
	for i := range list {
		if list[i].ID == ev.MessageID {
			c.msgs[ev.ConversationID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (c *Cache) applyConversationUpdate(ev models.ConversationUpdateEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.Update.Deleted {
		delete(c.convs, ev.ConversationID)
		delete(c.msgs, ev.ConversationID)
		return
	}
	s, ok := c.convs[ev.ConversationID]
	if !ok {
		return
	}
	if ev.Update.Name != nil {
		s.Name = *ev.Update.Name
		if *ev.Update.Name != "" {
			s.DisplayName = *ev.Update.Name
		}
	}
	if ev.Update.Participants != nil {
		s.Participants = ev.Update.Participants
	}
	c.convs[ev.ConversationID] = s
}

func (c *Cache) refreshBestEffort() {
	if err := c.Refresh(); err != nil {
		logger.Warn("client_refresh_failed", "error", err)
	}
}
