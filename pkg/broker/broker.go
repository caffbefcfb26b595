// Package broker fans conversation and notification events out to the
// live socket connections of individual users. Delivery is best effort:
// publishing to a user with no connections is a no-op, and a connection
// that cannot keep up has the event dropped rather than blocking the
// publisher. Clients reconcile missed events by refetching over HTTP.
package broker

import (
	"sync"

	"parley/pkg/logger"
)

// Event names carried on the socket.
const (
	EventMessageNew         = "message:new"
	EventMessageDeleted     = "message:deleted"
	EventConversationNew    = "conversation:new"
	EventConversationUpdate = "conversation:update"
	EventNotificationNew    = "notification:new"
	EventNotificationUpdate = "notification:update"
)

// Event is a single push sent to a client.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Conn is one live client connection. TrySend must not block; it reports
// whether the event was accepted for delivery.
type Conn interface {
	TrySend(Event) bool
}

// Broker is the fan-out registry. A user may hold several connections at
// once (multiple tabs, devices); every connection receives every event
// published to that user.
type Broker struct {
	mu    sync.RWMutex
	conns map[string]map[Conn]struct{}
}

func New() *Broker {
	return &Broker{conns: make(map[string]map[Conn]struct{})}
}

// Register attaches a connection to a user id.
func (b *Broker) Register(userID string, c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		b.conns[userID] = set
	}
	set[c] = struct{}{}
	connsGauge.Inc()
	logger.Debug("broker_register", "user", userID, "user_conns", len(set))
}

// Unregister detaches a connection. Safe to call for a connection that
// was never registered or was already removed.
func (b *Broker) Unregister(userID string, c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.conns[userID]
	if !ok {
		return
	}
	if _, present := set[c]; !present {
		return
	}
	delete(set, c)
	connsGauge.Dec()
	if len(set) == 0 {
		delete(b.conns, userID)
	}
	logger.Debug("broker_unregister", "user", userID)
}

// Publish sends an event to every live connection of a user. Connections
// are snapshotted under the read lock so a slow send never holds up
// register and unregister.
func (b *Broker) Publish(userID, event string, data any) {
	b.mu.RLock()
	set := b.conns[userID]
	targets := make([]Conn, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	ev := Event{Event: event, Data: data}
	for _, c := range targets {
		if c.TrySend(ev) {
			eventsSent.WithLabelValues(event).Inc()
		} else {
			eventsDropped.WithLabelValues(event).Inc()
			logger.Warn("broker_event_dropped", "user", userID, "event", event)
		}
	}
}

// PublishMany publishes the same event to several users.
func (b *Broker) PublishMany(userIDs []string, event string, data any) {
	for _, uid := range userIDs {
		b.Publish(uid, event, data)
	}
}

// Connections reports how many live connections a user currently holds.
func (b *Broker) Connections(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns[userID])
}

// Users reports how many distinct users hold at least one connection.
func (b *Broker) Users() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}
