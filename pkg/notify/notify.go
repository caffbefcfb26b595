// Package notify manages the per-user notification lists and their push
// events. Notifications are distinct from conversation messages: they are
// prepended newest first, only their read flag ever changes, and reads
// surface at most a fixed page of recent entries.
package notify

import (
	"time"

	"parley/pkg/apperr"
	"parley/pkg/broker"
	"parley/pkg/models"
	"parley/pkg/store"
	"parley/pkg/utils"
	"parley/pkg/validation"
)

// MarkAllID is the notification:update id meaning "every notification".
const MarkAllID = "all"

type Service struct {
	broker *broker.Broker
}

func New(b *broker.Broker) *Service {
	return &Service{broker: b}
}

// Push stores a new unread notification for a user and pushes
// notification:new to their live connections.
func (s *Service) Push(uid, title, message, icon string) (models.Notification, error) {
	ts := time.Now().UTC().UnixNano()
	n := models.Notification{
		ID:      utils.GenNotifID(),
		Title:   title,
		Message: message,
		Icon:    icon,
		TS:      ts,
		Time:    time.Unix(0, ts).UTC().Format(time.RFC3339),
		Unread:  true,
	}
	if err := validation.Notification(n); err != nil {
		return models.Notification{}, err
	}
	if err := store.AppendNotification(uid, n); err != nil {
		return models.Notification{}, err
	}
	s.broker.Publish(uid, broker.EventNotificationNew, models.NotificationNewEvent{Notification: n})
	return n, nil
}

// List returns the user's most recent notifications, newest first, capped
// at the configured page size.
func (s *Service) List(uid string) ([]models.Notification, error) {
	return store.ListNotifications(uid, validation.NotificationPageSize())
}

// HasAnyUnread reports whether any stored notification is unread, even
// ones older than the surfaced page.
func (s *Service) HasAnyUnread(uid string) (bool, error) {
	return store.HasAnyUnreadNotification(uid)
}

// MarkOneRead flips a single notification to read. Idempotent.
func (s *Service) MarkOneRead(uid, notifID string) error {
	n, err := store.GetNotification(uid, notifID)
	if err != nil {
		if store.IsNotFound(err) {
			return apperr.NotFound("notification %s not found", notifID)
		}
		return err
	}
	if n.Unread {
		n.Unread = false
		if err := store.UpdateNotification(uid, n); err != nil {
			return err
		}
	}
	s.broker.Publish(uid, broker.EventNotificationUpdate, models.NotificationUpdateEvent{
		NotificationID: notifID,
		Unread:         false,
	})
	return nil
}

// MarkAllRead flips every stored notification to read. Idempotent; a
// single notification:update with the "all" id is pushed afterwards.
func (s *Service) MarkAllRead(uid string) error {
	ns, err := store.ListNotifications(uid, 0)
	if err != nil {
		return err
	}
	for _, n := range ns {
		if !n.Unread {
			continue
		}
		n.Unread = false
		if err := store.UpdateNotification(uid, n); err != nil {
			return err
		}
	}
	s.broker.Publish(uid, broker.EventNotificationUpdate, models.NotificationUpdateEvent{
		NotificationID: MarkAllID,
		Unread:         false,
	})
	return nil
}
