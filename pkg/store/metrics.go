package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	convWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_store_conversation_writes_total",
		Help: "Conversation metadata writes.",
	})
	msgWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_store_message_appends_total",
		Help: "Messages appended across all conversations.",
	})
	notifWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parley_store_notification_writes_total",
		Help: "Notifications stored across all users.",
	})
)
