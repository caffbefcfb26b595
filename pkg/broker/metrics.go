package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parley_broker_connections",
		Help: "Live socket connections registered with the broker.",
	})
	eventsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_broker_events_sent_total",
		Help: "Events accepted for delivery, by event name.",
	}, []string{"event"})
	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_broker_events_dropped_total",
		Help: "Events dropped because a connection could not keep up.",
	}, []string{"event"})
)
