package gossip

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/andydunstall/murmur/pkg/gossip"
	"github.com/andydunstall/murmur/pkg/log"
)

// EventLogger is a watcher that logs and counts membership events.
type EventLogger struct {
	events *prometheus.CounterVec

	logger log.Logger
}

func NewEventLogger(logger log.Logger) *EventLogger {
	return &EventLogger{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "murmur",
				Subsystem: "cluster",
				Name:      "events_total",
				Help:      "Total number of membership events",
			},
			[]string{"kind"},
		),
		logger: logger.WithSubsystem("cluster"),
	}
}

func (l *EventLogger) OnJoined(endpoint gossip.Endpoint) {
	l.onEvent(gossip.EventJoined, endpoint)
}

func (l *EventLogger) OnSuspected(endpoint gossip.Endpoint) {
	l.onEvent(gossip.EventSuspected, endpoint)
}

func (l *EventLogger) OnBacked(endpoint gossip.Endpoint) {
	l.onEvent(gossip.EventBacked, endpoint)
}

func (l *EventLogger) OnLeaved(endpoint gossip.Endpoint) {
	l.onEvent(gossip.EventLeaved, endpoint)
}

func (l *EventLogger) Register(reg *prometheus.Registry) {
	reg.MustRegister(l.events)
}

func (l *EventLogger) onEvent(kind gossip.EventKind, endpoint gossip.Endpoint) {
	l.events.WithLabelValues(kind.String()).Inc()

	switch kind {
	case gossip.EventSuspected, gossip.EventLeaved:
		l.logger.Warn(
			"membership event",
			zap.String("kind", kind.String()),
			zap.String("endpoint", endpoint.String()),
		)
	default:
		l.logger.Info(
			"membership event",
			zap.String("kind", kind.String()),
			zap.String("endpoint", endpoint.String()),
		)
	}
}

var _ gossip.Watcher = &EventLogger{}
