package gossip

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// PacketsInbound is the total number of received packets, labelled by
	// message kind.
	PacketsInbound *prometheus.CounterVec

	// PacketsOutbound is the total number of sent packets, labelled by
	// message kind.
	PacketsOutbound *prometheus.CounterVec

	// PacketBytesInbound is the total number of read bytes via the packet
	// connection.
	PacketBytesInbound prometheus.Counter

	// PacketBytesOutbound is the total number of written bytes via the
	// packet connection.
	PacketBytesOutbound prometheus.Counter

	// PacketErrors is the total number of packets that couldn't be decoded
	// or sent, labelled by direction.
	PacketErrors *prometheus.CounterVec

	// Probes is the total number of failure detector probes labelled by
	// result ('direct', 'proxy' or 'failed').
	Probes *prometheus.CounterVec

	// Exchanges is the total number of anti-entropy exchanges labelled by
	// outcome ('agreed', 'merged' or 'abandoned').
	Exchanges *prometheus.CounterVec

	// Members is the number of known members that haven't left.
	Members prometheus.Gauge

	// Suspected is the number of members whose last probe failed.
	Suspected prometheus.Gauge

	// PendingUpdates is the number of updates pending dissemination.
	PendingUpdates prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		PacketsInbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "murmur",
				Subsystem: "gossip",
				Name:      "packets_inbound_total",
				Help:      "Total number of received packets",
			},
			[]string{"kind"},
		),
		PacketsOutbound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "murmur",
				Subsystem: "gossip",
				Name:      "packets_outbound_total",
				Help:      "Total number of sent packets",
			},
			[]string{"kind"},
		),
		PacketBytesInbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "murmur",
				Subsystem: "gossip",
				Name:      "packet_bytes_inbound_total",
				Help:      "Total number of read bytes via a packet connection",
			},
		),
		PacketBytesOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "murmur",
				Subsystem: "gossip",
				Name:      "packet_bytes_outbound_total",
				Help:      "Total number of written bytes via a packet connection",
			},
		),
		PacketErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "murmur",
				Subsystem: "gossip",
				Name:      "packet_errors_total",
				Help:      "Total number of packets that couldn't be decoded or sent",
			},
			[]string{"direction"},
		),
		Probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "murmur",
				Subsystem: "gossip",
				Name:      "probes_total",
				Help:      "Total number of failure detector probes",
			},
			[]string{"result"},
		),
		Exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "murmur",
				Subsystem: "gossip",
				Name:      "exchanges_total",
				Help:      "Total number of anti-entropy exchanges",
			},
			[]string{"outcome"},
		),
		Members: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "murmur",
				Subsystem: "gossip",
				Name:      "members",
				Help:      "Number of known members",
			},
		),
		Suspected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "murmur",
				Subsystem: "gossip",
				Name:      "suspected",
				Help:      "Number of suspected members",
			},
		),
		PendingUpdates: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "murmur",
				Subsystem: "gossip",
				Name:      "pending_updates",
				Help:      "Number of updates pending dissemination",
			},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.PacketsInbound,
		m.PacketsOutbound,
		m.PacketBytesInbound,
		m.PacketBytesOutbound,
		m.PacketErrors,
		m.Probes,
		m.Exchanges,
		m.Members,
		m.Suspected,
		m.PendingUpdates,
	)
}
