package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	packetsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dgr",
			Subsystem: "session",
			Name:      "packets_sent_total",
			Help:      "Snapshots sent by a master session.",
		},
		[]string{"role"},
	)
	bytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dgr",
			Subsystem: "session",
			Name:      "bytes_sent_total",
			Help:      "Snapshot bytes sent by a master session.",
		},
		[]string{"role"},
	)
	packetsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dgr",
			Subsystem: "session",
			Name:      "packets_received_total",
			Help:      "Datagrams drained by a slave session.",
		},
		[]string{"role"},
	)
	packetsSuperseded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dgr",
			Subsystem: "session",
			Name:      "packets_superseded_total",
			Help:      "Drained datagrams discarded because a newer one arrived in the same drain.",
		},
		[]string{"role"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dgr",
			Subsystem: "session",
			Name:      "decode_errors_total",
			Help:      "Malformed snapshots discarded by a slave session.",
		},
		[]string{"role"},
	)
	fatalErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dgr",
			Subsystem: "session",
			Name:      "fatal_total",
			Help:      "Session-ending failures by reason.",
		},
		[]string{"role", "reason"},
	)
	registryRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dgr",
			Subsystem: "registry",
			Name:      "records",
			Help:      "Known variable names in the session registry.",
		},
		[]string{"role"},
	)
	relayForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dgr",
			Subsystem: "relay",
			Name:      "forwarded_total",
			Help:      "Datagrams forwarded by the relay per target.",
		},
		[]string{"target", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			packetsSent,
			bytesSent,
			packetsReceived,
			packetsSuperseded,
			decodeErrors,
			fatalErrors,
			registryRecords,
			relayForwarded,
		)
	})
}

// Handler serves the default prometheus registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordSend(role string, bytes int) {
	RegisterMetrics()
	packetsSent.WithLabelValues(role).Inc()
	bytesSent.WithLabelValues(role).Add(float64(bytes))
}

// RecordDrain counts one drain that yielded received datagrams, all but the
// newest of which were superseded.
func RecordDrain(role string, received int) {
	RegisterMetrics()
	if received <= 0 {
		return
	}
	packetsReceived.WithLabelValues(role).Add(float64(received))
	packetsSuperseded.WithLabelValues(role).Add(float64(received - 1))
}

func RecordDecodeError(role string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(role).Inc()
}

func RecordFatal(role, reason string) {
	RegisterMetrics()
	fatalErrors.WithLabelValues(role, reason).Inc()
}

func SetRegistryRecords(role string, n int) {
	RegisterMetrics()
	registryRecords.WithLabelValues(role).Set(float64(n))
}

func RecordRelayForward(target string, success bool) {
	RegisterMetrics()
	label := "false"
	if success {
		label = "true"
	}
	relayForwarded.WithLabelValues(target, label).Inc()
}
